package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/salessupport/salesagent/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "summary", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.String(), "salesagent dev\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestSummaryRequiresQuery(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"summary"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a query")
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogging(config.LogConfig{Level: "warn"}, false)
	if got := zerolog.GlobalLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", got)
	}
	setupLogging(config.LogConfig{Level: "bogus"}, false)
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info fallback", got)
	}
	setupLogging(config.LogConfig{Level: "error", Format: "json"}, true)
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug override", got)
	}
}
