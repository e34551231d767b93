package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/salessupport/salesagent/pkg/models"
	"github.com/spf13/cobra"
)

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "salesagent",
		Short: "Teams sales support agent",
		Long: `salesagent answers sales questions in Microsoft Teams by letting an LLM
pull mail, calendar, SharePoint and Teams data through an MCP tool server.

Configuration is read from the YAML file named by --config (or
SALESAGENT_CONFIG) and then overridden by environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("SALESAGENT_CONFIG", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	root.AddCommand(buildServeCmd(), buildSummaryCmd(), buildVersionCmd())
	return root
}

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot and dashboard HTTP server",
		Example: `  salesagent serve
  salesagent serve --config /etc/salesagent.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildSummaryCmd creates the "summary" command that runs one sales summary
// without starting the server.
func buildSummaryCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "summary <query>",
		Short: "Generate a sales summary and print it as JSON",
		Example: `  salesagent summary "今週の商談サマリを教えて"
  salesagent summary "Contoso deals" --start 2025-01-13 --end 2025-01-19`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.SummaryRequest{Query: strings.Join(args, " ")}
			var err error
			if req.StartDate, err = models.ParseDate(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if req.EndDate, err = models.ParseDate(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			res, err := runSummary(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD), defaults to this Monday")
	cmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD), defaults to this week's Sunday")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "salesagent %s\n", version)
		},
	}
}
