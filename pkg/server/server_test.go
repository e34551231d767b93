package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/salessupport/salesagent/internal/config"
	"github.com/salessupport/salesagent/pkg/models"
	"github.com/salessupport/salesagent/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLLM serves a fixed assistant answer on the chat completions path.
func newLLM(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "local-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(llmURL string) *config.Config {
	cfg := config.Defaults()
	cfg.LLM.LMStudio.Endpoint = llmURL + "/v1"
	cfg.Auth.APIKeys = []string{"secret"}
	return cfg
}

func TestNewWithConfig_ServesSummary(t *testing.T) {
	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, testConfig(newLLM(t, "今週の商談は 3 件です。").URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	assert.Equal(t, 8080, srv.Port)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/sales-summary",
		strings.NewReader(`{"query":"今週の商談"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res models.SummaryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "今週の商談は 3 件です。", res.ResponseText)
	assert.NotEmpty(t, res.DataSources)
}

func TestNewWithConfig_MetricsEndpoint(t *testing.T) {
	srv, err := server.NewWithConfig(context.Background(), testConfig(newLLM(t, "ok").URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewWithConfig_RejectsBadProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.OpenAI.APIKey = ""
	cfg.LLM.Provider = config.ProviderOpenAI

	_, err := server.NewWithConfig(context.Background(), cfg)
	assert.ErrorContains(t, err, "init llm provider")
}

func TestNewWithConfig_RetentionArchiveMustBeWritable(t *testing.T) {
	file := t.TempDir() + "/not-a-dir"
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := testConfig(newLLM(t, "ok").URL)
	cfg.Transcript.Retention.MaxAge = time.Hour
	cfg.Transcript.Retention.ArchiveDir = file

	_, err := server.NewWithConfig(context.Background(), cfg)
	assert.ErrorContains(t, err, "init transcript archive")
}

func TestNewWithConfig_StartsRetentionJanitor(t *testing.T) {
	cfg := testConfig(newLLM(t, "ok").URL)
	cfg.Transcript.Retention.MaxAge = time.Hour
	cfg.Transcript.Retention.ArchiveDir = t.TempDir()

	srv, err := server.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestNewWithConfig_EnglishReplies(t *testing.T) {
	cfg := testConfig(newLLM(t, "3 deals this week.").URL)
	cfg.Locale.DefaultLanguage = "en"

	srv, err := server.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/messages", strings.NewReader(`{
		"type":"message","id":"a1","text":"weekly deals",
		"from":{"id":"u1","name":"Alice"},"recipient":{"id":"bot"},
		"conversation":{"id":"c1"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replies []models.Activity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&replies))
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Text, "3 deals this week.\n\n---\n⚡ Processing time: "), replies[0].Text)
	assert.True(t, strings.HasSuffix(replies[0].Text, "ms | 🤖 LM Studio"), replies[0].Text)
}
