package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/salessupport/salesagent/internal/api"
	"github.com/salessupport/salesagent/internal/api/handlers"
	"github.com/salessupport/salesagent/internal/api/middleware"
	"github.com/salessupport/salesagent/internal/bot"
	"github.com/salessupport/salesagent/internal/hub"
	"github.com/salessupport/salesagent/internal/llm"
	"github.com/salessupport/salesagent/internal/notify"
	"github.com/salessupport/salesagent/internal/observability"
	"github.com/salessupport/salesagent/internal/orchestrator"
	"github.com/salessupport/salesagent/internal/store"
	"github.com/salessupport/salesagent/internal/transcript"
	"github.com/salessupport/salesagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedCompleter struct {
	text string

	mu     sync.Mutex
	prompt string
}

func (c *cannedCompleter) Run(_ context.Context, prompt string) (llm.Conversation, error) {
	c.mu.Lock()
	c.prompt = prompt
	c.mu.Unlock()
	return llm.Conversation{Turns: []llm.Turn{{
		Role:  llm.RoleAssistant,
		Parts: []llm.Part{llm.TextPart{Text: c.text}},
	}}}, nil
}

func (c *cannedCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

func (*cannedCompleter) ProviderName() string { return "Ollama" }

func newServer(t *testing.T, keys ...string) *httptest.Server {
	t.Helper()
	return newServerWith(t, &cannedCompleter{text: "3 deals found"}, keys...)
}

func newServerWith(t *testing.T, c orchestrator.Completer, keys ...string) *httptest.Server {
	t.Helper()

	h := hub.New()
	out := hub.NewOutbox(h, 16)
	t.Cleanup(func() { _ = out.Close(context.Background()) })

	reg := prometheus.NewRegistry()
	obs := observability.New(out, observability.WithRegisterer(reg))
	obs.RegisterAgent("sales-agent", "営業支援エージェント", "SalesAgent", "active")
	notes := notify.NewBroadcaster(out)
	durable := store.NewMemoryStore()
	ts, err := transcript.New(durable)
	require.NoError(t, err)

	orch := orchestrator.New(c, notes, obs, ts)
	router := api.NewRouter(api.Deps{
		Handlers: &handlers.Handlers{
			Summarizer:    orch,
			Bot:           bot.New(orch, obs, ts, "sales-agent"),
			Observability: obs,
			Notifications: notes,
			Transcript:    ts,
			Store:         durable,
			ServiceName:   "salesagent",
			Version:       "test",
		},
		Hub:      h,
		Auth:     middleware.NewAPIKeyAuth(keys),
		Gatherer: reg,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestSalesSummaryAcceptsCalendarDates(t *testing.T) {
	c := &cannedCompleter{text: "3 deals found"}
	srv := newServerWith(t, c)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/sales-summary",
		`{"query":"先週の商談","startDate":"2025-03-10","endDate":"2025-03-16"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res models.SummaryResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "3 deals found", res.ResponseText)
	assert.True(t, strings.HasSuffix(c.lastPrompt(), "期間: 2025-03-10 ~ 2025-03-16"), c.lastPrompt())

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sales-summary", `{"query":"q","startDate":"10/03/2025"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndVersion(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","service":"salesagent"}`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/version", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"version":"test"`)
}

func TestSalesSummaryFlow(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/sales-summary", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sales-summary", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/sales-summary",
		`{"query":"今週の商談","startDate":"2025-03-10T00:00:00Z","conversationId":"c-api"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res models.SummaryResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "3 deals found", res.ResponseText)
	assert.Equal(t, "Ollama", res.ProviderName)
	assert.Len(t, res.DataSources, 4)

	_, body = do(t, http.MethodGet, srv.URL+"/api/notifications/history?count=10", "")
	var events []models.NotificationEvent
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 4)
	assert.Equal(t, models.NotificationSuccess, events[0].Kind)

	_, body = do(t, http.MethodGet, srv.URL+"/api/notifications/operation/"+events[0].OperationID, "")
	var narrative []models.NotificationEvent
	require.NoError(t, json.Unmarshal(body, &narrative))
	require.Len(t, narrative, 4)
	assert.Equal(t, 0, narrative[0].ProgressPercent)

	_, body = do(t, http.MethodGet, srv.URL+"/api/notifications/operation/missing", "")
	assert.JSONEq(t, `[]`, string(body))

	_, body = do(t, http.MethodGet, srv.URL+"/api/observability/metrics", "")
	var snap models.MetricsSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, int64(1), snap.SuccessfulRequests)

	_, body = do(t, http.MethodGet, srv.URL+"/api/observability/traces?count=1", "")
	var traces []models.TraceEvent
	require.NoError(t, json.Unmarshal(body, &traces))
	require.Len(t, traces, 1)
	assert.Equal(t, "✅", traces[0].StatusIcon)

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "salesagent_summary_requests_total")
}

func TestMessagesAndTranscript(t *testing.T) {
	srv := newServer(t)

	activity := `{"type":"message","id":"m1","text":"今週の商談","from":{"id":"u1","name":"Alice"},
		"recipient":{"id":"bot"},"conversation":{"id":"conv-1"},"channelId":"msteams"}`
	resp, body := do(t, http.MethodPost, srv.URL+"/api/messages", activity)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replies []models.Activity
	require.NoError(t, json.Unmarshal(body, &replies))
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Text, "3 deals found"))
	assert.Contains(t, replies[0].Text, "🤖 Ollama")

	_, body = do(t, http.MethodGet, srv.URL+"/api/transcript/history/conv-1?limit=10", "")
	var hist []models.TranscriptEntry
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist, 2)
	assert.Equal(t, "Alice", hist[0].From)
	assert.Equal(t, orchestrator.AgentName, hist[1].From)

	_, body = do(t, http.MethodGet, srv.URL+"/api/transcript/conversations", "")
	var sums []models.ConversationSummary
	require.NoError(t, json.Unmarshal(body, &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].MessageCount)

	_, body = do(t, http.MethodGet, srv.URL+"/api/transcript/statistics", "")
	var stats models.TranscriptStatistics
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.TotalConversations)
	assert.Equal(t, 1, stats.ActiveConversations)

	_, body = do(t, http.MethodGet, srv.URL+"/api/observability/sessions?conversationId=conv-1", "")
	var sessions []models.TraceSession
	require.NoError(t, json.Unmarshal(body, &sessions))
	require.Len(t, sessions, 1)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/observability/sessions/"+sessions[0].SessionID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/observability/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/transcript/history/conv-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = do(t, http.MethodGet, srv.URL+"/api/transcript/history/conv-1", "")
	assert.JSONEq(t, `[]`, string(body))
}

func TestMessagesRejectsBadActivity(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"no type"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyProtectsAPI(t *testing.T) {
	srv := newServer(t, "secret")

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/transcript/statistics", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/transcript/statistics", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/messages", `{"type":"typing"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
