package observability_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/salessupport/salesagent/internal/observability"
	"github.com/salessupport/salesagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captured struct {
	topic   string
	payload any
}

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs []captured
}

func (b *captureBroadcaster) Enqueue(topic string, payload any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, captured{topic, payload})
	return true
}

func (b *captureBroadcaster) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.msgs {
		out = append(out, m.topic)
	}
	return out
}

func newTestService(t *testing.T) (*observability.Service, *captureBroadcaster, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}
	out := &captureBroadcaster{}
	svc := observability.New(out,
		observability.WithRegisterer(prometheus.NewRegistry()),
		observability.WithClock(clock.Now),
	)
	return svc, out, clock
}

func TestSnapshot_Empty(t *testing.T) {
	svc, _, _ := newTestService(t)

	snap := svc.Snapshot()
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.AverageResponseTime)
	assert.Zero(t, snap.SuccessRate)
	assert.Equal(t, "00:00:00", snap.Uptime)
}

func TestRecordRequest_Counters(t *testing.T) {
	svc, out, clock := newTestService(t)

	svc.RecordRequest(true, 100)
	svc.RecordRequest(true, 200)
	svc.RecordRequest(false, 33)
	clock.Advance(90*time.Minute + 5*time.Second)

	snap := svc.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.Equal(t, snap.TotalRequests, snap.SuccessfulRequests+snap.FailedRequests)
	assert.Equal(t, 111.0, snap.AverageResponseTime)
	assert.Equal(t, 66.67, snap.SuccessRate)
	assert.Equal(t, "01:30:05", snap.Uptime)
	assert.Equal(t, 1.5, snap.UptimeHours)

	assert.Equal(t, []string{
		observability.TopicMetrics,
		observability.TopicMetrics,
		observability.TopicMetrics,
	}, out.topics())
}

func TestRecordRequest_Concurrent(t *testing.T) {
	svc, _, _ := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.RecordRequest(i%2 == 0, 10)
		}(i)
	}
	wg.Wait()

	snap := svc.Snapshot()
	assert.Equal(t, int64(50), snap.TotalRequests)
	assert.Equal(t, int64(25), snap.SuccessfulRequests)
	assert.Equal(t, 10.0, snap.AverageResponseTime)
}

func TestRecordRequest_SnapshotsQueuedInOrder(t *testing.T) {
	svc, out, _ := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RecordRequest(true, 5)
		}()
	}
	wg.Wait()

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.msgs, 100)
	for i, m := range out.msgs {
		snap, ok := m.payload.(models.MetricsSnapshot)
		require.True(t, ok)
		assert.Equal(t, int64(i+1), snap.TotalRequests)
	}
}

func TestUpdateAgentActivity_SnapshotsQueuedInOrder(t *testing.T) {
	svc, out, _ := newTestService(t)
	svc.RegisterAgent("a1", "Agent", "SalesAgent", "Active")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.UpdateAgentActivity("a1", "working")
		}()
	}
	wg.Wait()

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.msgs, 51)
	for i, m := range out.msgs[1:] {
		info, ok := m.payload.(models.AgentInfo)
		require.True(t, ok)
		assert.Equal(t, int64(i+1), info.TotalInteractions)
	}
}

func TestRecordRequest_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := observability.New(nil, observability.WithRegisterer(reg))

	svc.RecordRequest(true, 1500)
	svc.RecordRequest(false, 10)

	count, err := testutil.GatherAndCount(reg, "salesagent_summary_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
}

func TestRecordTrace_NewestFirstAndBounded(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := observability.New(nil,
		observability.WithTraceCapacity(3),
		observability.WithClock(clock.Now),
	)

	for _, op := range []string{"a", "b", "c", "d"} {
		svc.RecordTrace(op, "success", 1, nil)
		clock.Advance(time.Second)
	}

	traces := svc.RecentTraces(20)
	require.Len(t, traces, 3)
	assert.Equal(t, "d", traces[0].Operation)
	assert.Equal(t, "b", traces[2].Operation)
	assert.Equal(t, "✅", traces[0].StatusIcon)
}

func TestRecordTrace_CopiesExtra(t *testing.T) {
	svc, out, _ := newTestService(t)
	extra := map[string]string{"operationId": "op-1"}

	svc.RecordTrace("summary", "info", 0, extra)
	extra["operationId"] = "mutated"

	assert.Equal(t, "op-1", svc.RecentTraces(1)[0].Extra["operationId"])
	assert.Equal(t, []string{observability.TopicTrace}, out.topics())
}

func TestStatusIcon(t *testing.T) {
	tests := map[string]string{
		"success":   "✅",
		"completed": "✅",
		"error":     "❌",
		"failed":    "❌",
		"warning":   "⚠️",
		"info":      "ℹ️",
		"":          "ℹ️",
	}
	for status, want := range tests {
		if got := observability.StatusIcon(status); got != want {
			t.Errorf("StatusIcon(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestAgentRegistry(t *testing.T) {
	svc, out, clock := newTestService(t)

	svc.RegisterAgent("sales", "Sales Agent", "LLM", "")
	clock.Advance(time.Second)
	svc.RegisterAgent("bot", "Teams Bot", "Bot", "Idle")
	clock.Advance(time.Second)

	assert.True(t, svc.UpdateAgentActivity("sales", "summary"))
	assert.False(t, svc.UpdateAgentActivity("unknown", "x"))

	agents := svc.ActiveAgents()
	require.Len(t, agents, 2)
	assert.Equal(t, "sales", agents[0].ID)
	assert.Equal(t, int64(1), agents[0].TotalInteractions)
	assert.Equal(t, "summary", agents[0].LastActivity)
	assert.Equal(t, "Active", agents[0].Status)
	assert.Equal(t, "Idle", agents[1].Status)

	again := svc.RegisterAgent("sales", "Sales Agent", "LLM", "Busy")
	assert.Equal(t, "Busy", again.Status)
	assert.Equal(t, int64(1), again.TotalInteractions, "re-registering keeps counters")
	assert.Len(t, out.topics(), 4)
}

func TestDetailedTraceLifecycle(t *testing.T) {
	svc, out, clock := newTestService(t)

	id := svc.StartDetailedTrace("conv-1", "user-1", "this week's deals")
	clock.Advance(50 * time.Millisecond)
	require.True(t, svc.AddTracePhase(id, "LLM", "calling model", "", nil))
	clock.Advance(70 * time.Millisecond)
	require.True(t, svc.CompleteDetailedTrace(id, "3 deals found", true))

	session, ok := svc.DetailedTrace(id)
	require.True(t, ok)
	assert.Equal(t, "conv-1", session.ConversationID)
	require.Len(t, session.Phases, 1)
	assert.Equal(t, "Completed", session.Phases[0].Status)
	require.NotNil(t, session.DurationMs)
	assert.Equal(t, int64(120), *session.DurationMs)
	assert.True(t, session.Success)

	assert.False(t, svc.AddTracePhase("missing", "x", "", "", nil))
	assert.False(t, svc.CompleteDetailedTrace("missing", "", false))
	assert.Equal(t, []string{observability.TopicTracePhase, observability.TopicTraceSessionComplete}, out.topics())
}

func TestDetailedTraces_OrderAndCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := observability.New(nil,
		observability.WithSessionCapacity(3),
		observability.WithClock(clock.Now),
	)

	var ids []string
	for _, conv := range []string{"c1", "c2", "c1", "c3"} {
		ids = append(ids, svc.StartDetailedTrace(conv, "u", "q"))
		clock.Advance(time.Second)
	}

	all := svc.AllDetailedTraces(50)
	require.Len(t, all, 3, "oldest session evicted")
	assert.Equal(t, ids[3], all[0].SessionID)
	assert.Equal(t, ids[1], all[2].SessionID)

	assert.Len(t, svc.AllDetailedTraces(2), 2)

	byConv := svc.TracesByConversation("c1")
	require.Len(t, byConv, 1)
	assert.Equal(t, ids[2], byConv[0].SessionID)

	_, ok := svc.DetailedTrace(ids[0])
	assert.False(t, ok)
}

func TestDetailedTrace_ReturnsCopy(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := svc.StartDetailedTrace("c", "u", "q")
	svc.AddTracePhase(id, "p1", "", "", nil)

	session, _ := svc.DetailedTrace(id)
	session.Phases[0].Name = "mutated"

	again, _ := svc.DetailedTrace(id)
	assert.Equal(t, "p1", again.Phases[0].Name)
	assert.IsType(t, []models.TracePhase{}, again.Phases)
}
