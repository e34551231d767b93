// Package observability records request metrics, recent traces, the agent
// registry and detailed per-turn trace sessions, and pushes every change
// to dashboard subscribers.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/eventlog"
	"github.com/salessupport/salesagent/internal/hub"
	"github.com/salessupport/salesagent/pkg/models"
)

// Topics re-exported for callers that only import this package.
const (
	TopicTrace                = hub.TopicTrace
	TopicMetrics              = hub.TopicMetrics
	TopicAgent                = hub.TopicAgent
	TopicTracePhase           = hub.TopicTracePhase
	TopicTraceSessionComplete = hub.TopicTraceSessionComplete
)

const (
	// DefaultTraceCapacity is the number of recent trace events retained.
	DefaultTraceCapacity = 100
	// DefaultSessionCapacity is the number of detailed trace sessions retained.
	DefaultSessionCapacity = 200
)

// Broadcaster queues a payload for asynchronous delivery. *hub.Outbox
// satisfies it.
type Broadcaster interface {
	Enqueue(topic string, payload any) bool
}

// Service is the observability facade shared by the HTTP API, the bot and
// the orchestrator.
type Service struct {
	metrics  *Metrics
	traces   *eventlog.Log[models.TraceEvent]
	agents   *agentRegistry
	sessions *sessionStore
	out      Broadcaster
	prom     *promMetrics
	now      func() time.Time
}

type options struct {
	registerer      prometheus.Registerer
	traceCapacity   int
	sessionCapacity int
	now             func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithRegisterer registers the Prometheus collectors with reg. Without it
// the collectors are created but not registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTraceCapacity overrides DefaultTraceCapacity.
func WithTraceCapacity(n int) Option {
	return func(o *options) { o.traceCapacity = n }
}

// WithSessionCapacity overrides DefaultSessionCapacity.
func WithSessionCapacity(n int) Option {
	return func(o *options) { o.sessionCapacity = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates the service. out may be nil to disable broadcasting.
func New(out Broadcaster, opts ...Option) *Service {
	o := options{
		traceCapacity:   DefaultTraceCapacity,
		sessionCapacity: DefaultSessionCapacity,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	prom := newPromMetrics(o.registerer)
	return &Service{
		metrics:  newMetrics(out, prom, o.now),
		traces:   eventlog.New[models.TraceEvent](o.traceCapacity),
		agents:   newAgentRegistry(),
		sessions: newSessionStore(o.sessionCapacity),
		out:      out,
		prom:     prom,
		now:      o.now,
	}
}

// Metrics returns the request metrics aggregator.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// RecordRequest forwards to the metrics aggregator.
func (s *Service) RecordRequest(success bool, durationMs int64) {
	s.metrics.RecordRequest(success, durationMs)
}

// Snapshot forwards to the metrics aggregator.
func (s *Service) Snapshot() models.MetricsSnapshot {
	return s.metrics.Snapshot()
}

// RecordTrace appends a trace event and broadcasts it.
func (s *Service) RecordTrace(operation, status string, durationMs int64, extra map[string]string) {
	ev := models.TraceEvent{
		Timestamp:  s.now().UTC(),
		Operation:  operation,
		Status:     status,
		StatusIcon: StatusIcon(status),
		DurationMs: durationMs,
		Extra:      cloneMap(extra),
	}
	s.traces.Append(ev)
	s.prom.traces.WithLabelValues(status).Inc()

	log.Debug().
		Str("operation", operation).
		Str("status", status).
		Int64("duration_ms", durationMs).
		Msg("📊 Trace recorded")

	s.broadcast(TopicTrace, ev)
}

// RecentTraces returns up to count trace events, newest first.
func (s *Service) RecentTraces(count int) []models.TraceEvent {
	return s.traces.Recent(count)
}

func (s *Service) broadcast(topic string, payload any) {
	if s.out != nil {
		s.out.Enqueue(topic, payload)
	}
}

// StatusIcon maps a trace status to the icon shown on the dashboard.
func StatusIcon(status string) string {
	switch status {
	case "success", "completed", "✅":
		return "✅"
	case "failed", "error", "❌":
		return "❌"
	case "warning", "⚠️":
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
