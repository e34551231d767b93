package observability

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/salessupport/salesagent/pkg/models"
)

// Metrics aggregates request outcomes into running counters.
//
// Counters are exact; derived values in a snapshot are rounded to two
// decimals for display. Every RecordRequest also updates the Prometheus
// collectors and enqueues the fresh snapshot for broadcast.
type Metrics struct {
	mu           sync.Mutex
	total        int64
	successful   int64
	failed       int64
	cumulativeMs int64
	start        time.Time
	now          func() time.Time

	out  Broadcaster
	prom *promMetrics
}

type promMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	traces   *prometheus.CounterVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	f := promauto.With(reg)
	return &promMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesagent",
			Name:      "summary_requests_total",
			Help:      "Sales summary requests by outcome.",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salesagent",
			Name:      "summary_duration_seconds",
			Help:      "Wall-clock time to produce a sales summary.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		traces: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesagent",
			Name:      "traces_total",
			Help:      "Trace events recorded by status.",
		}, []string{"status"}),
	}
}

func newMetrics(out Broadcaster, prom *promMetrics, now func() time.Time) *Metrics {
	return &Metrics{
		start: now().UTC(),
		now:   now,
		out:   out,
		prom:  prom,
	}
}

// RecordRequest counts one completed request and its duration.
func (m *Metrics) RecordRequest(success bool, durationMs int64) {
	if durationMs < 0 {
		durationMs = 0
	}

	m.mu.Lock()
	m.total++
	m.cumulativeMs += durationMs
	if success {
		m.successful++
	} else {
		m.failed++
	}
	// Enqueue never blocks; doing it under mu keeps snapshots in order.
	if m.out != nil {
		m.out.Enqueue(TopicMetrics, m.snapshotLocked())
	}
	m.mu.Unlock()

	status := "success"
	if !success {
		status = "failure"
	}
	m.prom.requests.WithLabelValues(status).Inc()
	m.prom.duration.Observe(float64(durationMs) / 1000)
}

// Snapshot derives the current statistics.
func (m *Metrics) Snapshot() models.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Metrics) snapshotLocked() models.MetricsSnapshot {
	now := m.now().UTC()
	uptime := now.Sub(m.start)

	var avg, rate float64
	if m.total > 0 {
		avg = float64(m.cumulativeMs) / float64(m.total)
		rate = float64(m.successful) / float64(m.total) * 100
	}

	return models.MetricsSnapshot{
		TotalRequests:       m.total,
		SuccessfulRequests:  m.successful,
		FailedRequests:      m.failed,
		SuccessRate:         round2(rate),
		AverageResponseTime: round2(avg),
		Uptime:              formatUptime(uptime),
		UptimeHours:         round2(uptime.Hours()),
		StartTime:           m.start,
		LastUpdated:         now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
