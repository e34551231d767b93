// Package notify records user-facing progress notifications for long
// running operations and broadcasts them to dashboard subscribers.
//
// Every event is appended to a bounded history before it is queued for
// broadcast, so a failed or dropped broadcast never loses history.
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/eventlog"
	"github.com/salessupport/salesagent/internal/hub"
	"github.com/salessupport/salesagent/pkg/models"
)

// DefaultCapacity is the number of notifications retained in history.
const DefaultCapacity = 50

// Enqueuer queues a payload for asynchronous delivery. *hub.Outbox
// satisfies it.
type Enqueuer interface {
	Enqueue(topic string, payload any) bool
}

// Broadcaster builds typed notification events, keeps the recent history
// and hands each event to the outbound queue.
type Broadcaster struct {
	history *eventlog.Log[models.NotificationEvent]
	out     Enqueuer
	now     func() time.Time
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(b *Broadcaster) { b.history = eventlog.New[models.NotificationEvent](n) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

// NewBroadcaster creates a broadcaster. out may be nil to keep history only.
func NewBroadcaster(out Enqueuer, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		history: eventlog.New[models.NotificationEvent](DefaultCapacity),
		out:     out,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Progress reports that an operation is percent complete. percent is
// clamped to 0..100.
func (b *Broadcaster) Progress(operationID, message string, percent int) models.NotificationEvent {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return b.emit(models.NotificationEvent{
		OperationID:     operationID,
		Kind:            models.NotificationProgress,
		Message:         message,
		ProgressPercent: percent,
		Severity:        models.SeverityInfo,
	})
}

// Success reports that an operation finished. payload is optional.
func (b *Broadcaster) Success(operationID, message string, payload any) models.NotificationEvent {
	return b.emit(models.NotificationEvent{
		OperationID:     operationID,
		Kind:            models.NotificationSuccess,
		Message:         message,
		ProgressPercent: 100,
		Severity:        models.SeveritySuccess,
		Payload:         payload,
	})
}

// Error reports that an operation failed. detail is optional.
func (b *Broadcaster) Error(operationID, message, detail string) models.NotificationEvent {
	return b.emit(models.NotificationEvent{
		OperationID: operationID,
		Kind:        models.NotificationError,
		Message:     message,
		Severity:    models.SeverityError,
		ErrorDetail: detail,
	})
}

// Warning reports a non-fatal problem.
func (b *Broadcaster) Warning(operationID, message string) models.NotificationEvent {
	return b.emit(models.NotificationEvent{
		OperationID: operationID,
		Kind:        models.NotificationWarning,
		Message:     message,
		Severity:    models.SeverityWarning,
	})
}

// Info reports an informational message.
func (b *Broadcaster) Info(operationID, message string) models.NotificationEvent {
	return b.emit(models.NotificationEvent{
		OperationID: operationID,
		Kind:        models.NotificationInfo,
		Message:     message,
		Severity:    models.SeverityInfo,
	})
}

// History returns up to count recent notifications, newest first. count
// is capped at the history capacity; count <= 0 returns everything retained.
func (b *Broadcaster) History(count int) []models.NotificationEvent {
	if count > b.history.Capacity() {
		count = b.history.Capacity()
	}
	return b.history.Recent(count)
}

// HistoryForOperation returns every retained notification of one
// operation, oldest first.
func (b *Broadcaster) HistoryForOperation(operationID string) []models.NotificationEvent {
	return b.history.Matching(func(ev models.NotificationEvent) bool {
		return ev.OperationID == operationID
	})
}

// Clear drops the notification history.
func (b *Broadcaster) Clear() {
	b.history.Clear()
}

func (b *Broadcaster) emit(ev models.NotificationEvent) models.NotificationEvent {
	ev.ID = uuid.New().String()
	ev.Timestamp = b.now().UTC()

	b.history.Append(ev)

	log.Debug().
		Str("operation", ev.OperationID).
		Str("type", string(ev.Kind)).
		Int("progress", ev.ProgressPercent).
		Msg(ev.Message)

	if b.out != nil && !b.out.Enqueue(hub.TopicNotification, ev) {
		log.Warn().Str("operation", ev.OperationID).Msg("Notification not queued for broadcast")
	}
	return ev
}
