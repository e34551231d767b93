// Package hub fans real-time events out to dashboard clients.
//
// Producers publish {topic, payload} messages. The Hub delivers them to
// every live subscriber (WebSocket and SSE clients) without blocking and
// forwards them to any registered sinks such as outbound webhooks.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Topics published by the notification and observability services.
const (
	TopicNotification         = "NotificationUpdate"
	TopicTrace                = "TraceUpdate"
	TopicMetrics              = "MetricsUpdate"
	TopicAgent                = "AgentUpdate"
	TopicTracePhase           = "TracePhaseUpdate"
	TopicTraceSessionComplete = "TraceSessionComplete"
)

// Message is one published event.
type Message struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers a payload to everyone listening on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Sink receives every published message, e.g. a webhook forwarder.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Hub is the in-process Publisher used by the server.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Message]struct{}
	sinks       []Sink
}

var _ Publisher = (*Hub)(nil)

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[chan Message]struct{}),
	}
}

// AddSink registers a sink that receives every published message.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
	log.Info().Str("sink", s.Name()).Msg("Registered hub sink")
}

// Publish delivers the message to subscribers (dropping it for slow ones)
// and then to each sink. Sink errors are joined and returned.
func (h *Hub) Publish(ctx context.Context, topic string, payload any) error {
	msg := Message{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()}

	h.mu.RLock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			// subscriber is too slow, drop this message for them
		}
	}
	sinks := make([]Sink, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe returns a channel that receives new messages as they are published.
// Call Unsubscribe when done to avoid leaks.
func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	_, ok := h.subscribers[ch]
	delete(h.subscribers, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
