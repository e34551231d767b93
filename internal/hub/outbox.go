package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultOutboxSize is the queue depth used when none is given.
const DefaultOutboxSize = 256

// publishTimeout bounds one delivery attempt from the drain goroutine.
const publishTimeout = 30 * time.Second

// Outbox decouples producers from publishing. Enqueue never blocks; a
// single goroutine drains the queue into the Publisher in order. Publish
// failures are logged and discarded.
type Outbox struct {
	pub   Publisher
	queue chan Message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewOutbox starts the drain goroutine. Call Close to stop it.
func NewOutbox(pub Publisher, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		pub:   pub,
		queue: make(chan Message, size),
		done:  make(chan struct{}),
	}
	go o.drain()
	return o
}

// Enqueue schedules a message for publishing. It reports false when the
// outbox is closed or full.
func (o *Outbox) Enqueue(topic string, payload any) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}

	select {
	case o.queue <- Message{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()}:
		return true
	default:
		log.Warn().Str("topic", topic).Msg("Outbox full, dropping message")
		return false
	}
}

// Close stops accepting messages and waits until queued ones are delivered
// or ctx is done.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) drain() {
	defer close(o.done)
	for msg := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := o.pub.Publish(ctx, msg.Topic, msg.Payload); err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic).Msg("Publish failed")
		}
		cancel()
	}
}
