package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/salessupport/salesagent/internal/config"
	"github.com/salessupport/salesagent/internal/store"
	"github.com/salessupport/salesagent/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingStore holds the first Read until release is closed.
type stallingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingStore) Read(ctx context.Context, pattern string) ([]store.Item, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.Read(ctx, pattern)
}

func TestStopJanitorWaitsForRunningCycle(t *testing.T) {
	durable := &stallingStore{
		Store:   store.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ts, err := transcript.New(durable)
	require.NoError(t, err)

	stop, err := startJanitor(context.Background(), config.RetentionConfig{
		MaxAge:   time.Hour,
		Interval: time.Hour,
	}, ts)
	require.NoError(t, err)

	select {
	case <-durable.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor cycle did not start")
	}

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(durable.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return after the cycle finished")
	}
}

func TestStopJanitorDisabledIsNoop(t *testing.T) {
	ts, err := transcript.New(store.NewMemoryStore())
	require.NoError(t, err)

	stop, err := startJanitor(context.Background(), config.RetentionConfig{}, ts)
	require.NoError(t, err)
	assert.NotPanics(t, stop)
}
