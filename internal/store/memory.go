package store

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe in-memory Store. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Write(_ context.Context, items ...Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.data[it.Key] = append([]byte(nil), it.Value...)
	}
	return nil
}

func (m *MemoryStore) Read(_ context.Context, pattern string) ([]Item, error) {
	g, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var items []Item
	for k, v := range m.data {
		if g.Match(k) {
			items = append(items, Item{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	m.mu.RUnlock()

	sortItems(items)
	return items, nil
}

func (m *MemoryStore) Delete(_ context.Context, pattern string) (int, error) {
	g, err := compilePattern(pattern)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if g.Match(k) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
