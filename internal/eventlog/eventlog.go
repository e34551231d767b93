// Package eventlog provides a fixed-capacity, thread-safe event history.
//
// A Log keeps the last N appended items in arrival order and drops the
// oldest item once the capacity is exceeded. Reads return copies, so a
// caller can never observe a partially applied append.
package eventlog

import (
	"sync"
)

// Log is a bounded FIFO of items of type T backed by a ring buffer.
type Log[T any] struct {
	mu   sync.RWMutex
	buf  []T
	head int // index of the oldest item
	size int
}

// New creates a log that retains up to capacity items. A non-positive
// capacity is treated as 1.
func New[T any](capacity int) *Log[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Log[T]{buf: make([]T, capacity)}
}

// Append adds an item. On a full log the oldest item is overwritten in place.
func (l *Log[T]) Append(item T) {
	l.mu.Lock()
	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = item
		l.size++
	} else {
		l.buf[l.head] = item
		l.head = (l.head + 1) % len(l.buf)
	}
	l.mu.Unlock()
}

// Recent returns the last n items, newest first. n <= 0 or n larger than
// the current size returns everything.
func (l *Log[T]) Recent(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n = l.clamp(n)
	result := make([]T, n)
	for i := range result {
		result[i] = l.at(l.size - 1 - i)
	}
	return result
}

// Chronological returns the last n items, oldest first.
func (l *Log[T]) Chronological(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n = l.clamp(n)
	result := make([]T, n)
	start := l.size - n
	for i := range result {
		result[i] = l.at(start + i)
	}
	return result
}

// Matching returns every retained item for which pred is true, oldest first.
func (l *Log[T]) Matching(pred func(T) bool) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []T
	for i := 0; i < l.size; i++ {
		if item := l.at(i); pred(item) {
			result = append(result, item)
		}
	}
	return result
}

// Len returns the number of retained items.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the maximum number of retained items.
func (l *Log[T]) Capacity() int {
	return len(l.buf)
}

// Clear drops all retained items.
func (l *Log[T]) Clear() {
	l.mu.Lock()
	clear(l.buf)
	l.head, l.size = 0, 0
	l.mu.Unlock()
}

// at returns the i-th oldest item. mu must be held.
func (l *Log[T]) at(i int) T {
	return l.buf[(l.head+i)%len(l.buf)]
}

func (l *Log[T]) clamp(n int) int {
	if n <= 0 || n > l.size {
		return l.size
	}
	return n
}
