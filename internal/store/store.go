// Package store provides the durable key-value interface used to mirror
// conversation transcripts, with in-memory, SQLite, Redis and PostgreSQL
// implementations.
//
// Keys are flat strings such as "transcript:{conversation}:{entry}".
// Read and Delete take a glob pattern where '*' matches any run of
// characters, '?' matches one character and '\' escapes the next one.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/internal/config"
)

// Item is one stored key and its value.
type Item struct {
	Key   string
	Value []byte
}

// Store is the durable key-value interface. Implementations must be safe
// for concurrent use.
type Store interface {
	// Write upserts every item.
	Write(ctx context.Context, items ...Item) error

	// Read returns every item whose key matches pattern, sorted by key.
	Read(ctx context.Context, pattern string) ([]Item, error)

	// Delete removes every key matching pattern and reports how many were removed.
	Delete(ctx context.Context, pattern string) (int, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", config.StorageMemory:
		s = NewMemoryStore()
	case config.StorageSQLite:
		s, err = NewSQLiteStore(ctx, cfg.DSN)
	case config.StorageRedis:
		s, err = NewRedisStore(ctx, cfg.DSN)
	case config.StoragePostgres:
		s, err = NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Msg("✅ Durable store initialized")
	return s, nil
}

// EscapePattern escapes glob metacharacters so s matches only itself.
func EscapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// compilePattern compiles a key pattern. No separators are configured, so
// '*' also matches ':'.
func compilePattern(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}
	return g, nil
}

// globToLike converts a key pattern to a SQL LIKE expression using '\' as
// the escape character.
func globToLike(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			writeLikeLiteral(&b, r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		default:
			writeLikeLiteral(&b, r)
		}
	}
	if escaped {
		writeLikeLiteral(&b, '\\')
	}
	return b.String()
}

func writeLikeLiteral(b *strings.Builder, r rune) {
	switch r {
	case '%', '_', '\\':
		b.WriteByte('\\')
	}
	b.WriteRune(r)
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}
