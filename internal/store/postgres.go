package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS salesagent_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists keys in a PostgreSQL table through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Write(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO salesagent_kv (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			it.Key, it.Value)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert %s: %w", it.Key, err)
		}
	}
	return nil
}

func (p *PostgresStore) Read(ctx context.Context, pattern string) ([]Item, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM salesagent_kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, globToLike(pattern))
	if err != nil {
		return nil, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Value); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, pattern string) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM salesagent_kv WHERE key LIKE $1 ESCAPE '\'`, globToLike(pattern))
	if err != nil {
		return 0, fmt.Errorf("delete kv: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
