// Package postgres stores the interaction audit log in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new PostgreSQL connection pool
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id               UUID PRIMARY KEY,
	session_id       TEXT NOT NULL DEFAULT '',
	query            TEXT NOT NULL,
	fallback_tier    TEXT NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	confidence       DOUBLE PRECISION NOT NULL,
	chunks_retrieved INTEGER NOT NULL,
	blocked          BOOLEAN NOT NULL,
	violation_count  INTEGER NOT NULL,
	citation_urls    TEXT[] NOT NULL DEFAULT '{}',
	total_time_ms    BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS interactions_session_created_idx
	ON interactions (session_id, created_at DESC);
`

// Migrate creates the audit log table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close closes the connection pool
func (db *DB) Close() {
	db.Pool.Close()
}
