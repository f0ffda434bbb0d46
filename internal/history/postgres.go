package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the turns table on first connect. Kept additive so existing
// deployments are not disturbed.
const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id         BIGSERIAL PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    utterance  TEXT        NOT NULL,
    action     TEXT        NOT NULL,
    response   TEXT        NOT NULL DEFAULT '',
    status     TEXT        NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_started_at_idx ON turns (started_at DESC);
`

// PostgresStore is a Store backed by a PostgreSQL turns table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time assertion that PostgresStore satisfies the Store interface.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// WriteTurn implements Store.
func (s *PostgresStore) WriteTurn(ctx context.Context, t Turn) error {
	const q = `
		INSERT INTO turns (started_at, utterance, action, response, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, t.StartedAt, t.Utterance, t.Action, t.Response, t.Status)
	if err != nil {
		return fmt.Errorf("history: write turn: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT started_at, utterance, action, response, status
		FROM   turns
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.StartedAt, &t.Utterance, &t.Action, &t.Response, &t.Status)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	return turns, nil
}

// Ping reports whether the database is reachable. Used as a readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
