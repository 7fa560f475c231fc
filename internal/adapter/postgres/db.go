package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the part of *pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool and checks that the server answers.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          BIGSERIAL PRIMARY KEY,
	start_url   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS extracted_matches (
	id          BIGSERIAL PRIMARY KEY,
	run_id      BIGINT NOT NULL REFERENCES scrape_runs(id) ON DELETE CASCADE,
	page_url    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	value       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS page_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	run_id      BIGINT NOT NULL REFERENCES scrape_runs(id) ON DELETE CASCADE,
	page_url    TEXT NOT NULL,
	html        TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS failed_urls (
	run_id      BIGINT NOT NULL REFERENCES scrape_runs(id) ON DELETE CASCADE,
	url         TEXT NOT NULL,
	reason      TEXT NOT NULL,
	PRIMARY KEY (run_id, url)
);
`
