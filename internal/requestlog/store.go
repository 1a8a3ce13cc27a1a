// Package requestlog persists per-request observability events to a SQL
// backend. It records what the relay did, never what it cached; cached
// payloads stay in memory only.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

// Entry is one relayed request.
type Entry struct {
	TraceID   string
	Endpoint  string // "records" or "chat"
	BaseID    string
	TableID   string
	Model     string
	Records   int
	Pages     int
	CacheHit  bool
	LatencyMS int64
	Error     string
	CreatedAt time.Time
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all writes. Used when no driver is configured.
type NoopWriter struct{}

// Write implements Writer.
func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite or Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (and initialises) a SQLite-backed writer.
// dsn can be a file path or SQLite DSN; empty uses a local default.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "dashrelay-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens (and initialises) a Postgres-backed writer.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS relay_requests (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	endpoint TEXT NOT NULL,
	base_id TEXT,
	table_id TEXT,
	model TEXT,
	records INTEGER NOT NULL,
	pages INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS relay_requests (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	endpoint TEXT NOT NULL,
	base_id TEXT,
	table_id TEXT,
	model TEXT,
	records INTEGER NOT NULL,
	pages INTEGER NOT NULL,
	cache_hit BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("create relay_requests table: %w", err)
	}
	return nil
}

// Write implements Writer.
func (w *SQLWriter) Write(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
INSERT INTO relay_requests
	(trace_id, endpoint, base_id, table_id, model, records, pages, cache_hit, latency_ms, error_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	args := []any{
		e.TraceID, e.Endpoint, e.BaseID, e.TableID, e.Model,
		e.Records, e.Pages, boolArg(w.dialect, e.CacheHit),
		e.LatencyMS, e.Error, e.CreatedAt,
	}
	if w.dialect == "postgres" {
		query = `
INSERT INTO relay_requests
	(trace_id, endpoint, base_id, table_id, model, records, pages, cache_hit, latency_ms, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`
	}

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert request log entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (w *SQLWriter) Close() error {
	return w.db.Close()
}

// boolArg adapts booleans for SQLite, which stores them as integers.
func boolArg(dialect string, b bool) any {
	if dialect == "postgres" {
		return b
	}
	if b {
		return 1
	}
	return 0
}
