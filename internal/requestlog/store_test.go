package requestlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestWriter(t *testing.T) *SQLWriter {
	t.Helper()
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "requests.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestSQLiteWriter_Write(t *testing.T) {
	w := newTestWriter(t)

	err := w.Write(context.Background(), Entry{
		TraceID:   "trace-1",
		Endpoint:  "records",
		BaseID:    "appABCDEFGHIJKLMN",
		TableID:   "tblABCDEFGHIJKLMN",
		Records:   242,
		Pages:     3,
		CacheHit:  true,
		LatencyMS: 412,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	var count int
	var endpoint string
	var cacheHit int
	row := w.db.QueryRow(`SELECT COUNT(*), endpoint, cache_hit FROM relay_requests`)
	if err := row.Scan(&count, &endpoint, &cacheHit); err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if count != 1 || endpoint != "records" || cacheHit != 1 {
		t.Errorf("stored row wrong: count=%d endpoint=%q cache_hit=%d", count, endpoint, cacheHit)
	}
}

func TestSQLiteWriter_DefaultsCreatedAt(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Write(context.Background(), Entry{Endpoint: "chat", Model: "claude-3-opus-20240229"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var created string
	if err := w.db.QueryRow(`SELECT created_at FROM relay_requests`).Scan(&created); err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if created == "" {
		t.Error("created_at not defaulted")
	}
}

func TestSQLiteWriter_ErrorEntries(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Write(context.Background(), Entry{
		Endpoint: "records",
		Error:    "airtable timeout: context deadline exceeded",
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var msg string
	if err := w.db.QueryRow(`SELECT error_message FROM relay_requests`).Scan(&msg); err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if msg == "" {
		t.Error("error message not stored")
	}
}

func TestNoopWriter(t *testing.T) {
	if err := (NoopWriter{}).Write(context.Background(), Entry{Endpoint: "records"}); err != nil {
		t.Errorf("noop write: %v", err)
	}
}
