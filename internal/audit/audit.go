// Package audit records one row per handled request in a SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/langsock/internal/logger"
)

// Entry describes one request/response exchange.
type Entry struct {
	Time      time.Time
	ConnID    string
	RequestID string
	Command   string
	OK        bool
	Duration  time.Duration
	BytesIn   int
	BytesOut  int
}

// Sink writes entries to SQLite. Writes are best-effort: failures are logged
// and never reported to the caller.
type Sink struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
	path   string
	closed bool
	log    *logger.Logger
}

// Open opens (or creates) the audit database at path.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// database/sql pools connections; SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	insert, err := db.Prepare(`INSERT INTO requests
		(ts, conn_id, request_id, cmd, ok, duration_ms, bytes_in, bytes_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert: %w", err)
	}

	return &Sink{
		db:     db,
		insert: insert,
		path:   path,
		log:    logger.Global().WithPrefix("audit"),
	}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		conn_id TEXT NOT NULL,
		request_id TEXT,
		cmd TEXT NOT NULL,
		ok BOOLEAN NOT NULL,
		duration_ms REAL NOT NULL,
		bytes_in INTEGER NOT NULL DEFAULT 0,
		bytes_out INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_requests_cmd ON requests(cmd);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *Sink) Path() string {
	return s.path
}

// Record stores e. It is safe for concurrent use and a no-op after Close.
func (s *Sink) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	durationMS := float64(e.Duration) / float64(time.Millisecond)
	if _, err := s.insert.Exec(e.Time.UTC(), e.ConnID, e.RequestID, e.Command, e.OK, durationMS, e.BytesIn, e.BytesOut); err != nil {
		s.log.Warn("failed to record request %s on %s: %v", e.Command, e.ConnID, err)
	}
}

// Count returns the number of recorded requests.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}

// Recent returns up to limit entries, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, conn_id, COALESCE(request_id, ''), cmd, ok, duration_ms, bytes_in, bytes_out
		FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS float64
		if err := rows.Scan(&e.Time, &e.ConnID, &e.RequestID, &e.Command, &e.OK, &durationMS, &e.BytesIn, &e.BytesOut); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		e.Duration = time.Duration(durationMS * float64(time.Millisecond))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database. Calling it more than once is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.insert.Close(); err != nil {
		s.log.Warn("failed to close audit statement: %v", err)
	}
	return s.db.Close()
}
