// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit persists the proxy's dispatch trail to a local SQLite
// database.
//
// Each CLI dispatch and each git reverse-proxy request appends one
// row. Entries record the shape of a request — tool, resource, the
// leading argument, argument count, exit code, duration — and never
// argument values beyond argv[0], output, or credential material. The
// database is WAL-journaled so concurrent requests append without
// blocking readers.
//
// The store is optional: when no database path is configured the
// proxy audits through slog alone.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Entry is one audit record.
type Entry struct {
	Time       time.Time
	Kind       string // "cli" or "git"
	Tool       string
	Resource   string
	Argv0      string
	Argc       int
	ExitCode   int
	Status     int // HTTP status sent to the caller
	DurationMS int64
}

// Recorder is the subset of Store the request path needs. Callers
// that hold the interface guard it with a nil check; a nil *Store must
// be converted to a nil Recorder, since Record on a nil *Store panics.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Store is a SQLite-backed audit log. The audit trail is strictly
// append-from-one-process, so a single connection guarded by a mutex
// is sufficient; WAL mode keeps external readers unblocked.
type Store struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	tool        TEXT    NOT NULL,
	resource    TEXT    NOT NULL,
	argv0       TEXT    NOT NULL,
	argc        INTEGER NOT NULL,
	exit_code   INTEGER NOT NULL,
	status      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_at ON audit (at);
`

// Open creates or opens the audit database at path and applies the
// schema. The caller must Close the store on shutdown.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit: applying schema: %w", err)
	}

	logger.Info("audit store opened", "path", path)
	return &Store{conn: conn, logger: logger}, nil
}

// Record appends one entry. Failures are logged, not propagated — the
// dispatch that produced the entry has already completed and auditing
// must never fail a request.
func (s *Store) Record(ctx context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}

	err := sqlitex.Execute(s.conn,
		`INSERT INTO audit (at, kind, tool, resource, argv0, argc, exit_code, status, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.Time.UnixMilli(),
				entry.Kind,
				entry.Tool,
				entry.Resource,
				entry.Argv0,
				entry.Argc,
				entry.ExitCode,
				entry.Status,
				entry.DurationMS,
			},
		})
	if err != nil {
		s.logger.Warn("audit record failed", "error", err, "tool", entry.Tool)
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("audit: store closed")
	}

	var entries []Entry
	err := sqlitex.Execute(s.conn,
		`SELECT at, kind, tool, resource, argv0, argc, exit_code, status, duration_ms
		 FROM audit ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, Entry{
					Time:       time.UnixMilli(stmt.ColumnInt64(0)),
					Kind:       stmt.ColumnText(1),
					Tool:       stmt.ColumnText(2),
					Resource:   stmt.ColumnText(3),
					Argv0:      stmt.ColumnText(4),
					Argc:       stmt.ColumnInt(5),
					ExitCode:   stmt.ColumnInt(6),
					Status:     stmt.ColumnInt(7),
					DurationMS: stmt.ColumnInt64(8),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	return entries, nil
}

// Close releases the connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("audit: close: %w", err)
	}
	return nil
}

var _ Recorder = (*Store)(nil)
