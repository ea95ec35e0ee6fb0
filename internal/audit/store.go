// Package audit persists audit events in a local SQLite database so the
// health endpoint can report recent failures across restarts.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

// busyTimeoutMS is the SQLite busy timeout in milliseconds.
const busyTimeoutMS = 5000

// Store is a SQLite-backed audit event store. It implements
// security.Sink. Safe for concurrent use: writes are serialised on a
// single connection.
type Store struct {
	db *sql.DB
}

var _ security.Sink = (*Store)(nil)

// Open opens (or creates) the audit database at path. The database uses
// WAL mode with a single connection; the schema is migrated automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// migrate creates the schema if it does not exist.
func migrate(db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		type      TEXT NOT NULL,
		actor     TEXT NOT NULL DEFAULT '',
		model     TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL DEFAULT '',
		detail    TEXT NOT NULL DEFAULT '',
		metadata  TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Record persists one event. Called by the audit logger after redaction.
func (s *Store) Record(event security.AuditEvent) error {
	metadata := "{}"
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			metadata = string(data)
		}
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO events (timestamp, type, actor, model, operation, detail, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.Type),
		event.Actor,
		event.Model,
		event.Operation,
		event.Detail,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// failureTypes are the event types the health endpoint reports.
var failureTypes = []string{
	string(security.EventToolError),
	string(security.EventAuthFailure),
	string(security.EventAccessDenied),
	string(security.EventRateLimit),
}

// RecentFailures returns the most recent failure events, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]security.AuditEvent, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, type, actor, model, operation, detail, metadata
		 FROM events
		 WHERE type IN (?, ?, ?, ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		failureTypes[0], failureTypes[1], failureTypes[2], failureTypes[3], limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query failures: %w", err)
	}
	defer rows.Close()

	var events []security.AuditEvent
	for rows.Next() {
		var (
			ts, typ, metadata string
			event             security.AuditEvent
		)
		if err := rows.Scan(&ts, &typ, &event.Actor, &event.Model, &event.Operation, &event.Detail, &metadata); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		event.Type = security.EventType(typ)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
		if metadata != "{}" && metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
