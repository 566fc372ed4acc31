// Package sqlite is a database/sql-backed eventlog.Store using the pure-Go
// modernc.org/sqlite driver (no cgo), grounded on the teacher's pack-wide
// preference for plain database/sql stores (see
// vanducng-goclaw/internal/store/pg) with idempotent
// CREATE TABLE/INDEX IF NOT EXISTS DDL applied on Open rather than a
// migration framework, per spec.md §6.1.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowcore-dev/flowcore/eventlog"
	"github.com/flowcore-dev/flowcore/flow"
)

//go:embed schema.sql
var schemaSQL string

// nowFunc is overridable in tests that need deterministic timestamps.
var nowFunc = func() time.Time { return time.Now().UTC() }

// Store is a SQLite-backed eventlog.Store.
type Store struct {
	db *sql.DB
}

var _ eventlog.Store = (*Store)(nil)

// Open opens (creating if necessary) a SQLite database at dsn and applies
// the event log schema idempotently. dsn is passed verbatim to
// modernc.org/sqlite, e.g. "file:/path/to/flow.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, flow.New(flow.KindStore, "sqlite.Open", "failed to open database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY storms.

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, flow.New(flow.KindStore, "sqlite.Open", "failed to apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, sessionID flow.SessionId, event flow.Event) (int, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to marshal payload", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var nextPos int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM eventlog_events WHERE session_id = ?`, string(sessionID))
	if err := row.Scan(&nextPos); err != nil {
		return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to compute next position", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = nowFunc()
	}

	if nextPos == 0 {
		workflowName := ""
		if name, ok := event.Payload["workflow"].(string); ok {
			workflowName = name
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO eventlog_sessions (session_id, workflow_name, created_at_ms, metadata)
			VALUES (?, ?, ?, '{}')
			ON CONFLICT(session_id) DO NOTHING`,
			string(sessionID), workflowName, timestamp.UnixMilli()); err != nil {
			return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to insert session", err)
		}
	}
	if event.Name == flow.EventFlowCompleted {
		if _, err := tx.ExecContext(ctx, `
			UPDATE eventlog_sessions SET completed_at_ms = ? WHERE session_id = ?`,
			timestamp.UnixMilli(), string(sessionID)); err != nil {
			return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to update session completion", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO eventlog_events (session_id, position, id, name, payload, timestamp_ms, caused_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(sessionID), nextPos, string(event.ID), event.Name, string(payload), timestamp.UnixMilli(), string(event.CausedBy))
	if err != nil {
		return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to insert event", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, flow.New(flow.KindStore, "sqlite.Append", "failed to commit transaction", err)
	}
	return nextPos, nil
}

func (s *Store) GetEvents(ctx context.Context, sessionID flow.SessionId) ([]flow.SerializedEvent, error) {
	return s.query(ctx, `
		SELECT position, id, name, payload, timestamp_ms, caused_by
		FROM eventlog_events WHERE session_id = ? ORDER BY position ASC`, sessionID, string(sessionID))
}

func (s *Store) GetEventsFrom(ctx context.Context, sessionID flow.SessionId, fromPosition int) ([]flow.SerializedEvent, error) {
	return s.query(ctx, `
		SELECT position, id, name, payload, timestamp_ms, caused_by
		FROM eventlog_events WHERE session_id = ? AND position >= ? ORDER BY position ASC`,
		sessionID, string(sessionID), fromPosition)
}

func (s *Store) query(ctx context.Context, query string, sessionID flow.SessionId, args ...any) ([]flow.SerializedEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, flow.New(flow.KindStore, "sqlite.query", "failed to query events", err)
	}
	defer rows.Close()

	var out []flow.SerializedEvent
	for rows.Next() {
		var (
			position     int
			id           string
			name         string
			payloadJSON  string
			timestampMs  int64
			causedBy     string
		)
		if err := rows.Scan(&position, &id, &name, &payloadJSON, &timestampMs, &causedBy); err != nil {
			return nil, flow.New(flow.KindStore, "sqlite.query", "failed to scan row", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, flow.New(flow.KindStore, "sqlite.query", "failed to unmarshal payload", err)
		}
		out = append(out, flow.SerializedEvent{
			ID:              flow.EventId(id),
			SessionID:       sessionID,
			Position:        position,
			Name:            name,
			Payload:         payload,
			TimestampMillis: timestampMs,
			CausedBy:        flow.EventId(causedBy),
		})
	}
	return out, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context) ([]flow.SessionId, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM eventlog_sessions ORDER BY created_at_ms DESC`)
	if err != nil {
		return nil, flow.New(flow.KindStore, "sqlite.ListSessions", "failed to query sessions", err)
	}
	defer rows.Close()

	var ids []flow.SessionId
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, flow.New(flow.KindStore, "sqlite.ListSessions", "failed to scan session id", err)
		}
		ids = append(ids, flow.SessionId(id))
	}
	return ids, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, sessionID flow.SessionId) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM eventlog_events WHERE session_id = ?`, string(sessionID)); err != nil {
		return flow.New(flow.KindStore, "sqlite.DeleteSession", fmt.Sprintf("failed to delete session %s", sessionID), err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM eventlog_sessions WHERE session_id = ?`, string(sessionID)); err != nil {
		return flow.New(flow.KindStore, "sqlite.DeleteSession", fmt.Sprintf("failed to delete session %s", sessionID), err)
	}
	return nil
}
