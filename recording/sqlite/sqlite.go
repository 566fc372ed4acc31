// Package sqlite is a database/sql-backed recording.Store on the same
// modernc.org/sqlite driver and idempotent-DDL convention as
// eventlog/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/recording"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed recording.Store.
type Store struct {
	db *sql.DB
}

var _ recording.Store = (*Store)(nil)

// Open opens (creating if necessary) a SQLite database at dsn and applies
// the recording schema idempotently.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, flow.New(flow.KindStore, "sqlite.Open", "failed to open database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, flow.New(flow.KindStore, "sqlite.Open", "failed to apply schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context, hash flow.RecordingHash) (flow.RecordingEntry, bool, error) {
	var (
		requestJSON string
		resultJSON  string
		recordedMs  int64
		finalized   bool
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT request, result, recorded_at_ms, finalized
		FROM recording_entries WHERE hash = ?`, string(hash))
	if err := row.Scan(&requestJSON, &resultJSON, &recordedMs, &finalized); err == sql.ErrNoRows {
		return flow.RecordingEntry{}, false, nil
	} else if err != nil {
		return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to query entry", err)
	}
	if !finalized {
		return flow.RecordingEntry{}, false, nil
	}

	var request map[string]any
	if err := json.Unmarshal([]byte(requestJSON), &request); err != nil {
		return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to unmarshal request", err)
	}
	var result flow.AgentRunResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to unmarshal result", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk FROM recording_chunks WHERE hash = ? ORDER BY seq ASC`, string(hash))
	if err != nil {
		return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to query chunks", err)
	}
	defer rows.Close()

	var chunks []flow.AgentStreamEvent
	for rows.Next() {
		var chunkJSON string
		if err := rows.Scan(&chunkJSON); err != nil {
			return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to scan chunk", err)
		}
		var chunk flow.AgentStreamEvent
		if err := json.Unmarshal([]byte(chunkJSON), &chunk); err != nil {
			return flow.RecordingEntry{}, false, flow.New(flow.KindStore, "sqlite.Load", "failed to unmarshal chunk", err)
		}
		chunks = append(chunks, chunk)
	}

	return flow.RecordingEntry{
		Hash:       hash,
		Request:    request,
		Chunks:     chunks,
		Result:     result,
		RecordedAt: time.UnixMilli(recordedMs).UTC(),
	}, true, rows.Err()
}

func (s *Store) Save(ctx context.Context, entry flow.RecordingEntry) error {
	requestJSON, err := json.Marshal(entry.Request)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to marshal request", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to marshal result", err)
	}

	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = nowFunc()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recording_chunks WHERE hash = ?`, string(entry.Hash)); err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to delete prior chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recording_entries WHERE hash = ?`, string(entry.Hash)); err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to delete prior entry", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recording_entries (hash, request, result, recorded_at_ms, finalized)
		VALUES (?, ?, ?, ?, 1)`,
		string(entry.Hash), string(requestJSON), string(resultJSON), recordedAt.UnixMilli()); err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to insert entry", err)
	}
	for seq, chunk := range entry.Chunks {
		chunkJSON, err := json.Marshal(chunk)
		if err != nil {
			return flow.New(flow.KindStore, "sqlite.Save", "failed to marshal chunk", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO recording_chunks (hash, seq, chunk) VALUES (?, ?, ?)`,
			string(entry.Hash), seq, string(chunkJSON)); err != nil {
			return flow.New(flow.KindStore, "sqlite.Save", "failed to insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return flow.New(flow.KindStore, "sqlite.Save", "failed to commit transaction", err)
	}
	return nil
}

func (s *Store) StartRecording(ctx context.Context, hash flow.RecordingHash, request map[string]any) error {
	var finalized bool
	row := s.db.QueryRowContext(ctx, `SELECT finalized FROM recording_entries WHERE hash = ?`, string(hash))
	if err := row.Scan(&finalized); err == nil && finalized {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recording_chunks WHERE hash = ?`, string(hash)); err != nil {
		return flow.New(flow.KindStore, "sqlite.StartRecording", "failed to purge prior chunks", err)
	}

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.StartRecording", "failed to marshal request", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recording_entries (hash, request, result, recorded_at_ms, finalized)
		VALUES (?, ?, '{}', 0, 0)
		ON CONFLICT(hash) DO UPDATE SET request = excluded.request`,
		string(hash), string(requestJSON))
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.StartRecording", "failed to insert entry", err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, hash flow.RecordingHash, chunk flow.AgentStreamEvent) error {
	chunkJSON, err := json.Marshal(chunk)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.AppendEvent", "failed to marshal chunk", err)
	}

	var nextSeq int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM recording_chunks WHERE hash = ?`, string(hash))
	if err := row.Scan(&nextSeq); err != nil {
		return flow.New(flow.KindStore, "sqlite.AppendEvent", "failed to compute next seq", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO recording_chunks (hash, seq, chunk) VALUES (?, ?, ?)`,
		string(hash), nextSeq, string(chunkJSON))
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.AppendEvent", "failed to insert chunk", err)
	}
	return nil
}

func (s *Store) FinalizeRecording(ctx context.Context, hash flow.RecordingHash, result flow.AgentRunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.FinalizeRecording", "failed to marshal result", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE recording_entries SET result = ?, recorded_at_ms = ?, finalized = 1 WHERE hash = ?`,
		string(resultJSON), nowFunc().UnixMilli(), string(hash))
	if err != nil {
		return flow.New(flow.KindStore, "sqlite.FinalizeRecording", "failed to update entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flow.New(flow.KindStore, "sqlite.FinalizeRecording", "recording not started", nil)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, hash flow.RecordingHash) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recording_chunks WHERE hash = ?`, string(hash)); err != nil {
		return flow.New(flow.KindStore, "sqlite.Delete", "failed to delete chunks", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recording_entries WHERE hash = ?`, string(hash)); err != nil {
		return flow.New(flow.KindStore, "sqlite.Delete", "failed to delete entry", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]flow.RecordingHash, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM recording_entries WHERE finalized = 1`)
	if err != nil {
		return nil, flow.New(flow.KindStore, "sqlite.List", "failed to query entries", err)
	}
	defer rows.Close()

	var hashes []flow.RecordingHash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, flow.New(flow.KindStore, "sqlite.List", "failed to scan hash", err)
		}
		hashes = append(hashes, flow.RecordingHash(h))
	}
	return hashes, rows.Err()
}

var nowFunc = func() time.Time { return time.Now().UTC() }
