// Package inmem is an in-process recording.Store, mirroring
// eventlog/inmem's mutex-guarded map style.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/recording"
)

type entryState struct {
	entry      flow.RecordingEntry
	finalized  bool
}

// Store is an in-memory recording.Store.
type Store struct {
	mu      sync.Mutex
	entries map[flow.RecordingHash]*entryState
}

var _ recording.Store = (*Store)(nil)

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{entries: make(map[flow.RecordingHash]*entryState)}
}

func (s *Store) Load(_ context.Context, hash flow.RecordingHash) (flow.RecordingEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[hash]
	if !ok || !st.finalized {
		return flow.RecordingEntry{}, false, nil
	}
	return st.entry, true, nil
}

func (s *Store) Save(_ context.Context, entry flow.RecordingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	entry.RecordedAt = recordedAt
	s.entries[entry.Hash] = &entryState{entry: entry, finalized: true}
	return nil
}

func (s *Store) StartRecording(_ context.Context, hash flow.RecordingHash, request map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.entries[hash]; ok && st.finalized {
		return nil
	}
	s.entries[hash] = &entryState{entry: flow.RecordingEntry{Hash: hash, Request: request}}
	return nil
}

func (s *Store) AppendEvent(_ context.Context, hash flow.RecordingHash, chunk flow.AgentStreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[hash]
	if !ok {
		return flow.New(flow.KindStore, "inmem.AppendEvent", "recording not started", nil)
	}
	st.entry.Chunks = append(st.entry.Chunks, chunk)
	return nil
}

func (s *Store) FinalizeRecording(_ context.Context, hash flow.RecordingHash, result flow.AgentRunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[hash]
	if !ok {
		return flow.New(flow.KindStore, "inmem.FinalizeRecording", "recording not started", nil)
	}
	st.entry.Result = result
	st.entry.RecordedAt = time.Now().UTC()
	st.finalized = true
	return nil
}

func (s *Store) Delete(_ context.Context, hash flow.RecordingHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, hash)
	return nil
}

func (s *Store) List(_ context.Context) ([]flow.RecordingHash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := make([]flow.RecordingHash, 0, len(s.entries))
	for h, st := range s.entries {
		if st.finalized {
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}
