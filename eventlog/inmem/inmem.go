// Package inmem is an in-process eventlog.Store, grounded on the teacher's
// runlog/inmem.Store: a mutex-guarded map keyed by session, with positions
// assigned by a per-session next-position counter.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowcore-dev/flowcore/eventlog"
	"github.com/flowcore-dev/flowcore/flow"
)

// Store is an in-memory eventlog.Store. The zero value is not usable; use
// New.
type Store struct {
	mu      sync.Mutex
	events  map[flow.SessionId][]flow.SerializedEvent
	created map[flow.SessionId]time.Time
}

var _ eventlog.Store = (*Store)(nil)

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		events:  make(map[flow.SessionId][]flow.SerializedEvent),
		created: make(map[flow.SessionId]time.Time),
	}
}

func (s *Store) Append(_ context.Context, sessionID flow.SessionId, event flow.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := len(s.events[sessionID])
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if position == 0 {
		s.created[sessionID] = event.Timestamp
	}
	s.events[sessionID] = append(s.events[sessionID], event.Serialize(sessionID, position))
	return position, nil
}

func (s *Store) GetEvents(_ context.Context, sessionID flow.SessionId) ([]flow.SerializedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]flow.SerializedEvent(nil), s.events[sessionID]...), nil
}

func (s *Store) GetEventsFrom(_ context.Context, sessionID flow.SessionId, fromPosition int) ([]flow.SerializedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.events[sessionID]
	if fromPosition >= len(all) {
		return nil, nil
	}
	if fromPosition < 0 {
		fromPosition = 0
	}
	return append([]flow.SerializedEvent(nil), all[fromPosition:]...), nil
}

// ListSessions returns every session with at least one event, ordered by
// created_at DESC (spec.md §4.A) to match the SQLite store's ordering.
func (s *Store) ListSessions(_ context.Context) ([]flow.SessionId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]flow.SessionId, 0, len(s.events))
	for id, evs := range s.events {
		if len(evs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.created[ids[i]].After(s.created[ids[j]])
	})
	return ids, nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID flow.SessionId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, sessionID)
	delete(s.created, sessionID)
	return nil
}
