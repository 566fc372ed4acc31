// Package hub is the single emission point every event in a session passes
// through (spec.md §4.D): it durably appends to an eventlog.Store, notifies
// pattern-matched live subscribers, and feeds an in-memory tail used for
// container-stack/state derivation during a run. Grounded on the teacher's
// runtime/agent/hooks.Bus (RWMutex-guarded subscriber map, synchronous
// fan-out snapshotted under RLock) and runtime/agent/interrupt.Controller
// (signal-based pause/resume), fused into one component because the spec
// ties durable append and live fan-out to the same emission call rather
// than keeping them as separate subsystems.
package hub

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/flowcore-dev/flowcore/eventlog"
	"github.com/flowcore-dev/flowcore/flow"
)

// Subscriber receives events whose Name matches the pattern it registered
// with. An error a subscriber returns is discarded; it never stops fan-out
// to other subscribers (spec.md §4.D point 4, "fail soft").
type Subscriber interface {
	HandleEvent(ctx context.Context, sessionID flow.SessionId, event flow.Event) error
}

// SubscriberFunc adapts a plain function to a Subscriber.
type SubscriberFunc func(ctx context.Context, sessionID flow.SessionId, event flow.Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, sessionID flow.SessionId, event flow.Event) error {
	return f(ctx, sessionID, event)
}

// Subscription is returned by Subscribe; Close deregisters the subscriber.
// Close is idempotent.
type Subscription interface {
	Close()
}

// Observer is notified of every event after it has been durably appended,
// together with its assigned log position, regardless of pattern
// (hub/redisfanout attaches as one).
type Observer func(ctx context.Context, sessionID flow.SessionId, event flow.Event, position int)

type subscription struct {
	hub     *Hub
	pattern string
	sub     Subscriber
	once    sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subscribers, s)
	})
}

// Hub is the event hub. The zero value is not usable; use New.
type Hub struct {
	log eventlog.Store

	mu          sync.RWMutex
	subscribers map[*subscription]struct{}
	observers   []Observer

	// tailMu guards tail, the in-memory per-session event buffer consulted
	// by state derivation while a session is running (spec.md §4.D point 2).
	tailMu sync.Mutex
	tail   map[flow.SessionId][]flow.Event
}

// New returns a Hub backed by log for durable storage.
func New(log eventlog.Store) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[*subscription]struct{}),
		tail:        make(map[flow.SessionId][]flow.Event),
	}
}

// Emit durably appends event to sessionID's log, records it in the
// in-memory tail, invokes every registered Observer, then fans it out to
// every Subscriber whose pattern matches event.Name. It returns the
// assigned log position.
func (h *Hub) Emit(ctx context.Context, sessionID flow.SessionId, event flow.Event) (int, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	position, err := h.log.Append(ctx, sessionID, event)
	if err != nil {
		return 0, err
	}

	h.tailMu.Lock()
	h.tail[sessionID] = append(h.tail[sessionID], event)
	h.tailMu.Unlock()

	h.mu.RLock()
	observers := append([]Observer(nil), h.observers...)
	subs := make([]*subscription, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, observe := range observers {
		observe(ctx, sessionID, event, position)
	}

	for _, s := range subs {
		if !matchPattern(s.pattern, event.Name) {
			continue
		}
		_ = s.sub.HandleEvent(ctx, sessionID, event)
	}

	return position, nil
}

// Publish has the same fan-out semantics as Emit but is meant to be called
// from outside the driver loop (spec.md §4.D, the external/SSE boundary):
// failures are silently absorbed rather than returned, giving at-most-once,
// no-backpressure delivery. Use Emit from within a driver's own execution
// loop, where a failed append must halt the run; use Publish for anything
// pushing events in from outside that loop.
func (h *Hub) Publish(ctx context.Context, sessionID flow.SessionId, event flow.Event) {
	_, _ = h.Emit(ctx, sessionID, event)
}

// Subscribe registers sub to receive every future event whose Name matches
// pattern. pattern follows path.Match syntax, e.g. "tool:*" matches
// "tool:called" and "tool:completed"; "*" matches every event.
func (h *Hub) Subscribe(pattern string, sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, flow.New(flow.KindStore, "hub.Subscribe", "subscriber must not be nil", nil)
	}
	s := &subscription{hub: h, pattern: pattern, sub: sub}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()

	return s, nil
}

// Observe registers an Observer invoked for every emitted event, regardless
// of pattern. Observers cannot be deregistered; they are meant for
// process-lifetime wiring (e.g. redisfanout.Fanout.Attach).
func (h *Hub) Observe(observer Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, observer)
	h.mu.Unlock()
}

// GetEventLog returns the in-memory tail of events emitted for sessionID
// since the hub was constructed or ClearEventLog was last called. This is
// distinct from the durable log: it exists so state derivation can run
// without a storage round trip mid-execution.
func (h *Hub) GetEventLog(sessionID flow.SessionId) []flow.Event {
	h.tailMu.Lock()
	defer h.tailMu.Unlock()

	return append([]flow.Event(nil), h.tail[sessionID]...)
}

// ClearEventLog discards the in-memory tail for sessionID. Driver.Dispose
// calls it when a session's tracking is released; a later Resume reseeds
// the tail from the durable log (spec.md §4.D point 2).
func (h *Hub) ClearEventLog(sessionID flow.SessionId) {
	h.tailMu.Lock()
	defer h.tailMu.Unlock()

	delete(h.tail, sessionID)
}

// Resume seeds the in-memory tail for sessionID from the durable log, for
// when a paused session resumes in a process that never held it in memory.
func (h *Hub) Resume(ctx context.Context, sessionID flow.SessionId) error {
	serialized, err := h.log.GetEvents(ctx, sessionID)
	if err != nil {
		return err
	}

	events := make([]flow.Event, len(serialized))
	for i, se := range serialized {
		events[i] = se.Deserialize()
	}

	h.tailMu.Lock()
	h.tail[sessionID] = events
	h.tailMu.Unlock()

	return nil
}

func matchPattern(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
