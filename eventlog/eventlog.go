// Package eventlog is the durable, append-only event log: the single
// source of truth a session's state is replayed from (spec.md §4.A).
// Modeled on the teacher's runlog.Store, generalized from one append-only
// stream per run to one per SessionId and widened to carry flow.Event's
// richer payload/causedBy shape.
package eventlog

import (
	"context"

	"github.com/flowcore-dev/flowcore/flow"
)

// Store is the durable event log contract. Implementations must preserve
// append order and assign each event a monotonically increasing Position
// starting at 0 within its session (spec.md §3 SerializedEvent invariant).
type Store interface {
	// Append persists event as the next entry for sessionID and returns its
	// assigned position. Implementations MUST be safe under concurrent
	// Append calls for different sessions; concurrent Append calls for the
	// same session must serialize (spec.md §5).
	Append(ctx context.Context, sessionID flow.SessionId, event flow.Event) (position int, err error)

	// GetEvents returns every event recorded for sessionID, in append
	// order, from the beginning.
	GetEvents(ctx context.Context, sessionID flow.SessionId) ([]flow.SerializedEvent, error)

	// GetEventsFrom returns every event recorded for sessionID at or after
	// fromPosition (inclusive), in append order.
	GetEventsFrom(ctx context.Context, sessionID flow.SessionId, fromPosition int) ([]flow.SerializedEvent, error)

	// ListSessions returns every SessionId with at least one recorded
	// event.
	ListSessions(ctx context.Context) ([]flow.SessionId, error)

	// DeleteSession removes a session's entire event log. Used by
	// demos/tests to reclaim space; not part of the normal run lifecycle.
	DeleteSession(ctx context.Context, sessionID flow.SessionId) error
}
