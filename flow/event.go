package flow

import "time"

type (
	// Event is an immutable fact appended to a session's log. Events are
	// never mutated or reordered once stored; causality between events is
	// expressed with CausedBy rather than implicit ordering.
	Event struct {
		// ID uniquely identifies this event within its session.
		ID EventId
		// Name is hierarchical "category:action", e.g. "user:input",
		// "text:delta", "tool:called".
		Name string
		// Payload carries event-specific data as a JSON-compatible map.
		Payload map[string]any
		// Timestamp records when the event was created. Assigned by the hub
		// if the caller leaves it zero.
		Timestamp time.Time
		// CausedBy optionally references the EventId of the event that
		// triggered this one. When present it MUST reference an earlier
		// event in the same session.
		CausedBy EventId
	}

	// SerializedEvent is the on-disk form of an Event: timestamp as
	// epoch-millis, payload as parsed JSON, plus the store-assigned
	// position. The pair (SessionID, Position) is unique per store.
	SerializedEvent struct {
		ID        EventId
		SessionID SessionId
		Position  int
		Name      string
		Payload   map[string]any
		// TimestampMillis is the event time as Unix epoch milliseconds.
		TimestampMillis int64
		CausedBy        EventId
	}
)

// NewEvent constructs an Event with a fresh ID and the given name/payload.
// Timestamp is left zero; the hub assigns it on Emit if unset.
func NewEvent(name string, payload map[string]any) Event {
	return Event{ID: NewEventId(), Name: name, Payload: payload}
}

// WithCause returns a copy of e with CausedBy set to parent.ID.
func (e Event) WithCause(parent Event) Event {
	e.CausedBy = parent.ID
	return e
}

// Serialize converts an Event belonging to sessionID at the given position
// into its on-disk form.
func (e Event) Serialize(sessionID SessionId, position int) SerializedEvent {
	return SerializedEvent{
		ID:              e.ID,
		SessionID:       sessionID,
		Position:        position,
		Name:            e.Name,
		Payload:         e.Payload,
		TimestampMillis: e.Timestamp.UnixMilli(),
		CausedBy:        e.CausedBy,
	}
}

// Deserialize converts a SerializedEvent back into an Event, dropping the
// store-assigned position and session association.
func (s SerializedEvent) Deserialize() Event {
	return Event{
		ID:        s.ID,
		Name:      s.Name,
		Payload:   s.Payload,
		Timestamp: time.UnixMilli(s.TimestampMillis).UTC(),
		CausedBy:  s.CausedBy,
	}
}

// ExecutionEvent event names emitted by the driver for introspection and
// state derivation. These are distinct from domain events emitted by
// handlers and agents (spec.md §3's "ExecutionEvent" kind).
const (
	EventFlowStarted              = "flow:started"
	EventFlowCompleted            = "flow:completed"
	EventFlowPaused               = "flow:paused"
	EventFlowResumed              = "flow:resumed"
	EventNodeStarted              = "node:started"
	EventNodeCompleted            = "node:completed"
	EventNodeError                = "node:error"
	EventContainerIterationStart  = "container:iterationStarted"
	EventContainerIterationDone   = "container:iterationCompleted"
	EventContainerChildStarted    = "container:childStarted"
	EventContainerChildCompleted  = "container:childCompleted"
	EventLoopIterate              = "loop:iterate"

	// EventAgentStarted/EventAgentCompleted bracket one agent activation
	// (spec.md §4.F point 4): completed carries an "outcome" of
	// "success", "failure", or "interrupted" once the turn settles.
	// These are domain events emitted by the driver, not ExecutionEvents:
	// they aren't part of the containerStack-derivation subset and don't
	// appear in executionEventNames.
	EventAgentStarted   = "agent:started"
	EventAgentCompleted = "agent:completed"
)

// executionEventNames is the reserved set of ExecutionEvent names.
// state.DeriveContainerStack consults it (via IsExecutionEvent) to pick the
// events it folds; the hub's in-memory tail keeps every emitted event,
// execution or not.
var executionEventNames = map[string]bool{
	EventFlowStarted:             true,
	EventFlowCompleted:           true,
	EventFlowPaused:              true,
	EventFlowResumed:             true,
	EventNodeStarted:             true,
	EventNodeCompleted:           true,
	EventNodeError:               true,
	EventContainerIterationStart: true,
	EventContainerIterationDone:  true,
	EventContainerChildStarted:   true,
	EventContainerChildCompleted: true,
	EventLoopIterate:             true,
}

// IsExecutionEvent reports whether name is one of the reserved
// ExecutionEvent names.
func IsExecutionEvent(name string) bool { return executionEventNames[name] }
