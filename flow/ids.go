// Package flow defines the core data model of the workflow runtime: events,
// sessions, agents, handlers, and the workflow definition that ties them
// together. Types in this package carry no behavior beyond simple
// construction helpers; the runtime packages (eventlog, hub, state,
// scheduler, container, driver, tape) operate on these values.
package flow

import "github.com/google/uuid"

// SessionId uniquely identifies a session. Sessions aggregate an ordered
// event log for a single workflow run.
type SessionId string

// EventId uniquely identifies a single event within its session.
type EventId string

// RecordingHash is the content-addressed key for a cached provider turn,
// derived deterministically from the canonical form of a provider request.
type RecordingHash string

// NewSessionId returns a fresh, randomly generated SessionId.
func NewSessionId() SessionId { return SessionId(uuid.NewString()) }

// NewEventId returns a fresh, randomly generated EventId.
func NewEventId() EventId { return EventId(uuid.NewString()) }
