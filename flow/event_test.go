package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventAssignsFreshID(t *testing.T) {
	a := NewEvent("user:input", map[string]any{"text": "hi"})
	b := NewEvent("user:input", map[string]any{"text": "hi"})
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "user:input", a.Name)
}

func TestWithCauseSetsCausedBy(t *testing.T) {
	parent := NewEvent("tool:called", nil)
	child := NewEvent("tool:completed", nil).WithCause(parent)
	assert.Equal(t, parent.ID, child.CausedBy)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	event := Event{
		ID:        NewEventId(),
		Name:      "text:delta",
		Payload:   map[string]any{"text": "chunk"},
		Timestamp: time.Now().Round(time.Millisecond).UTC(),
		CausedBy:  NewEventId(),
	}

	serialized := event.Serialize(NewSessionId(), 3)
	require.Equal(t, 3, serialized.Position)
	assert.Equal(t, event.Name, serialized.Name)

	roundTripped := serialized.Deserialize()
	assert.Equal(t, event.ID, roundTripped.ID)
	assert.Equal(t, event.Name, roundTripped.Name)
	assert.Equal(t, event.Payload, roundTripped.Payload)
	assert.True(t, event.Timestamp.Equal(roundTripped.Timestamp))
	assert.Equal(t, event.CausedBy, roundTripped.CausedBy)
}

func TestIsExecutionEvent(t *testing.T) {
	assert.True(t, IsExecutionEvent(EventFlowStarted))
	assert.True(t, IsExecutionEvent(EventContainerIterationStart))
	assert.False(t, IsExecutionEvent("user:input"))
	assert.False(t, IsExecutionEvent("summary:produced"))
}
