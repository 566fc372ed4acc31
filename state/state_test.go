package state

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/flow"
)

type counterState struct {
	Count int
}

func counterDef() flow.WorkflowDef[counterState] {
	return flow.WorkflowDef[counterState]{
		Name:         "counter",
		InitialState: counterState{},
		Handlers: map[string]flow.Handler[counterState]{
			"increment": func(_ flow.Event, s counterState) (counterState, []flow.Event) {
				s.Count++
				return s, nil
			},
			"reset": func(_ flow.Event, s counterState) (counterState, []flow.Event) {
				s.Count = 0
				return s, nil
			},
		},
	}
}

func TestDeriveAppliesHandlersInOrder(t *testing.T) {
	def := counterDef()
	events := []flow.Event{
		flow.NewEvent("increment", nil),
		flow.NewEvent("increment", nil),
		flow.NewEvent("unregistered", nil),
		flow.NewEvent("increment", nil),
	}

	got := Derive(def, events)
	assert.Equal(t, 3, got.Count)
}

func TestDeriveAtGivesPrefixState(t *testing.T) {
	def := counterDef()
	events := []flow.Event{
		flow.NewEvent("increment", nil),
		flow.NewEvent("increment", nil),
		flow.NewEvent("reset", nil),
		flow.NewEvent("increment", nil),
	}

	assert.Equal(t, 0, DeriveAt(def, events, 0).Count)
	assert.Equal(t, 2, DeriveAt(def, events, 2).Count)
	assert.Equal(t, 0, DeriveAt(def, events, 3).Count)
	assert.Equal(t, 1, DeriveAt(def, events, len(events)).Count)
}

func TestDeriveIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	eventNames := gen.OneConstOf("increment", "reset", "unregistered")

	properties.Property("folding the same event sequence twice yields the same state", prop.ForAll(
		func(names []string) bool {
			def := counterDef()
			events := make([]flow.Event, len(names))
			for i, n := range names {
				events[i] = flow.NewEvent(n, nil)
			}
			first := Derive(def, events)
			second := Derive(def, events)
			return first == second
		},
		gen.SliceOf(eventNames),
	))

	properties.TestingRun(t)
}

func TestDeriveContainerStackPushAndIteration(t *testing.T) {
	nodeID := "loop-1"
	events := []flow.Event{
		flow.NewEvent(flow.EventNodeStarted, map[string]any{"nodeId": nodeID, "kind": "foreach", "totalIterations": 2}),
		flow.NewEvent(flow.EventContainerIterationStart, map[string]any{"nodeId": nodeID, "iterationIndex": 0, "item": "a"}),
		flow.NewEvent(flow.EventContainerChildStarted, map[string]any{"nodeId": nodeID, "childIndex": 0}),
		flow.NewEvent(flow.EventContainerChildCompleted, map[string]any{"nodeId": nodeID, "childIndex": 0, "outputKey": "out0", "output": "result-a"}),
		flow.NewEvent(flow.EventContainerIterationDone, map[string]any{"nodeId": nodeID, "iterationIndex": 0}),
	}

	stack := DeriveContainerStack(events)
	require.Len(t, stack, 1)
	frame := stack[0]
	assert.Equal(t, nodeID, frame.NodeID)
	require.Len(t, frame.CompletedIterations, 1)
	assert.Equal(t, 0, frame.CompletedIterations[0].Index)
	assert.Equal(t, "result-a", frame.CompletedIterations[0].Outputs["out0"])
}

func TestDeriveContainerStackEmptyAfterCompletion(t *testing.T) {
	nodeID := "loop-1"
	events := []flow.Event{
		flow.NewEvent(flow.EventNodeStarted, map[string]any{"nodeId": nodeID, "kind": "loop"}),
		flow.NewEvent(flow.EventContainerIterationStart, map[string]any{"nodeId": nodeID, "iterationIndex": 0}),
		flow.NewEvent(flow.EventNodeCompleted, map[string]any{"nodeId": nodeID}),
	}

	assert.Empty(t, DeriveContainerStack(events))
}

func TestDeriveContainerStackMismatchedCompletionIgnored(t *testing.T) {
	events := []flow.Event{
		flow.NewEvent(flow.EventNodeStarted, map[string]any{"nodeId": "outer", "kind": "loop"}),
		flow.NewEvent(flow.EventNodeStarted, map[string]any{"nodeId": "inner", "kind": "foreach", "totalIterations": 1}),
		flow.NewEvent(flow.EventNodeCompleted, map[string]any{"nodeId": "outer"}),
	}

	stack := DeriveContainerStack(events)
	require.Len(t, stack, 2)
	assert.Equal(t, "outer", stack[0].NodeID)
	assert.Equal(t, "inner", stack[1].NodeID)
}

// TestDeriveContainerStackAcceptsFloat64Payload guards against a regression
// where numeric payload fields round-tripped through a JSON-backed
// eventlog.Store (which decodes all numbers as float64) were silently
// dropped by an int-only type assertion.
func TestDeriveContainerStackAcceptsFloat64Payload(t *testing.T) {
	nodeID := "loop-1"
	events := []flow.Event{
		flow.NewEvent(flow.EventNodeStarted, map[string]any{"nodeId": nodeID, "kind": "foreach", "totalIterations": float64(2)}),
		flow.NewEvent(flow.EventContainerIterationStart, map[string]any{"nodeId": nodeID, "iterationIndex": float64(1), "item": "b"}),
		flow.NewEvent(flow.EventContainerChildStarted, map[string]any{"nodeId": nodeID, "childIndex": float64(0)}),
	}

	stack := DeriveContainerStack(events)
	require.Len(t, stack, 1)
	frame := stack[0]
	require.NotNil(t, frame.TotalIterations)
	assert.Equal(t, 2, *frame.TotalIterations)
	assert.Equal(t, 1, frame.IterationIndex)
	assert.Equal(t, 0, frame.ChildIndex)
}
