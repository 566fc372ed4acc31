package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/flow"
)

type recordedEvent struct {
	name    string
	payload map[string]any
}

func recordingEmit(events *[]recordedEvent) Emit {
	return func(_ context.Context, name string, payload map[string]any) error {
		*events = append(*events, recordedEvent{name: name, payload: payload})
		return nil
	}
}

func TestForeachEmitsFullSequencePerIteration(t *testing.T) {
	var events []recordedEvent
	emit := recordingEmit(&events)

	err := Foreach(context.Background(), "node-1", []any{"a", "b"}, 0, emit, nil,
		func(_ context.Context, item any, idx int) (string, any, error) {
			return "out", item, nil
		})
	require.NoError(t, err)

	var names []string
	for _, e := range events {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{
		flow.EventNodeStarted,
		flow.EventContainerIterationStart,
		flow.EventContainerChildStarted,
		flow.EventContainerChildCompleted,
		flow.EventContainerIterationDone,
		flow.EventContainerIterationStart,
		flow.EventContainerChildStarted,
		flow.EventContainerChildCompleted,
		flow.EventContainerIterationDone,
		flow.EventNodeCompleted,
	}, names)
}

// TestForeachPauseAfterIterationStartedNeverLosesIt is the S6 negative test:
// a checkpoint that aborts mid-iteration must leave the log showing that
// iteration's container:iterationStarted already recorded, never skipped,
// since container:iterationStarted is emitted before Checkpoint runs.
func TestForeachPauseAfterIterationStartedNeverLosesIt(t *testing.T) {
	var events []recordedEvent
	emit := recordingEmit(&events)
	pauseErr := errors.New("paused")

	checkpointCalls := 0
	checkpoint := func(context.Context) error {
		checkpointCalls++
		if checkpointCalls == 2 {
			return pauseErr
		}
		return nil
	}

	err := Foreach(context.Background(), "node-1", []any{"a", "b", "c"}, 0, emit, checkpoint,
		func(_ context.Context, item any, idx int) (string, any, error) {
			return "out", item, nil
		})

	require.ErrorIs(t, err, pauseErr)

	var names []string
	for _, e := range events {
		names = append(names, e.name)
	}
	// The second iteration's iterationStarted must appear before the pause,
	// with no childStarted/childCompleted/iterationCompleted following it.
	assert.Equal(t, []string{
		flow.EventNodeStarted,
		flow.EventContainerIterationStart,
		flow.EventContainerChildStarted,
		flow.EventContainerChildCompleted,
		flow.EventContainerIterationDone,
		flow.EventContainerIterationStart,
	}, names)
}

func TestForeachResumeFromSkipsCompletedIterations(t *testing.T) {
	var events []recordedEvent
	emit := recordingEmit(&events)
	var seen []any

	err := Foreach(context.Background(), "node-1", []any{"a", "b", "c"}, 1, emit, nil,
		func(_ context.Context, item any, idx int) (string, any, error) {
			seen = append(seen, item)
			return "out", item, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "c"}, seen)
}

func TestForeachChildErrorEmitsNodeError(t *testing.T) {
	var events []recordedEvent
	emit := recordingEmit(&events)
	childErr := errors.New("tool failed")

	err := Foreach(context.Background(), "node-1", []any{"a"}, 0, emit, nil,
		func(context.Context, any, int) (string, any, error) {
			return "", nil, childErr
		})

	require.ErrorIs(t, err, childErr)
	assert.Equal(t, flow.EventNodeError, events[len(events)-1].name)
}

func TestLoopStopsWhenUntilIsTrue(t *testing.T) {
	var events []recordedEvent
	emit := recordingEmit(&events)
	iterations := 0

	err := Loop(context.Background(), "loop-1", 0, func(i int) bool { return i >= 3 }, emit, nil,
		func(context.Context, any, int) (string, any, error) {
			iterations++
			return "out", iterations, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, iterations)
}
