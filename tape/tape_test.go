package tape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/flow"
)

type counterState struct{ Count int }

func counterDef() flow.WorkflowDef[counterState] {
	return flow.WorkflowDef[counterState]{
		InitialState: counterState{},
		Handlers: map[string]flow.Handler[counterState]{
			"increment": func(_ flow.Event, s counterState) (counterState, []flow.Event) {
				s.Count++
				return s, nil
			},
		},
	}
}

func events(n int) []flow.Event {
	out := make([]flow.Event, n)
	for i := range out {
		out[i] = flow.NewEvent("increment", nil)
	}
	return out
}

func TestNewTapeStartsAtZero(t *testing.T) {
	tp := New(counterDef(), events(3))
	assert.Equal(t, 0, tp.Position())
	assert.Equal(t, 0, tp.State().Count)
}

func TestStepAdvancesStateByOne(t *testing.T) {
	tp := New(counterDef(), events(3))
	require.True(t, tp.Step())
	assert.Equal(t, 1, tp.State().Count)
	require.True(t, tp.Step())
	assert.Equal(t, 2, tp.State().Count)
}

func TestStepBackAtZeroReturnsFalse(t *testing.T) {
	tp := New(counterDef(), events(3))
	assert.False(t, tp.StepBack())
}

func TestStepAtEndReturnsFalse(t *testing.T) {
	tp := New(counterDef(), events(1))
	require.True(t, tp.Step())
	assert.False(t, tp.Step())
}

func TestPlayReachesFinalState(t *testing.T) {
	tp := New(counterDef(), events(5))
	final := tp.Play()
	assert.Equal(t, 5, final.Count)
	assert.Equal(t, 5, tp.Position())
}

func TestRewindReturnsToStart(t *testing.T) {
	tp := New(counterDef(), events(3))
	tp.Play()
	tp.Rewind()
	assert.Equal(t, 0, tp.Position())
	assert.Equal(t, 0, tp.State().Count)
}

func TestStepToArbitraryPositionMatchesSequentialStepping(t *testing.T) {
	tp := New(counterDef(), events(10))
	direct := tp.PlayTo(7)

	sequential := New(counterDef(), events(10))
	for i := 0; i < 7; i++ {
		sequential.Step()
	}

	assert.Equal(t, sequential.State(), direct)
}

func TestStepToClampsToBounds(t *testing.T) {
	tp := New(counterDef(), events(3))
	tp.StepTo(-5)
	assert.Equal(t, 0, tp.Position())
	tp.StepTo(100)
	assert.Equal(t, 3, tp.Position())
}

func TestEventAtOutOfRangeReturnsZeroEvent(t *testing.T) {
	tp := New(counterDef(), events(2))
	assert.Equal(t, flow.Event{}, tp.EventAt(-1))
	assert.Equal(t, flow.Event{}, tp.EventAt(5))
}

func TestPauseReflectsCurrentPositionWithoutMoving(t *testing.T) {
	tp := New(counterDef(), events(3))
	tp.StepTo(2)
	assert.Equal(t, 2, tp.Pause())
	assert.Equal(t, 2, tp.Position())
}
