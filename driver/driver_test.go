package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/eventlog/inmem"
	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/hub"
	"github.com/flowcore-dev/flowcore/provider"
	"github.com/flowcore-dev/flowcore/scheduler"
)

type greetState struct {
	Greeted bool
}

type stubProvider struct{ text string }

func (s stubProvider) Complete(context.Context, string, flow.Prompt, func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	return flow.AgentRunResult{Text: s.text}, nil
}

func greetDef() flow.WorkflowDef[greetState] {
	return flow.WorkflowDef[greetState]{
		Name:         "greet",
		InitialState: greetState{},
		Handlers: map[string]flow.Handler[greetState]{
			"greeting:sent": func(_ flow.Event, s greetState) (greetState, []flow.Event) {
				s.Greeted = true
				return s, nil
			},
		},
		Agents: []flow.Agent[greetState]{
			{
				Name:        "greeter",
				ActivatesOn: map[string]bool{"session:opened": true},
				Prompt:      func(greetState, flow.Event) flow.Prompt { return flow.Prompt{} },
				OnOutput: func(_ any, trigger flow.Event) []flow.Event {
					return []flow.Event{flow.NewEvent("greeting:sent", nil).WithCause(trigger)}
				},
			},
		},
		Until: func(s greetState) bool { return s.Greeted },
	}
}

func TestDriverRunCompletesOnUntil(t *testing.T) {
	h := hub.New(inmem.New())
	sched := scheduler.New[greetState](map[string]provider.Provider{"default": stubProvider{text: "hi"}})
	drv := New[greetState](h, sched)

	sessionID := flow.NewSessionId()
	def := greetDef()
	require.NoError(t, drv.Run(context.Background(), sessionID, def))

	_, err := h.Emit(context.Background(), sessionID, flow.NewEvent("session:opened", nil))
	require.NoError(t, err)

	err = awaitWait(t, drv, sessionID, time.Second)
	require.NoError(t, err)

	status, ok := drv.Status(sessionID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, status)
}

func TestDriverEmitsAgentStartedAndCompletedAroundActivation(t *testing.T) {
	h := hub.New(inmem.New())
	sched := scheduler.New[greetState](map[string]provider.Provider{"default": stubProvider{text: "hi"}})
	drv := New[greetState](h, sched)

	sessionID := flow.NewSessionId()
	def := greetDef()
	require.NoError(t, drv.Run(context.Background(), sessionID, def))

	trigger, err := h.Emit(context.Background(), sessionID, flow.NewEvent("session:opened", nil))
	require.NoError(t, err)

	require.NoError(t, awaitWait(t, drv, sessionID, time.Second))

	events := h.GetEventLog(sessionID)
	var started, completed *flow.Event
	for i := range events {
		switch events[i].Name {
		case flow.EventAgentStarted:
			started = &events[i]
		case flow.EventAgentCompleted:
			completed = &events[i]
		}
	}
	require.NotNil(t, started, "expected an agent:started event")
	require.NotNil(t, completed, "expected an agent:completed event")
	assert.Equal(t, "greeter", started.Payload["agentName"])
	assert.Equal(t, trigger.ID, started.CausedBy)
	assert.Equal(t, "success", completed.Payload["outcome"])
	assert.Equal(t, trigger.ID, completed.CausedBy)
}

func TestDriverPauseYieldsResumableSessionState(t *testing.T) {
	h := hub.New(inmem.New())
	sched := scheduler.New[greetState](map[string]provider.Provider{"default": stubProvider{text: "hi"}})
	drv := New[greetState](h, sched)

	sessionID := flow.NewSessionId()
	// Until never returns true so Run blocks until paused.
	def := greetDef()
	def.Agents = nil // no agent activates, so the run idles waiting on events
	def.Until = func(greetState) bool { return false }
	require.NoError(t, drv.Run(context.Background(), sessionID, def))

	require.NoError(t, drv.Pause(sessionID))
	err := awaitWait(t, drv, sessionID, time.Second)
	require.NoError(t, err)

	status, ok := drv.Status(sessionID)
	require.True(t, ok)
	assert.Equal(t, StatusPaused, status)

	_, ok = drv.Load(sessionID)
	assert.True(t, ok, "a paused run should expose its SessionState via Load")
}

func awaitWait(t *testing.T, drv *Driver[greetState], sessionID flow.SessionId, timeout time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- drv.Wait(sessionID) }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatal("timed out waiting for driver run")
		return nil
	}
}
