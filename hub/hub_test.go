package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/eventlog/inmem"
	"github.com/flowcore-dev/flowcore/flow"
)

func TestEmitAppendsToDurableLog(t *testing.T) {
	store := inmem.New()
	h := New(store)
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	pos, err := h.Emit(ctx, sessionID, flow.NewEvent("user:input", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	events, err := store.GetEvents(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestSubscribeOnlyReceivesMatchingPattern(t *testing.T) {
	h := New(inmem.New())
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	var mu sync.Mutex
	var received []string
	sub, err := h.Subscribe("tool:*", SubscriberFunc(func(_ context.Context, _ flow.SessionId, event flow.Event) error {
		mu.Lock()
		received = append(received, event.Name)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)
	defer sub.Close()

	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("tool:called", nil))
	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("text:delta", nil))
	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("tool:completed", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"tool:called", "tool:completed"}, received)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	h := New(inmem.New())
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	count := 0
	sub, err := h.Subscribe("*", SubscriberFunc(func(_ context.Context, _ flow.SessionId, _ flow.Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("a", nil))
	sub.Close()
	sub.Close() // idempotent
	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("b", nil))

	assert.Equal(t, 1, count)
}

func TestSubscriberErrorDoesNotStopOtherSubscribers(t *testing.T) {
	h := New(inmem.New())
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	secondCalled := false
	_, err := h.Subscribe("*", SubscriberFunc(func(context.Context, flow.SessionId, flow.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)
	_, err = h.Subscribe("*", SubscriberFunc(func(context.Context, flow.SessionId, flow.Event) error {
		secondCalled = true
		return nil
	}))
	require.NoError(t, err)

	_, err = h.Emit(ctx, sessionID, flow.NewEvent("a", nil))
	require.NoError(t, err)
	assert.True(t, secondCalled)
}

func TestSubscribeNilSubscriberErrors(t *testing.T) {
	h := New(inmem.New())
	_, err := h.Subscribe("*", nil)
	assert.Error(t, err)
}

func TestGetEventLogAndClear(t *testing.T) {
	h := New(inmem.New())
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("a", nil))
	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("b", nil))
	assert.Len(t, h.GetEventLog(sessionID), 2)

	h.ClearEventLog(sessionID)
	assert.Empty(t, h.GetEventLog(sessionID))
}

func TestResumeSeedsTailFromDurableLog(t *testing.T) {
	store := inmem.New()
	h := New(store)
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("a", nil))
	h.ClearEventLog(sessionID)
	require.Empty(t, h.GetEventLog(sessionID))

	require.NoError(t, h.Resume(ctx, sessionID))
	assert.Len(t, h.GetEventLog(sessionID), 1)
}

func TestObserveReceivesEveryEventRegardlessOfPattern(t *testing.T) {
	h := New(inmem.New())
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	var positions []int
	h.Observe(func(_ context.Context, _ flow.SessionId, _ flow.Event, position int) {
		positions = append(positions, position)
	})

	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("a", nil))
	_, _ = h.Emit(ctx, sessionID, flow.NewEvent("b", nil))

	assert.Equal(t, []int{0, 1}, positions)
}
