package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/flow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "file:"+t.TempDir()+"/events.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteAppendAndGetEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := flow.NewSessionId()

	pos, err := store.Append(ctx, sessionID, flow.NewEvent("user:input", map[string]any{"text": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	events, err := store.GetEvents(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user:input", events[0].Name)
	assert.Equal(t, "hi", events[0].Payload["text"])
}

func TestSQLiteGetEventsFromBoundary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := flow.NewSessionId()
	for _, n := range []string{"a", "b", "c"} {
		_, err := store.Append(ctx, sessionID, flow.NewEvent(n, nil))
		require.NoError(t, err)
	}

	events, err := store.GetEventsFrom(ctx, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].Name)
}

func TestSQLiteDeleteSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := flow.NewSessionId()
	_, err := store.Append(ctx, sessionID, flow.NewEvent("a", nil))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, sessionID))
	events, err := store.GetEvents(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteListSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := flow.NewSessionId()
	_, err := store.Append(ctx, sessionID, flow.NewEvent("a", nil))
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Contains(t, sessions, sessionID)
}
