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
	store, err := Open(context.Background(), "file:"+t.TempDir()+"/recordings.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRecordingRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	hash := flow.RecordingHash("hash-1")

	require.NoError(t, store.StartRecording(ctx, hash, map[string]any{"model": "m"}))
	require.NoError(t, store.AppendEvent(ctx, hash, flow.AgentStreamEvent{Type: "text_delta", TextDelta: "chunk-1"}))
	require.NoError(t, store.AppendEvent(ctx, hash, flow.AgentStreamEvent{Type: "text_delta", TextDelta: "chunk-2"}))
	require.NoError(t, store.FinalizeRecording(ctx, hash, flow.AgentRunResult{Text: "chunk-1chunk-2"}))

	entry, ok, err := store.Load(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chunk-1chunk-2", entry.Result.Text)
	require.Len(t, entry.Chunks, 2)
	assert.Equal(t, "chunk-1", entry.Chunks[0].TextDelta)
	assert.Equal(t, "chunk-2", entry.Chunks[1].TextDelta)
}

func TestSQLiteLoadMissesWithoutFinalize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	hash := flow.RecordingHash("hash-2")

	require.NoError(t, store.StartRecording(ctx, hash, nil))
	_, ok, err := store.Load(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteDeleteRemovesEntryAndChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	hash := flow.RecordingHash("hash-3")

	require.NoError(t, store.StartRecording(ctx, hash, nil))
	require.NoError(t, store.AppendEvent(ctx, hash, flow.AgentStreamEvent{Type: "text_delta"}))
	require.NoError(t, store.FinalizeRecording(ctx, hash, flow.AgentRunResult{}))
	require.NoError(t, store.Delete(ctx, hash))

	_, ok, err := store.Load(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	hash := flow.RecordingHash("hash-4")
	require.NoError(t, store.StartRecording(ctx, hash, nil))
	require.NoError(t, store.FinalizeRecording(ctx, hash, flow.AgentRunResult{}))

	hashes, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, hashes, hash)
}
