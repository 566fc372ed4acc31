package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/recording/inmem"
)

func TestHashRequestIsStableAcrossEqualRequests(t *testing.T) {
	prompt := flow.Prompt{
		System:   "be helpful",
		Messages: []flow.Message{flow.Text(flow.RoleUser, "hello")},
	}

	a, err := HashRequest(CanonicalRequest("claude-x", prompt))
	require.NoError(t, err)
	b, err := HashRequest(CanonicalRequest("claude-x", prompt))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashRequestDiffersOnMessageContent(t *testing.T) {
	a, err := HashRequest(CanonicalRequest("claude-x", flow.Prompt{Messages: []flow.Message{flow.Text(flow.RoleUser, "hello")}}))
	require.NoError(t, err)
	b, err := HashRequest(CanonicalRequest("claude-x", flow.Prompt{Messages: []flow.Message{flow.Text(flow.RoleUser, "goodbye")}}))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

type stubProvider struct {
	calls  int
	result flow.AgentRunResult
}

func (s *stubProvider) Complete(_ context.Context, _ string, _ flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	s.calls++
	if sink != nil {
		sink(flow.AgentStreamEvent{Type: "text_delta", TextDelta: s.result.Text})
	}
	return s.result, nil
}

func TestWrappedLiveRecordsAndReplaysSubsequentCalls(t *testing.T) {
	store := inmem.New()
	inner := &stubProvider{result: flow.AgentRunResult{Text: "hello there"}}
	wrapped := Wrap(inner, store, ModeLive)

	prompt := flow.Prompt{Messages: []flow.Message{flow.Text(flow.RoleUser, "hi")}}

	first, err := wrapped.Complete(context.Background(), "m", prompt, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", first.Text)
	assert.Equal(t, 1, inner.calls)

	second, err := wrapped.Complete(context.Background(), "m", prompt, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", second.Text)
	assert.Equal(t, 1, inner.calls, "second call should replay from the recording, not call inner again")
}

func TestWrappedPlaybackMissesWithoutRecording(t *testing.T) {
	store := inmem.New()
	wrapped := Wrap(nil, store, ModePlayback)

	prompt := flow.Prompt{Messages: []flow.Message{flow.Text(flow.RoleUser, "unrecorded")}}
	_, err := wrapped.Complete(context.Background(), "m", prompt, nil)

	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindProviderCacheMiss))
}

func TestWrappedPlaybackReplaysExistingRecording(t *testing.T) {
	store := inmem.New()
	inner := &stubProvider{result: flow.AgentRunResult{Text: "recorded answer"}}
	live := Wrap(inner, store, ModeLive)

	prompt := flow.Prompt{Messages: []flow.Message{flow.Text(flow.RoleUser, "question")}}
	_, err := live.Complete(context.Background(), "m", prompt, nil)
	require.NoError(t, err)

	playback := Wrap(nil, store, ModePlayback)
	result, err := playback.Complete(context.Background(), "m", prompt, nil)
	require.NoError(t, err)
	assert.Equal(t, "recorded answer", result.Text)
}
