// Package provider abstracts over concrete LLM SDKs and layers deterministic
// replay on top of them via the recording package, grounded on the
// teacher's runtime/agent/model.Client/Streamer contract (Complete/Stream
// over a Request/Response/Chunk shape) generalized to flow.Prompt and
// widened with a live/playback mode switch (spec.md §4.C).
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/recording"
)

// Provider completes one prompt against an LLM, streaming chunks to sink as
// they arrive and returning the settled result once the turn finishes.
type Provider interface {
	Complete(ctx context.Context, model string, prompt flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error)
}

// Mode selects how a Wrapped Provider satisfies a Complete call.
type Mode int

const (
	// ModeLive replays a turn already recorded for the same request;
	// otherwise it calls through to the underlying Provider and records the
	// turn it completes.
	ModeLive Mode = iota
	// ModePlayback never calls through; every turn must already be
	// recorded, or Complete fails with flow.KindProviderCacheMiss.
	ModePlayback
)

// Wrapped layers the recording cache over an underlying Provider
// (spec.md's "LiveWrapper"/"PlaybackWrapper", unified into one type
// switched by Mode since both share every line except the cache-miss
// behavior).
type Wrapped struct {
	inner Provider
	store recording.Store
	mode  Mode
}

// Wrap returns a Wrapped provider. In ModeLive, inner must be non-nil; in
// ModePlayback inner may be nil since it's never called.
func Wrap(inner Provider, store recording.Store, mode Mode) *Wrapped {
	return &Wrapped{inner: inner, store: store, mode: mode}
}

// Complete implements Provider. It computes the canonical request hash,
// checks the recording store, and either replays a cached turn or (in
// ModeLive) executes inner and records the result.
func (w *Wrapped) Complete(ctx context.Context, model string, prompt flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	canonical := CanonicalRequest(model, prompt)
	hash, err := HashRequest(canonical)
	if err != nil {
		return flow.AgentRunResult{}, err
	}

	if entry, ok, err := w.store.Load(ctx, hash); err != nil {
		return flow.AgentRunResult{}, err
	} else if ok {
		for i, chunk := range entry.Chunks {
			chunk.Seq = i
			if sink != nil {
				sink(chunk)
			}
		}
		return entry.Result, nil
	}

	if w.mode == ModePlayback {
		return flow.AgentRunResult{}, flow.New(flow.KindProviderCacheMiss, "provider.Complete",
			"no recording for this request in playback mode", nil)
	}

	if err := w.store.StartRecording(ctx, hash, canonical); err != nil {
		return flow.AgentRunResult{}, err
	}

	// seq is assigned here, the single chokepoint every live chunk passes
	// through before reaching either the recording store or the caller's
	// sink, so Seq is consistent whether the turn is later replayed from a
	// recording or observed live (spec.md §3, "monotonic sequence index").
	seq := 0
	result, err := w.inner.Complete(ctx, model, prompt, func(chunk flow.AgentStreamEvent) {
		chunk.Seq = seq
		seq++
		_ = w.store.AppendEvent(ctx, hash, chunk)
		if sink != nil {
			sink(chunk)
		}
	})
	if err != nil {
		return flow.AgentRunResult{}, err
	}

	if err := w.store.FinalizeRecording(ctx, hash, result); err != nil {
		return flow.AgentRunResult{}, err
	}
	return result, nil
}

// CanonicalRequest builds the stable, hashable form of a request: the
// model plus the prompt's system/messages/schema, explicitly excluding
// anything that would vary between otherwise-identical turns (timestamps,
// session/run identifiers, temperature jitter from defaulting). Recording
// hash stability depends on never adding a field here that isn't fully
// determined by the prompt's content.
func CanonicalRequest(model string, prompt flow.Prompt) map[string]any {
	messages := make([]map[string]any, len(prompt.Messages))
	for i, m := range prompt.Messages {
		messages[i] = map[string]any{
			"role":  string(m.Role),
			"parts": canonicalParts(m.Parts),
		}
	}
	return map[string]any{
		"model":    model,
		"system":   prompt.System,
		"messages": messages,
		"schema":   prompt.StructuredSchema,
	}
}

func canonicalParts(parts []flow.Part) []map[string]any {
	out := make([]map[string]any, len(parts))
	for i, p := range parts {
		switch part := p.(type) {
		case flow.TextPart:
			out[i] = map[string]any{"type": "text", "text": part.Text}
		case flow.ToolUsePart:
			out[i] = map[string]any{"type": "tool_use", "name": part.Name, "args": part.Args}
		case flow.ToolResultPart:
			out[i] = map[string]any{"type": "tool_result", "content": part.Content, "isError": part.IsError}
		}
	}
	return out
}

// HashRequest computes the content-addressed RecordingHash for a canonical
// request, via a deterministically key-sorted JSON encoding fed to SHA-256.
func HashRequest(canonical map[string]any) (flow.RecordingHash, error) {
	encoded, err := marshalSorted(canonical)
	if err != nil {
		return "", flow.New(flow.KindStore, "provider.HashRequest", "failed to encode canonical request", err)
	}
	sum := sha256.Sum256(encoded)
	return flow.RecordingHash(hex.EncodeToString(sum[:])), nil
}

// marshalSorted relies on encoding/json's guarantee that map[string]any
// keys are emitted in sorted order, giving a stable byte encoding for
// otherwise-equal canonical requests.
func marshalSorted(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
