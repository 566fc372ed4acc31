// Package recording is the content-addressed cache of provider turns that
// makes playback-mode replay deterministic (spec.md §4.C). A recording is
// keyed by the canonical hash of its request; StartRecording/AppendEvent/
// FinalizeRecording let a live turn be captured incrementally as it streams,
// matching how the provider wrapper observes a real turn chunk by chunk.
package recording

import (
	"context"

	"github.com/flowcore-dev/flowcore/flow"
)

// Store is the recording cache contract.
type Store interface {
	// Load returns the recorded entry for hash, or ok=false if no
	// recording exists (a cache miss, surfaced by provider as
	// flow.KindProviderCacheMiss in playback mode).
	Load(ctx context.Context, hash flow.RecordingHash) (entry flow.RecordingEntry, ok bool, err error)

	// Save writes entry as a complete, finalized recording in one batch
	// operation, purging any prior entry for entry.Hash first (spec.md §4.B,
	// §3 lifecycle "save(entry)"; invariant 9, save(e) then load(e.Hash)
	// returns e). Unlike StartRecording/AppendEvent/FinalizeRecording, which
	// capture a turn incrementally as it streams, Save is for callers that
	// already have a complete entry in hand (e.g. importing a recording).
	Save(ctx context.Context, entry flow.RecordingEntry) error

	// StartRecording begins capturing a new entry for hash against the
	// given canonical request, discarding the chunks of any earlier
	// unfinalized recording for the same hash. Calling StartRecording for a
	// hash that already has a finalized entry is a no-op that returns nil;
	// recordings are immutable once finalized.
	StartRecording(ctx context.Context, hash flow.RecordingHash, request map[string]any) error

	// AppendEvent appends one streamed chunk to the in-progress recording
	// for hash.
	AppendEvent(ctx context.Context, hash flow.RecordingHash, chunk flow.AgentStreamEvent) error

	// FinalizeRecording marks the recording for hash complete with the
	// given settled result.
	FinalizeRecording(ctx context.Context, hash flow.RecordingHash, result flow.AgentRunResult) error

	// Delete removes a recording. Used by test/demo teardown.
	Delete(ctx context.Context, hash flow.RecordingHash) error

	// List returns every recorded hash, for inspection tooling.
	List(ctx context.Context) ([]flow.RecordingHash, error)
}
