// Package container implements the foreach/loop scopes a driver executes
// nodes within, including the checkpoint-after-iterationStarted ordering a
// paused container must resume from exactly (spec.md §4.G, the S6
// scenario: pausing mid-iteration must never lose or re-run the
// in-flight iteration's prior completed work).
package container

import (
	"context"

	"github.com/flowcore-dev/flowcore/flow"
)

// Checkpoint is consulted by Foreach/Loop after every iteration boundary.
// Returning a non-nil error (conventionally a *flow.Error with
// flow.KindPause) aborts the container; the container emits
// container:iterationStarted for the iteration about to run BEFORE calling
// Checkpoint for it, so a pause observed at the checkpoint always leaves
// the log showing the iteration as started, never as silently skipped.
type Checkpoint func(ctx context.Context) error

// Emit appends an ExecutionEvent for the container node and returns any
// error from doing so (e.g. store failure); the driver supplies a closure
// that builds the flow.Event and passes it to hub.Hub.Emit.
type Emit func(ctx context.Context, name string, payload map[string]any) error

// ChildFunc runs one child of a container iteration, given the iteration's
// current item and its index, returning the output to record under
// outputKey in that iteration's PartialChildOutputs.
type ChildFunc func(ctx context.Context, item any, iterationIndex int) (outputKey string, output any, err error)

// Foreach runs child once per item in items, emitting the
// node:started/container:iterationStarted/container:childStarted/
// container:childCompleted/container:iterationCompleted/node:completed
// ExecutionEvent sequence, honoring checkpoint after each iteration starts.
// resumeFrom restarts at that iteration index, replaying nothing: the
// caller is expected to have already derived state (including completed
// iterations) from the log before resuming, so Foreach only needs to know
// where to pick back up.
func Foreach(ctx context.Context, nodeID string, items []any, resumeFrom int, emit Emit, checkpoint Checkpoint, child ChildFunc) error {
	total := len(items)
	if err := emit(ctx, flow.EventNodeStarted, map[string]any{
		"nodeId": nodeID, "kind": "foreach", "totalIterations": total,
	}); err != nil {
		return err
	}

	for i := resumeFrom; i < total; i++ {
		if err := emit(ctx, flow.EventContainerIterationStart, map[string]any{
			"nodeId": nodeID, "iterationIndex": i, "item": items[i],
		}); err != nil {
			return err
		}

		if checkpoint != nil {
			if err := checkpoint(ctx); err != nil {
				return err
			}
		}

		if err := emit(ctx, flow.EventContainerChildStarted, map[string]any{
			"nodeId": nodeID, "childIndex": 0,
		}); err != nil {
			return err
		}

		outputKey, output, err := child(ctx, items[i], i)
		if err != nil {
			_ = emit(ctx, flow.EventNodeError, map[string]any{"nodeId": nodeID, "error": err.Error()})
			return err
		}

		if err := emit(ctx, flow.EventContainerChildCompleted, map[string]any{
			"nodeId": nodeID, "childIndex": 0, "outputKey": outputKey, "output": output,
		}); err != nil {
			return err
		}

		if err := emit(ctx, flow.EventContainerIterationDone, map[string]any{
			"nodeId": nodeID, "iterationIndex": i,
		}); err != nil {
			return err
		}
	}

	return emit(ctx, flow.EventNodeCompleted, map[string]any{"nodeId": nodeID})
}

// Loop runs body repeatedly, starting at iteration index resumeFrom, until
// until returns true or checkpoint returns an error (Loop does not check ctx
// itself; the driver's checkpoint fails once ctx is cancelled). Unlike
// Foreach, Loop has no known
// total; TotalIterations in the derived ContainerFrame stays nil.
func Loop(ctx context.Context, nodeID string, resumeFrom int, until func(iterationIndex int) bool, emit Emit, checkpoint Checkpoint, body ChildFunc) error {
	if err := emit(ctx, flow.EventNodeStarted, map[string]any{"nodeId": nodeID, "kind": "loop"}); err != nil {
		return err
	}

	for i := resumeFrom; !until(i); i++ {
		if err := emit(ctx, flow.EventLoopIterate, map[string]any{"nodeId": nodeID, "iterationIndex": i}); err != nil {
			return err
		}
		if err := emit(ctx, flow.EventContainerIterationStart, map[string]any{
			"nodeId": nodeID, "iterationIndex": i,
		}); err != nil {
			return err
		}

		if checkpoint != nil {
			if err := checkpoint(ctx); err != nil {
				return err
			}
		}

		if err := emit(ctx, flow.EventContainerChildStarted, map[string]any{
			"nodeId": nodeID, "childIndex": 0,
		}); err != nil {
			return err
		}

		outputKey, output, err := body(ctx, nil, i)
		if err != nil {
			_ = emit(ctx, flow.EventNodeError, map[string]any{"nodeId": nodeID, "error": err.Error()})
			return err
		}

		if err := emit(ctx, flow.EventContainerChildCompleted, map[string]any{
			"nodeId": nodeID, "childIndex": 0, "outputKey": outputKey, "output": output,
		}); err != nil {
			return err
		}

		if err := emit(ctx, flow.EventContainerIterationDone, map[string]any{
			"nodeId": nodeID, "iterationIndex": i,
		}); err != nil {
			return err
		}
	}

	return emit(ctx, flow.EventNodeCompleted, map[string]any{"nodeId": nodeID})
}
