// Package state derives a workflow's typed state and the paused-run
// container stack by left-folding a session's event sequence. Both
// functions are pure: same events in, same result out, with no I/O and no
// dependency on wall-clock time beyond what the events themselves carry
// (spec.md §4.E, §8 "determinism of derivation").
package state

import (
	"github.com/flowcore-dev/flowcore/flow"
)

// Derive folds events through def's handlers starting from def.InitialState,
// applying each handler in order and ignoring any events a handler returns
// (those only matter once they themselves reach the fold, i.e. once
// appended to the log and replayed on a later Derive call). An event with
// no registered handler leaves state unchanged.
func Derive[S any](def flow.WorkflowDef[S], events []flow.Event) S {
	state := def.InitialState
	for _, event := range events {
		handler, ok := def.Handlers[event.Name]
		if !ok {
			continue
		}
		state, _ = handler(event, state)
	}
	return state
}

// DeriveAt folds only the first n events, giving the state as of that
// prefix. DeriveAt(def, events, len(events)) equals Derive(def, events).
func DeriveAt[S any](def flow.WorkflowDef[S], events []flow.Event, n int) S {
	if n > len(events) {
		n = len(events)
	}
	if n < 0 {
		n = 0
	}
	return Derive(def, events[:n])
}

// DeriveContainerStack reconstructs the ContainerFrame stack implied by the
// ExecutionEvent subsequence of events (spec.md §3 invariant 6). Only
// events satisfying flow.IsExecutionEvent participate; domain events are
// skipped. The rules, applied in order:
//
//   - node:started pushes a frame if its payload names a container node
//     (carries "nodeId" and "kind" of "foreach" or "loop"); non-container
//     node:started events are ignored here.
//   - node:completed/node:error pops the frame matching payload["nodeId"],
//     if the top of stack matches it; a mismatched nodeId is ignored
//     (nested/out-of-order completions never corrupt the stack).
//   - container:iterationStarted sets CurrentItem/IterationIndex on the
//     frame matching payload["nodeId"] (last-match-wins: a later
//     iterationStarted for the same frame overwrites the earlier one,
//     supporting re-entrant/nested recursion into the same node).
//   - container:iterationCompleted appends a CompletedIteration and resets
//     ChildIndex/PartialChildOutputs for the next iteration.
//   - container:childStarted/childCompleted advance ChildIndex and
//     accumulate PartialChildOutputs on the frame matching nodeId.
func DeriveContainerStack(events []flow.Event) []flow.ContainerFrame {
	var stack []flow.ContainerFrame

	indexOf := func(nodeID string) int {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].NodeID == nodeID {
				return i
			}
		}
		return -1
	}

	for _, event := range events {
		if !flow.IsExecutionEvent(event.Name) {
			continue
		}
		nodeID, _ := event.Payload["nodeId"].(string)

		switch event.Name {
		case flow.EventNodeStarted:
			kind, _ := event.Payload["kind"].(string)
			if kind != "foreach" && kind != "loop" {
				continue
			}
			frame := flow.ContainerFrame{NodeID: nodeID, PartialChildOutputs: map[string]any{}}
			if total, ok := asInt(event.Payload["totalIterations"]); ok {
				frame.TotalIterations = &total
			}
			stack = append(stack, frame)

		case flow.EventNodeCompleted, flow.EventNodeError:
			if i := indexOf(nodeID); i == len(stack)-1 {
				stack = stack[:i]
			}

		case flow.EventContainerIterationStart:
			if i := indexOf(nodeID); i >= 0 {
				if idx, ok := asInt(event.Payload["iterationIndex"]); ok {
					stack[i].IterationIndex = idx
				}
				stack[i].CurrentItem = event.Payload["item"]
				stack[i].ChildIndex = 0
				stack[i].PartialChildOutputs = map[string]any{}
			}

		case flow.EventContainerIterationDone:
			if i := indexOf(nodeID); i >= 0 {
				stack[i].CompletedIterations = append(stack[i].CompletedIterations, flow.CompletedIteration{
					Index:   stack[i].IterationIndex,
					Item:    stack[i].CurrentItem,
					Outputs: stack[i].PartialChildOutputs,
				})
				stack[i].ChildIndex = 0
				stack[i].PartialChildOutputs = map[string]any{}
			}

		case flow.EventContainerChildStarted:
			if i := indexOf(nodeID); i >= 0 {
				if idx, ok := asInt(event.Payload["childIndex"]); ok {
					stack[i].ChildIndex = idx
				}
			}

		case flow.EventContainerChildCompleted:
			if i := indexOf(nodeID); i >= 0 {
				if outputKey, ok := event.Payload["outputKey"].(string); ok {
					stack[i].PartialChildOutputs[outputKey] = event.Payload["output"]
				}
				stack[i].ChildIndex++
			}
		}
	}

	return stack
}

// asInt extracts an int from a payload value that may be a native int (the
// common case, events still held in the hub's in-memory tail) or a float64
// (events that round-tripped through a JSON-backed eventlog.Store, where
// encoding/json decodes all numbers into float64).
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
