package flow

import "time"

type (
	// CompletedIteration records one finished iteration of a container node,
	// captured for resume (spec.md §3 ContainerFrame.completedIterations).
	CompletedIteration struct {
		Index   int
		Item    any
		Outputs map[string]any
	}

	// ContainerFrame is the position within a single container node
	// (foreach/loop), reconstructable from the ExecutionEvent subsequence of
	// a session's log (spec.md §3, invariant 6).
	ContainerFrame struct {
		NodeID             string
		IterationIndex     int
		TotalIterations    *int
		CurrentItem        any
		ChildIndex         int
		CompletedIterations []CompletedIteration
		PartialChildOutputs map[string]any
	}

	// SessionState is the paused-run snapshot derived from a session's
	// ExecutionEvent subsequence when a checkpoint observes an abort
	// (spec.md §3).
	SessionState struct {
		SessionID        SessionId
		WorkflowName     string
		CurrentNodeID    string
		CurrentNodeIndex int
		Outputs          map[string]any
		PendingMessages  []string
		PausedAt         time.Time
		// ContainerStack is ordered outermost-first; an empty stack means
		// the session is paused between top-level nodes.
		ContainerStack []ContainerFrame
	}
)

// Clone returns a deep-enough copy of the frame suitable for mutation
// without aliasing the receiver's maps/slices.
func (f ContainerFrame) Clone() ContainerFrame {
	clone := f
	if f.TotalIterations != nil {
		v := *f.TotalIterations
		clone.TotalIterations = &v
	}
	clone.CompletedIterations = append([]CompletedIteration(nil), f.CompletedIterations...)
	clone.PartialChildOutputs = cloneAnyMap(f.PartialChildOutputs)
	return clone
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
