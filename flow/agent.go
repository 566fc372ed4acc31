package flow

import "context"

// SessionContext is the ambient runtime context for a single session
// execution. Per spec.md §9's "caller-provides" rule, the core never binds
// this implicitly: every operation that needs SessionID/WorkflowName
// accepts it explicitly. Callers that want a scoped-ambient convenience
// (e.g. stashing one in a context.Context) are free to do so around this
// value; the runtime itself never reaches into ambient storage.
type SessionContext struct {
	SessionID    SessionId
	WorkflowName string
}

type (
	// Handler is a pure reducer: given an event and the current state, it
	// returns the new state plus any additional events to persist. Handlers
	// MUST be deterministic and side-effect free (spec.md §9, "Handler
	// purity"); any I/O or nondeterminism belongs in agents.
	Handler[S any] func(event Event, state S) (S, []Event)

	// Agent is a declarative LLM actor. It activates on a set of event
	// names, renders a prompt from the current state and triggering event,
	// and transforms validated structured output into new events.
	Agent[S any] struct {
		// Name uniquely identifies the agent within a workflow.
		Name string
		// ActivatesOn is the set of event names that make this agent a
		// candidate for activation.
		ActivatesOn map[string]bool
		// Emits is advisory only (spec.md §3 invariant 5, §9 open question
		// 4): the engine never checks an agent's actual output against it.
		Emits map[string]bool
		// Model selects which entry of the scheduler's Providers map handles
		// this agent's activations. Empty selects the "default" key.
		Model string
		// Prompt renders the prompt for this activation from state and the
		// triggering event.
		Prompt func(state S, trigger Event) Prompt
		// When is an optional guard; a nil When always activates.
		When func(state S) bool
		// OutputSchema is a JSON Schema document (as a parsed map, suitable
		// for github.com/santhosh-tekuri/jsonschema/v6) constraining the
		// agent's structured output. The runtime does not require it: when it
		// is nil and the prompt sets no StructuredSchema, no validation runs
		// and OnOutput receives a nil structured output.
		OutputSchema map[string]any
		// OnOutput is the pure transform from validated structured output
		// and the triggering event to the events the agent wants appended.
		OnOutput func(structuredOutput any, trigger Event) []Event
	}

	// ContainerNode is a foreach/loop scope a workflow can declare
	// (spec.md §4.G): like Agent it activates on a set of trigger event
	// names, but instead of calling a provider it drives
	// container.Foreach/Loop, checkpointing between iterations so a driver
	// can pause/resume it at exactly an iteration boundary (the S6
	// scenario).
	ContainerNode[S any] struct {
		// NodeID identifies this node within a workflow; it is the "nodeId"
		// carried on every ExecutionEvent the node emits and the key used to
		// locate its ContainerFrame in a paused SessionState.ContainerStack.
		NodeID string
		// Kind selects Foreach ("foreach", a bounded Items slice) or Loop
		// ("loop", an unbounded Until predicate).
		Kind string
		// ActivatesOn is the set of event names that make this node a
		// candidate for activation, mirroring Agent.ActivatesOn.
		ActivatesOn map[string]bool
		// When is an optional guard; a nil When always activates.
		When func(state S) bool
		// Items renders the items to iterate for a "foreach" node from state
		// and the triggering event. Unused for "loop" nodes.
		Items func(state S, trigger Event) []any
		// Until is the "loop" node's termination predicate over the
		// iteration index. Unused for "foreach" nodes.
		Until func(state S, iterationIndex int) bool
		// Body runs one iteration's single child given the item (nil for a
		// loop node), the iteration index, and the state/trigger that
		// activated the node.
		Body func(ctx context.Context, item any, iterationIndex int, state S, trigger Event) (outputKey string, output any, err error)
		// OnComplete transforms the node's finished iterations (outermost
		// first, including any carried over from before a pause) into
		// events, mirroring Agent.OnOutput.
		OnComplete func(iterations []CompletedIteration, trigger Event) []Event
	}

	// WorkflowDef ties together a workflow's typed state, its handlers,
	// its agents, its container nodes, and its termination predicate.
	WorkflowDef[S any] struct {
		Name         string
		InitialState S
		// Handlers maps event name -> reducer. An event with no registered
		// handler passes through unchanged (spec.md §4.E).
		Handlers map[string]Handler[S]
		// Agents are considered in declaration order; the first whose
		// ActivatesOn matches the triggering event and whose When (if any)
		// passes is activated (spec.md §4.F).
		Agents []Agent[S]
		// Containers are considered, after Agents, in declaration order with
		// the same first-match-wins rule (spec.md §4.G).
		Containers []ContainerNode[S]
		// Until is the termination predicate, evaluated against the current
		// derived state after every activation.
		Until func(state S) bool
	}
)
