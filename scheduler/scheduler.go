// Package scheduler selects which flow.Agent activates on a given event,
// runs its prompt against a provider.Provider with retry/backoff and a
// timeout, validates structured output against the agent's OutputSchema,
// and translates the settled turn into new events via OnOutput. Grounded
// on the teacher's registry.validatePayloadJSONAgainstSchema (schema
// validation via santhosh-tekuri/jsonschema/v6) and the first-match-wins
// activation style implied by runtime/agent/hooks.Bus's subscriber
// iteration order.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/provider"
)

const (
	defaultBaseBackoff = 1000 * time.Millisecond
	defaultMaxBackoff  = 60000 * time.Millisecond
	defaultMaxAttempts = 10
	defaultTimeout     = 5 * time.Minute
)

// Retry configures the backoff policy applied to provider calls that fail
// with a retryable flow.Error (rate-limit or network; a provider timeout is
// not retried): base 1s doubling per attempt, cap 60s, plus a random
// +/-500ms jitter, at most 10 attempts.
type Retry struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultRetry is the policy spec.md §5 specifies.
func DefaultRetry() Retry {
	return Retry{Base: defaultBaseBackoff, Max: defaultMaxBackoff, MaxAttempts: defaultMaxAttempts, Timeout: defaultTimeout}
}

// Scheduler picks, invokes, and validates agent activations for one
// workflow definition's state type.
type Scheduler[S any] struct {
	Providers map[string]provider.Provider
	Retry     Retry
}

// New returns a Scheduler using DefaultRetry. providers maps an Agent's
// Model field (or "default" for an empty Model) to the provider.Provider
// that serves it.
func New[S any](providers map[string]provider.Provider) *Scheduler[S] {
	return &Scheduler[S]{Providers: providers, Retry: DefaultRetry()}
}

// SelectAgent returns the first agent in def.Agents whose ActivatesOn
// contains trigger.Name and whose When (if set) passes against state, or
// ok=false if none match (spec.md §4.F, "first-match-wins").
func SelectAgent[S any](def flow.WorkflowDef[S], state S, trigger flow.Event) (flow.Agent[S], bool) {
	for _, agent := range def.Agents {
		if !agent.ActivatesOn[trigger.Name] {
			continue
		}
		if agent.When != nil && !agent.When(state) {
			continue
		}
		return agent, true
	}
	return flow.Agent[S]{}, false
}

// Activate runs agent's prompt for the given state/trigger: it renders the
// prompt, resolves the provider for agent.Model, executes it with retry and
// timeout, validates any structured output against the prompt's
// StructuredSchema (agent.OutputSchema unless the prompt sets its own), and
// returns the events agent.OnOutput produces, each stamped with
// CausedBy = trigger.ID per spec.md §4.F point 4. onDomainEvent, if
// non-nil, receives every domain event translated from the provider's raw
// stream chunks (TranslateChunk) as they arrive, already stamped with the
// same cause.
func (s *Scheduler[S]) Activate(ctx context.Context, agent flow.Agent[S], state S, trigger flow.Event, onDomainEvent func(flow.Event)) ([]flow.Event, error) {
	prompt := agent.Prompt(state, trigger)
	if prompt.StructuredSchema == nil {
		prompt.StructuredSchema = agent.OutputSchema
	}

	key := agent.Model
	if key == "" {
		key = "default"
	}
	p, ok := s.Providers[key]
	if !ok {
		return nil, flow.New(flow.KindProviderInvalid, "scheduler.Activate", "no provider registered for model key "+key, nil)
	}

	onChunk := func(chunk flow.AgentStreamEvent) {
		if onDomainEvent == nil {
			return
		}
		name, payload, ok := TranslateChunk(chunk)
		if !ok {
			return
		}
		onDomainEvent(flow.NewEvent(name, payload).WithCause(trigger))
	}

	result, err := s.runWithRetry(ctx, p, agent.Model, prompt, onChunk)
	if err != nil {
		return nil, err
	}

	if prompt.StructuredSchema != nil {
		structured, err := validateStructuredOutput(prompt.StructuredSchema, result.Text)
		if err != nil {
			return nil, err
		}
		result.StructuredOutput = structured
	}

	if agent.OnOutput == nil {
		return nil, nil
	}
	produced := agent.OnOutput(result.StructuredOutput, trigger)
	out := make([]flow.Event, len(produced))
	for i, e := range produced {
		if e.CausedBy == "" {
			e = e.WithCause(trigger)
		}
		out[i] = e
	}
	return out, nil
}

// TranslateChunk implements spec.md §4.F point 4's stream-to-domain-event
// translation table: text_delta -> text:delta, text_complete ->
// text:complete, tool_call -> tool:called, tool_result -> tool:result,
// thinking_delta -> thinking:delta, thinking_complete -> thinking:complete,
// usage -> usage:reported, session_init -> agent:started. stop is
// observational only (ok=false, no event emitted), matching spec.md's
// "stop → observational only". Every payload carries "seq", the chunk's
// monotonic turn-sequence index.
func TranslateChunk(chunk flow.AgentStreamEvent) (name string, payload map[string]any, ok bool) {
	switch chunk.Type {
	case "session_init":
		return "agent:started", map[string]any{"seq": chunk.Seq, "sessionId": chunk.SessionID}, true
	case "text_delta":
		return "text:delta", map[string]any{"seq": chunk.Seq, "text": chunk.TextDelta}, true
	case "text_complete":
		return "text:complete", map[string]any{"seq": chunk.Seq, "text": chunk.TextComplete}, true
	case "thinking_delta":
		return "thinking:delta", map[string]any{"seq": chunk.Seq, "text": chunk.Thinking}, true
	case "thinking_complete":
		return "thinking:complete", map[string]any{"seq": chunk.Seq, "text": chunk.ThinkingFinal}, true
	case "tool_call":
		payload := map[string]any{"seq": chunk.Seq}
		if chunk.ToolCall != nil {
			payload["id"] = chunk.ToolCall.ID
			payload["name"] = chunk.ToolCall.Name
			payload["args"] = chunk.ToolCall.Args
		}
		return "tool:called", payload, true
	case "tool_result":
		payload := map[string]any{"seq": chunk.Seq}
		if chunk.ToolResult != nil {
			payload["toolUseId"] = chunk.ToolResult.ToolUseID
			payload["content"] = chunk.ToolResult.Content
			payload["isError"] = chunk.ToolResult.IsError
		}
		return "tool:result", payload, true
	case "usage":
		payload := map[string]any{"seq": chunk.Seq}
		if chunk.Usage != nil {
			payload["inputTokens"] = chunk.Usage.InputTokens
			payload["outputTokens"] = chunk.Usage.OutputTokens
			payload["totalTokens"] = chunk.Usage.TotalTokens
			payload["cacheReadTokens"] = chunk.Usage.CacheReadTokens
			payload["cacheWriteTokens"] = chunk.Usage.CacheWriteTokens
		}
		return "usage:reported", payload, true
	case "stop":
		return "", nil, false
	default:
		return "", nil, false
	}
}

func (s *Scheduler[S]) runWithRetry(ctx context.Context, p provider.Provider, model string, prompt flow.Prompt, onChunk func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	retry := s.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetry()
	}

	var lastErr error
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, retry.Timeout)
		result, err := p.Complete(callCtx, model, prompt, onChunk)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		fe, isFlowErr := flow.AsFlowError(err)
		if !isFlowErr || !fe.Retryable() {
			return flow.AgentRunResult{}, err
		}
		if attempt == retry.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(retry.Base, retry.Max, attempt)
		select {
		case <-ctx.Done():
			return flow.AgentRunResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return flow.AgentRunResult{}, lastErr
}

// backoffDelay computes an exponential backoff capped at max, with up to
// 500ms of jitter in either direction, per spec.md §5.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(1001))-500) * time.Millisecond
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}

func validateStructuredOutput(schemaDoc map[string]any, text string) (any, error) {
	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "agent output is not valid JSON", err)
	}

	compiler := jsonschema.NewCompiler()
	schemaBytes, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "failed to marshal output schema", err)
	}
	schemaResource, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "failed to parse output schema", err)
	}
	if err := compiler.AddResource("schema.json", schemaResource); err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "failed to register output schema", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "failed to compile output schema", err)
	}

	if err := schema.Validate(payload); err != nil {
		return nil, flow.New(flow.KindSchema, "scheduler.validateStructuredOutput", "agent output failed schema validation", err)
	}
	return payload, nil
}

