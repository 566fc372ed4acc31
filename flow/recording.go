package flow

import "time"

type (
	// RecordingEntry is one cached provider turn: the canonical request
	// hash as key, the response/stream chunks captured verbatim, and
	// bookkeeping for when it was recorded (spec.md §3, §4.C "Recording
	// Store"). Store implementations persist these keyed by Hash.
	RecordingEntry struct {
		Hash       RecordingHash
		Request    map[string]any
		Chunks     []AgentStreamEvent
		Result     AgentRunResult
		RecordedAt time.Time
	}

	// AgentStreamEvent is one chunk of a provider turn as it streams in,
	// before it has been translated into domain Events by the scheduler's
	// translation table (spec.md §4.F point 4, §3).
	AgentStreamEvent struct {
		Type string // "session_init" | "text_delta" | "text_complete" | "tool_call" | "tool_result" | "thinking_delta" | "thinking_complete" | "usage" | "stop"
		// Seq is a monotonic index within the turn (spec.md §3, "every
		// variant carries a monotonic sequence index"), assigned by
		// provider.Wrapped as the single chokepoint every live/playback
		// chunk passes through.
		Seq int

		TextDelta     string
		TextComplete  string // set on "text_complete"
		ToolCall      *ToolUsePart
		ToolResult    *ToolResultPart // set on "tool_result"
		Thinking      string          // delta text, set on "thinking_delta"
		ThinkingFinal string          // set on "thinking_complete"
		Usage         *TokenUsage
		SessionID     string // set on "session_init"
		StopReason    string
	}

	// TokenUsage mirrors model.TokenUsage: token accounting for one
	// completed provider turn.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// AgentRunResult is the settled outcome of one agent activation: its
	// final text, any structured output validated against the agent's
	// OutputSchema, and accumulated usage.
	AgentRunResult struct {
		Text             string
		StructuredOutput any
		ToolCalls        []ToolUsePart
		Usage            TokenUsage
		StopReason       string
	}
)
