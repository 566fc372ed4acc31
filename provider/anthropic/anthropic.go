// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// provider.Provider contract, grounded on the teacher's provider adapters
// over the same SDK (runtime/agent/model's Client implementations).
package anthropic

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowcore-dev/flowcore/flow"
)

// Client adapts an anthropic.Client to provider.Provider.
type Client struct {
	sdk anthropic.Client
}

// New constructs a Client from an API key. Additional option.RequestOption
// values (base URL overrides, custom http.Client, etc.) are forwarded to
// the SDK constructor.
func New(apiKey string, opts ...option.RequestOption) *Client {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{sdk: anthropic.NewClient(all...)}
}

// Complete sends prompt to model and streams the response through sink.
func (c *Client) Complete(ctx context.Context, model string, prompt flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	messages := toAnthropicMessages(prompt.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokensOrDefault(prompt.MaxTokens)),
		Messages:  messages,
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var result flow.AgentRunResult
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return flow.AgentRunResult{}, flow.New(flow.KindProviderInvalid, "anthropic.Complete", "failed to accumulate stream event", err)
		}

		switch delta := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if text := delta.Delta.Text; text != "" && sink != nil {
				sink(flow.AgentStreamEvent{Type: "text_delta", TextDelta: text})
			}
			if thinking := delta.Delta.Thinking; thinking != "" && sink != nil {
				sink(flow.AgentStreamEvent{Type: "thinking_delta", Thinking: thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return flow.AgentRunResult{}, classifyError(err)
	}

	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Text += b.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			_ = decodeToolInput(b.Input, &args)
			call := flow.ToolUsePart{ID: b.ID, Name: b.Name, Args: args}
			result.ToolCalls = append(result.ToolCalls, call)
			if sink != nil {
				sink(flow.AgentStreamEvent{Type: "tool_call", ToolCall: &call})
			}
		}
	}
	result.StopReason = string(message.StopReason)
	result.Usage = flow.TokenUsage{
		InputTokens:     int(message.Usage.InputTokens),
		OutputTokens:    int(message.Usage.OutputTokens),
		TotalTokens:     int(message.Usage.InputTokens + message.Usage.OutputTokens),
		CacheReadTokens: int(message.Usage.CacheReadInputTokens),
	}
	if sink != nil {
		sink(flow.AgentStreamEvent{Type: "usage", Usage: &result.Usage, StopReason: result.StopReason})
		sink(flow.AgentStreamEvent{Type: "stop", StopReason: result.StopReason})
	}
	return result, nil
}

func maxTokensOrDefault(max int) int {
	if max <= 0 {
		return 4096
	}
	return max
}

func toAnthropicMessages(messages []flow.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, part := range m.Parts {
			switch p := part.(type) {
			case flow.TextPart:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			case flow.ToolResultPart:
				blocks = append(blocks, anthropic.NewToolResultBlock(p.ToolUseID, p.Content, p.IsError))
			}
		}
		switch m.Role {
		case flow.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func decodeToolInput(raw any, dest *map[string]any) error {
	if m, ok := raw.(map[string]any); ok {
		*dest = m
	}
	return nil
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return flow.New(flow.KindProviderRateLimit, "anthropic.Complete", "rate limited", err)
		case 408, 504:
			return flow.New(flow.KindProviderTimeout, "anthropic.Complete", "request timed out", err)
		case 400, 422:
			return flow.New(flow.KindProviderInvalid, "anthropic.Complete", "invalid request", err)
		}
	}
	return flow.New(flow.KindProviderNetwork, "anthropic.Complete", "request failed", err)
}
