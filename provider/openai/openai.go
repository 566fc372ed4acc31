// Package openai adapts github.com/openai/openai-go to the
// provider.Provider contract, following the same adapter shape as
// provider/anthropic.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowcore-dev/flowcore/flow"
)

// Client adapts an openai.Client to provider.Provider.
type Client struct {
	sdk openai.Client
}

// New constructs a Client from an API key.
func New(apiKey string, opts ...option.RequestOption) *Client {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{sdk: openai.NewClient(all...)}
}

// Complete sends prompt to model and streams the response through sink.
func (c *Client) Complete(ctx context.Context, model string, prompt flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	messages := toOpenAIMessages(prompt)

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if prompt.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(prompt.MaxTokens))
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	var result flow.AgentRunResult
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" && sink != nil {
				sink(flow.AgentStreamEvent{Type: "text_delta", TextDelta: delta.Content})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return flow.AgentRunResult{}, classifyError(err)
	}

	if len(acc.Choices) > 0 {
		choice := acc.Choices[0]
		result.Text = choice.Message.Content
		result.StopReason = choice.FinishReason
		for _, call := range choice.Message.ToolCalls {
			args := map[string]any{}
			_ = tryDecodeJSON(call.Function.Arguments, &args)
			toolCall := flow.ToolUsePart{ID: call.ID, Name: call.Function.Name, Args: args}
			result.ToolCalls = append(result.ToolCalls, toolCall)
			if sink != nil {
				sink(flow.AgentStreamEvent{Type: "tool_call", ToolCall: &toolCall})
			}
		}
	}
	result.Usage = flow.TokenUsage{
		InputTokens:  int(acc.Usage.PromptTokens),
		OutputTokens: int(acc.Usage.CompletionTokens),
		TotalTokens:  int(acc.Usage.TotalTokens),
	}
	if sink != nil {
		sink(flow.AgentStreamEvent{Type: "usage", Usage: &result.Usage, StopReason: result.StopReason})
		sink(flow.AgentStreamEvent{Type: "stop", StopReason: result.StopReason})
	}
	return result, nil
}

func toOpenAIMessages(prompt flow.Prompt) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		out = append(out, openai.SystemMessage(prompt.System))
	}
	for _, m := range prompt.Messages {
		text := partsToText(m.Parts)
		switch m.Role {
		case flow.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func partsToText(parts []flow.Part) string {
	var out string
	for _, p := range parts {
		switch v := p.(type) {
		case flow.TextPart:
			out += v.Text
		case flow.ToolResultPart:
			out += v.Content
		}
	}
	return out
}

func tryDecodeJSON(raw string, dest *map[string]any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return flow.New(flow.KindProviderRateLimit, "openai.Complete", "rate limited", err)
		case 408, 504:
			return flow.New(flow.KindProviderTimeout, "openai.Complete", "request timed out", err)
		case 400, 422:
			return flow.New(flow.KindProviderInvalid, "openai.Complete", "invalid request", err)
		}
	}
	return flow.New(flow.KindProviderNetwork, "openai.Complete", "request failed", err)
}
