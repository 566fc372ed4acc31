// Package bedrock adapts github.com/aws/aws-sdk-go-v2/service/bedrockruntime
// to the provider.Provider contract, using the Converse API's streaming
// variant so the same sink-based AgentStreamEvent shape as the other two
// adapters applies uniformly.
package bedrock

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/flowcore-dev/flowcore/flow"
)

// Client adapts a bedrockruntime.Client to provider.Provider.
type Client struct {
	sdk *bedrockruntime.Client
}

// New wraps an existing bedrockruntime.Client (construct it from an
// aws.Config the caller already loaded, matching the teacher's preference
// for callers owning their own SDK client configuration).
func New(sdk *bedrockruntime.Client) *Client {
	return &Client{sdk: sdk}
}

// Complete sends prompt to model (a Bedrock model ID) and streams the
// response through sink.
func (c *Client) Complete(ctx context.Context, model string, prompt flow.Prompt, sink func(flow.AgentStreamEvent)) (flow.AgentRunResult, error) {
	messages := toBedrockMessages(prompt.Messages)

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if prompt.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: prompt.System}}
	}
	if prompt.MaxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(prompt.MaxTokens))}
	}

	out, err := c.sdk.ConverseStream(ctx, input)
	if err != nil {
		return flow.AgentRunResult{}, classifyError(err)
	}

	var result flow.AgentRunResult
	stream := out.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if textDelta, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && sink != nil {
				sink(flow.AgentStreamEvent{Type: "text_delta", TextDelta: textDelta.Value})
				result.Text += textDelta.Value
			}
		case *types.ConverseStreamOutputMemberMetadata:
			if e.Value.Usage != nil {
				result.Usage = flow.TokenUsage{
					InputTokens:  int(aws.ToInt32(e.Value.Usage.InputTokens)),
					OutputTokens: int(aws.ToInt32(e.Value.Usage.OutputTokens)),
					TotalTokens:  int(aws.ToInt32(e.Value.Usage.TotalTokens)),
				}
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			result.StopReason = string(e.Value.StopReason)
		}
	}
	if err := stream.Err(); err != nil {
		return flow.AgentRunResult{}, classifyError(err)
	}
	if sink != nil {
		sink(flow.AgentStreamEvent{Type: "usage", Usage: &result.Usage, StopReason: result.StopReason})
		sink(flow.AgentStreamEvent{Type: "stop", StopReason: result.StopReason})
	}
	return result, nil
}

func toBedrockMessages(messages []flow.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		role := types.ConversationRoleUser
		if m.Role == flow.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		var blocks []types.ContentBlock
		for _, p := range m.Parts {
			if text, ok := p.(flow.TextPart); ok {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: text.Text})
			}
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out
}

func classifyError(err error) error {
	var throttling *types.ThrottlingException
	if errors.As(err, &throttling) {
		return flow.New(flow.KindProviderRateLimit, "bedrock.Complete", "rate limited", err)
	}
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return flow.New(flow.KindProviderInvalid, "bedrock.Complete", "invalid request", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return flow.New(flow.KindProviderNetwork, "bedrock.Complete", "request failed: "+apiErr.ErrorCode(), err)
	}
	return flow.New(flow.KindProviderNetwork, "bedrock.Complete", "request failed", err)
}
