package flow

// Part is the marker interface for one piece of message content. Modeled on
// the teacher's model.Part family, trimmed to the parts a text-first agent
// workflow actually needs: text, tool invocation, and tool result. Image,
// document, and citation parts are not modeled.
type Part interface{ isPart() }

type (
	// TextPart is plain assistant or user text.
	TextPart struct{ Text string }

	// ToolUsePart records a tool call an agent turn requested.
	ToolUsePart struct {
		ID   string
		Name string
		Args map[string]any
	}

	// ToolResultPart carries the result of a previously requested tool call
	// back into the conversation.
	ToolResultPart struct {
		ToolUseID string
		Content   string
		IsError   bool
	}
)

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// ConversationRole is who a Message is attributed to.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role  ConversationRole
	Parts []Part
}

// Text is a convenience constructor for a single-part text message.
func Text(role ConversationRole, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Prompt is what an Agent renders for one activation: a system instruction,
// the conversation to send, and an optional structured-output schema that
// overrides the agent's default OutputSchema for this activation (nil keeps
// the agent's default).
type Prompt struct {
	System           string
	Messages         []Message
	MaxTokens        int
	Temperature      float64
	StructuredSchema map[string]any
}
