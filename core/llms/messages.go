package llms

// MessageRole describes who the message is from
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single entry of the ordered conversation passed to a dialogue
// engine.
type Message struct {
	Role    MessageRole
	Content string
}

func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}
