package openai

import "github.com/koscakluka/ema-tutor/core/llms"

type openAIMessage struct {
	Type    messageType `json:"type"`
	Role    messageRole `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type messageType string

const (
	messageTypeMessage messageType = "message"
)

// toOpenAIMessages maps system messages to developer instructions, which is
// how the responses API expects them.
func toOpenAIMessages(messages []llms.Message) []openAIMessage {
	converted := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		role := messageRoleUser
		switch msg.Role {
		case llms.MessageRoleSystem:
			role = messageRoleDeveloper
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		}
		converted = append(converted, openAIMessage{
			Type:    messageTypeMessage,
			Role:    role,
			Content: msg.Content,
		})
	}
	return converted
}

type requestBody struct {
	Model           string          `json:"model"`
	Input           []openAIMessage `json:"input"`
	Stream          bool            `json:"stream"`
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
}

type responseBodyUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
