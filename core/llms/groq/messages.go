package groq

import (
	"github.com/koscakluka/ema-tutor/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(messages []llms.Message) []message {
	converted := make([]message, 0, len(messages))
	for _, msg := range messages {
		role := messageRoleUser
		switch msg.Role {
		case llms.MessageRoleSystem:
			role = messageRoleSystem
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		}
		converted = append(converted, message{Role: role, Content: msg.Content})
	}
	return converted
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_completion_tokens,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content      string  `json:"content,omitempty"`
			Reasoning    string  `json:"reasoning,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	// Groq reports usage under x_groq on the final chunk
	XGroq *struct {
		Usage *usage `json:"usage"`
	} `json:"x_groq,omitempty"`
	Usage *usage `json:"usage,omitempty"`
}

type usage struct {
	QueueTime        float64 `json:"queue_time"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalTime        float64 `json:"total_time"`
}
