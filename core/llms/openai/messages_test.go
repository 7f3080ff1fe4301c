package openai

import (
	"testing"

	"github.com/koscakluka/ema-tutor/core/llms"
)

func TestToOpenAIMessagesMapsSystemToDeveloper(t *testing.T) {
	messages := toOpenAIMessages([]llms.Message{
		llms.SystemMessage("You are a tutor."),
		llms.UserMessage("Hola"),
		llms.AssistantMessage("Hola, que tal?"),
	})

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Role != messageRoleDeveloper || messages[0].Content != "You are a tutor." {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != messageRoleUser || messages[2].Role != messageRoleAssistant {
		t.Fatalf("unexpected roles: %+v", messages)
	}
	for _, message := range messages {
		if message.Type != messageTypeMessage {
			t.Fatalf("expected message type, got %+v", message)
		}
	}
}
