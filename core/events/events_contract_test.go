package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "user speech started", event: NewUserSpeechStarted(), expected: KindUserSpeechStarted},
		{name: "user utterance discarded", event: NewUserUtteranceDiscarded("too short"), expected: KindUserUtteranceDiscarded},
		{name: "user transcript final", event: NewUserTranscriptFinal("text", 0.9), expected: KindUserTranscriptFinal},
		{name: "assistant response segment", event: NewAssistantResponseSegment("seg"), expected: KindAssistantResponseSegment},
		{name: "assistant response final", event: NewAssistantResponseFinal("text"), expected: KindAssistantResponseFinal},
		{name: "assistant speech chunk", event: NewAssistantSpeechChunk("text", []byte{1}, 0), expected: KindAssistantSpeechChunk},
		{name: "assistant speech final", event: NewAssistantSpeechFinal(), expected: KindAssistantSpeechFinal},
		{name: "turn started", event: NewTurnStarted("hi"), expected: KindTurnStarted},
		{name: "turn completed", event: NewTurnCompleted(), expected: KindTurnCompleted},
		{name: "turn failed", event: NewTurnFailed("boom"), expected: KindTurnFailed},
		{name: "session state changed", event: NewSessionStateChanged("connecting", "greeting"), expected: KindSessionStateChanged},
		{name: "session error", event: NewSessionError("boom"), expected: KindSessionError},
		{name: "session pong", event: NewSessionPong(), expected: KindSessionPong},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestKindNamespace(t *testing.T) {
	if got := KindAssistantSpeechChunk.Namespace(); got != "assistant_speech" {
		t.Fatalf("expected assistant_speech namespace, got %q", got)
	}
	if got := Kind("plain").Namespace(); got != "plain" {
		t.Fatalf("expected whole kind without dot, got %q", got)
	}
}
