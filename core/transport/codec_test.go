package transport

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/koscakluka/ema-tutor/core/events"
)

func TestDecodeControl(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  Message
		malformed bool
	}{
		{name: "final transcript", input: `{"type":"final_transcript","text":" hola "}`, expected: FinalTranscript{Text: "hola"}},
		{name: "ping", input: `{"type":"ping"}`, expected: Ping{}},
		{name: "close", input: `{"type":"close"}`, expected: CloseRequest{}},
		{name: "clear memory", input: `{"type":"clear_memory"}`, expected: ClearMemory{}},
		{name: "invalid json", input: `{"type":`, malformed: true},
		{name: "unknown type", input: `{"type":"dance"}`, malformed: true},
		{name: "empty transcript", input: `{"type":"final_transcript","text":"  "}`, malformed: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			msg, err := DecodeControl([]byte(testCase.input))
			if testCase.malformed {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Fatalf("expected ErrMalformedMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if msg != testCase.expected {
				t.Fatalf("expected %#v, got %#v", testCase.expected, msg)
			}
		})
	}
}

func TestDecodeClientPrefsKeepsOnlyProvidedFields(t *testing.T) {
	msg, err := DecodeControl([]byte(`{"type":"client_prefs","level":"advanced","voice":"","client_id":"abc"}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	prefs, ok := msg.(ClientPrefs)
	if !ok {
		t.Fatalf("expected ClientPrefs, got %T", msg)
	}
	if prefs.Level == nil || *prefs.Level != "advanced" {
		t.Fatalf("expected advanced level, got %v", prefs.Level)
	}
	if prefs.ClientID == nil || *prefs.ClientID != "abc" {
		t.Fatalf("expected client id abc, got %v", prefs.ClientID)
	}
	if prefs.Voice != nil || prefs.Language != nil || prefs.Scenario != nil {
		t.Fatalf("expected unset fields to stay nil, got %+v", prefs)
	}
}

func TestEncodeControlRoundTrip(t *testing.T) {
	scenario := "ordering at a cafe"
	original := ClientPrefs{Scenario: &scenario}

	data, err := EncodeControl(original)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	decoded, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	prefs := decoded.(ClientPrefs)
	if prefs.Scenario == nil || *prefs.Scenario != scenario {
		t.Fatalf("expected scenario to survive, got %+v", prefs)
	}

	if _, err := EncodeControl(AudioFrame{}); err == nil {
		t.Fatalf("expected error encoding audio frame as control")
	}
}

func TestEncodeEvent(t *testing.T) {
	data, err := EncodeEvent(events.NewAssistantSpeechChunk("Hello.", []byte{1, 2}, 3))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Type != events.KindAssistantSpeechChunk {
		t.Fatalf("expected speech chunk type, got %q", msg.Type)
	}

	var payload struct {
		Text  string `json:"text"`
		Audio []byte `json:"audio"`
		Seq   int    `json:"seq"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("expected payload to decode, got %v", err)
	}
	if payload.Text != "Hello." || payload.Seq != 3 || len(payload.Audio) != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEncodeEventWithoutPayload(t *testing.T) {
	data, err := EncodeEvent(events.NewSessionPong())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	msg, _ := DecodeServerMessage(data)
	if msg.Type != events.KindSessionPong || len(msg.Data) != 0 {
		t.Fatalf("expected bare pong, got %s", data)
	}
}

func TestControlSchemaListsTypes(t *testing.T) {
	data, err := json.Marshal(ControlSchema())
	if err != nil {
		t.Fatalf("expected schema to marshal, got %v", err)
	}
	var schema struct {
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("expected schema to decode, got %v", err)
	}
	if len(schema.Properties["type"].Enum) != 5 {
		t.Fatalf("expected five control types, got %v", schema.Properties["type"].Enum)
	}
	if _, ok := schema.Properties["client_id"]; !ok {
		t.Fatalf("expected client_id property, got %s", data)
	}
}
