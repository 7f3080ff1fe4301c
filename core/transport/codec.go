package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-tutor/core/events"
)

type ControlType string

const (
	ControlFinalTranscript ControlType = "final_transcript"
	ControlClientPrefs     ControlType = "client_prefs"
	ControlPing            ControlType = "ping"
	ControlClose           ControlType = "close"
	ControlClearMemory     ControlType = "clear_memory"
)

// ControlMessage is the JSON shape of every inbound text frame.
type ControlMessage struct {
	Type     ControlType `json:"type" jsonschema:"enum=final_transcript,enum=client_prefs,enum=ping,enum=close,enum=clear_memory"`
	Text     string      `json:"text,omitempty" jsonschema:"description=User text for final_transcript"`
	Language *string     `json:"language,omitempty" jsonschema:"description=BCP-47 language tag"`
	Voice    *string     `json:"voice,omitempty"`
	Level    *string     `json:"level,omitempty" jsonschema:"example=beginner,example=intermediate,example=advanced"`
	ClientID *string     `json:"client_id,omitempty"`
	Scenario *string     `json:"scenario,omitempty" jsonschema:"description=Starts a role-play scenario"`
}

// DecodeControl parses a text frame into a Message. Any failure wraps
// ErrMalformedMessage.
func DecodeControl(data []byte) (Message, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case ControlFinalTranscript:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: final_transcript without text", ErrMalformedMessage)
		}
		return FinalTranscript{Text: text}, nil
	case ControlClientPrefs:
		return ClientPrefs{
			Language: nonEmpty(msg.Language),
			Voice:    nonEmpty(msg.Voice),
			Level:    nonEmpty(msg.Level),
			ClientID: nonEmpty(msg.ClientID),
			Scenario: nonEmpty(msg.Scenario),
		}, nil
	case ControlPing:
		return Ping{}, nil
	case ControlClose:
		return CloseRequest{}, nil
	case ControlClearMemory:
		return ClearMemory{}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
}

// EncodeControl is the inverse of DecodeControl, used by clients.
func EncodeControl(message Message) ([]byte, error) {
	var msg ControlMessage
	switch m := message.(type) {
	case FinalTranscript:
		msg = ControlMessage{Type: ControlFinalTranscript, Text: m.Text}
	case ClientPrefs:
		msg = ControlMessage{
			Type:     ControlClientPrefs,
			Language: m.Language,
			Voice:    m.Voice,
			Level:    m.Level,
			ClientID: m.ClientID,
			Scenario: m.Scenario,
		}
	case Ping:
		msg = ControlMessage{Type: ControlPing}
	case CloseRequest:
		msg = ControlMessage{Type: ControlClose}
	case ClearMemory:
		msg = ControlMessage{Type: ControlClearMemory}
	default:
		return nil, fmt.Errorf("message %T is not a control message", message)
	}
	return json.Marshal(msg)
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ServerMessage is the JSON envelope of every outbound event.
type ServerMessage struct {
	Type      events.Kind     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func EncodeEvent(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Kind(), err)
	}
	if string(data) == "{}" {
		data = nil
	}
	return json.Marshal(ServerMessage{Type: event.Kind(), Timestamp: event.Timestamp(), Data: data})
}

func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("failed to decode server message: %w", err)
	}
	return msg, nil
}
