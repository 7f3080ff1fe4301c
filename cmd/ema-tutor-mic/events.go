package main

import (
	"encoding/json"
	"fmt"

	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport"
)

// eventPayload is the union of the fields the client reads from server
// events.
type eventPayload struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
	From       string `json:"from"`
	To         string `json:"to"`
	Audio      []byte `json:"audio"`
	Seq        int    `json:"seq"`
}

type serverEventMsg struct {
	kind    events.Kind
	payload eventPayload
}

type disconnectedMsg struct{ err error }

func decodeServerEvent(msg transport.ServerMessage) (serverEventMsg, error) {
	event := serverEventMsg{kind: msg.Type}
	if len(msg.Data) == 0 {
		return event, nil
	}
	if err := json.Unmarshal(msg.Data, &event.payload); err != nil {
		return serverEventMsg{}, fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}
	return event, nil
}

type player interface {
	Play(pcm []byte)
	ClearPlayback()
}

// handleAudio applies the playback side of an event. Audio is handled outside
// the view so that a busy terminal never delays speech.
func handleAudio(p player, event serverEventMsg) {
	switch event.kind {
	case events.KindAssistantSpeechChunk:
		if len(event.payload.Audio) > 0 {
			p.Play(event.payload.Audio)
		}
	case events.KindUserSpeechStarted:
		p.ClearPlayback()
	}
}
