// Package transport defines the per session channel between a client and the
// conversational core, along with its JSON wire protocol.
package transport

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-tutor/core/events"
)

var (
	// ErrMalformedMessage is returned by Receive for control messages that
	// cannot be decoded. The transport stays usable.
	ErrMalformedMessage = errors.New("malformed control message")
	// ErrTransportClosed is returned once the underlying connection is gone.
	ErrTransportClosed = errors.New("transport closed")
)

// Transport is an ordered bidirectional channel for one session.
type Transport interface {
	// Receive blocks until the next inbound message arrives.
	Receive(ctx context.Context) (Message, error)
	// Send delivers one outbound event.
	Send(ctx context.Context, event events.Event) error
	IsAlive() bool
	Close() error
}

// Message is one inbound item: an audio frame or a control message.
type Message interface {
	isMessage()
}

// AudioFrame carries one fixed size frame of mono PCM.
type AudioFrame struct {
	PCM []byte
}

// FinalTranscript supplies user text directly, skipping recognition.
type FinalTranscript struct {
	Text string
}

// ClientPrefs updates session preferences. Nil fields are left unchanged.
type ClientPrefs struct {
	Language *string
	Voice    *string
	Level    *string
	ClientID *string
	Scenario *string
}

type Ping struct{}

// CloseRequest asks the server to end the session.
type CloseRequest struct{}

// ClearMemory asks the server to erase the client's stored memory.
type ClearMemory struct{}

func (AudioFrame) isMessage()      {}
func (FinalTranscript) isMessage() {}
func (ClientPrefs) isMessage()     {}
func (Ping) isMessage()            {}
func (CloseRequest) isMessage()    {}
func (ClearMemory) isMessage()     {}
