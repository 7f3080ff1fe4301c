// Package websocket carries the session transport over a gorilla websocket.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport"
)

const (
	// ClientIDParam is the query parameter carrying the client id during the
	// handshake.
	ClientIDParam = "client_id"

	maxMessageSize = 1 << 20
	closeWait      = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser based clients connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is a transport.Transport over one websocket connection. Receive must
// be called from a single goroutine; Send is safe for concurrent use.
type Conn struct {
	ws       *websocket.Conn
	clientID string

	writeMu sync.Mutex
	alive   atomic.Bool
	closed  sync.Once
}

var _ transport.Transport = (*Conn)(nil)

// Upgrade accepts a websocket session request.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newConn(ws, r.URL.Query().Get(ClientIDParam)), nil
}

func newConn(ws *websocket.Conn, clientID string) *Conn {
	ws.SetReadLimit(maxMessageSize)
	conn := &Conn{ws: ws, clientID: clientID}
	conn.alive.Store(true)
	return conn
}

// ClientID is the id the client announced during the handshake, if any.
func (c *Conn) ClientID() string {
	return c.clientID
}

// Receive returns the next frame. Cancelling ctx interrupts the read and
// leaves the connection unusable.
func (c *Conn) Receive(ctx context.Context) (transport.Message, error) {
	if !c.IsAlive() {
		return nil, transport.ErrTransportClosed
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		c.alive.Store(false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(transport.ErrTransportClosed, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", transport.ErrTransportClosed, err)
	}

	switch msgType {
	case websocket.BinaryMessage:
		return transport.AudioFrame{PCM: data}, nil
	case websocket.TextMessage:
		return transport.DecodeControl(data)
	}
	return nil, fmt.Errorf("%w: unexpected frame type %d", transport.ErrMalformedMessage, msgType)
}

func (c *Conn) Send(ctx context.Context, event events.Event) error {
	if !c.IsAlive() {
		return transport.ErrTransportClosed
	}
	data, err := transport.EncodeEvent(event)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.alive.Store(false)
		return fmt.Errorf("%w: %w", transport.ErrTransportClosed, err)
	}
	return nil
}

func (c *Conn) IsAlive() bool {
	return c.alive.Load()
}

// Close sends a normal closure frame and releases the connection. Repeated
// calls are ignored.
func (c *Conn) Close() error {
	var err error
	c.closed.Do(func() {
		c.alive.Store(false)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWait))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}
