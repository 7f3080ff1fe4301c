package websocket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/transport"
)

// Client is the client side of a session socket.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	alive   atomic.Bool
}

// Dial connects to a session endpoint, announcing clientID when it is set.
func Dial(ctx context.Context, endpoint, clientID string) (*Client, error) {
	sessionURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid session url: %w", err)
	}
	if clientID != "" {
		query := sessionURL.Query()
		query.Set(ClientIDParam, clientID)
		sessionURL.RawQuery = query.Encode()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, sessionURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", sessionURL.Redacted(), err)
	}
	client := &Client{ws: ws}
	client.alive.Store(true)
	return client, nil
}

func (c *Client) SendAudio(pcm []byte) error {
	return c.write(websocket.BinaryMessage, pcm)
}

func (c *Client) SendControl(message transport.Message) error {
	data, err := transport.EncodeControl(message)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		c.alive.Store(false)
		return fmt.Errorf("%w: %w", transport.ErrTransportClosed, err)
	}
	return nil
}

// Receive blocks for the next server event.
func (c *Client) Receive() (transport.ServerMessage, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.alive.Store(false)
			return transport.ServerMessage{}, fmt.Errorf("%w: %w", transport.ErrTransportClosed, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return transport.DecodeServerMessage(data)
	}
}

func (c *Client) IsAlive() bool {
	return c.alive.Load()
}

func (c *Client) Close() error {
	c.alive.Store(false)
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
