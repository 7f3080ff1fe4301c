package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport"
)

func startServer(t *testing.T) (string, chan *Conn) {
	t.Helper()
	conns := make(chan *Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("expected upgrade, got %v", err)
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), conns
}

func TestConnRoundTrip(t *testing.T) {
	endpoint, conns := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "client-42")
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	defer client.Close()

	var conn *Conn
	select {
	case conn = <-conns:
	case <-ctx.Done():
		t.Fatalf("expected server side connection")
	}
	defer conn.Close()

	if conn.ClientID() != "client-42" {
		t.Fatalf("expected client id from handshake, got %q", conn.ClientID())
	}

	if err := client.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("expected audio send, got %v", err)
	}
	if err := client.SendControl(transport.Ping{}); err != nil {
		t.Fatalf("expected control send, got %v", err)
	}
	if err := client.SendControl(transport.ClientPrefs{}); err != nil {
		t.Fatalf("expected control send, got %v", err)
	}

	msg, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("expected frame, got %v", err)
	}
	if frame, ok := msg.(transport.AudioFrame); !ok || len(frame.PCM) != 4 {
		t.Fatalf("expected 4 byte audio frame, got %#v", msg)
	}
	if msg, err = conn.Receive(ctx); err != nil {
		t.Fatalf("expected ping, got %v", err)
	}
	if _, ok := msg.(transport.Ping); !ok {
		t.Fatalf("expected ping, got %#v", msg)
	}
	if msg, err = conn.Receive(ctx); err != nil {
		t.Fatalf("expected prefs, got %v", err)
	}
	if _, ok := msg.(transport.ClientPrefs); !ok {
		t.Fatalf("expected prefs, got %#v", msg)
	}

	if err := conn.Send(ctx, events.NewSessionPong()); err != nil {
		t.Fatalf("expected send, got %v", err)
	}
	serverMsg, err := client.Receive()
	if err != nil {
		t.Fatalf("expected server message, got %v", err)
	}
	if serverMsg.Type != events.KindSessionPong {
		t.Fatalf("expected pong, got %q", serverMsg.Type)
	}
}

func TestConnMalformedControlKeepsConnection(t *testing.T) {
	endpoint, conns := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "")
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	defer client.Close()
	conn := <-conns
	defer conn.Close()

	if err := client.write(1, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("expected raw write, got %v", err)
	}
	if err := client.SendControl(transport.CloseRequest{}); err != nil {
		t.Fatalf("expected control send, got %v", err)
	}

	if _, err := conn.Receive(ctx); !errors.Is(err, transport.ErrMalformedMessage) {
		t.Fatalf("expected malformed message, got %v", err)
	}
	if !conn.IsAlive() {
		t.Fatalf("expected connection to stay alive")
	}
	msg, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("expected close request, got %v", err)
	}
	if _, ok := msg.(transport.CloseRequest); !ok {
		t.Fatalf("expected close request, got %#v", msg)
	}
}

func TestConnReportsDisconnect(t *testing.T) {
	endpoint, conns := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "")
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	conn := <-conns
	defer conn.Close()

	_ = client.Close()

	if _, err := conn.Receive(ctx); !errors.Is(err, transport.ErrTransportClosed) {
		t.Fatalf("expected transport closed, got %v", err)
	}
	if conn.IsAlive() {
		t.Fatalf("expected connection to be reported dead")
	}
	if err := conn.Send(ctx, events.NewSessionPong()); !errors.Is(err, transport.ErrTransportClosed) {
		t.Fatalf("expected send on dead connection to fail, got %v", err)
	}
}

func TestConnReceiveHonorsContext(t *testing.T) {
	endpoint, conns := startServer(t)
	client, err := Dial(context.Background(), endpoint, "")
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	defer client.Close()
	conn := <-conns
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
