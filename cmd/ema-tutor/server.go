package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/koscakluka/ema-tutor/core/transport/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type sessionServer interface {
	Serve(ctx context.Context, t transport.Transport, clientID string) error
	ActiveSessions() int
}

type server struct {
	// baseCtx outlives individual requests; sessions run on it so a
	// finished upgrade request does not end them.
	baseCtx  context.Context
	sessions sessionServer
	logger   *slog.Logger
}

func newServer(baseCtx context.Context, sessions sessionServer, logger *slog.Logger) *server {
	return &server{baseCtx: baseCtx, sessions: sessions, logger: logger}
}

func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("GET /v1/protocol/schema", s.handleSchema)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return otelhttp.NewHandler(mux, "ema-tutor")
}

func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("rejected session request", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	clientID := conn.ClientID()
	s.logger.Info("session connected", "remote_addr", r.RemoteAddr, "client_id", clientID)
	go func() {
		if err := s.sessions.Serve(s.baseCtx, conn, clientID); err != nil {
			s.logger.Error("session ended with error", "error", err, "client_id", clientID)
		}
	}()
}

func (s *server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	if err := json.NewEncoder(w).Encode(transport.ControlSchema()); err != nil {
		s.logger.Error("failed to write protocol schema", "error", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveSessions(),
	})
}
