package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/transport"
	"go.opentelemetry.io/otel/attribute"
)

// Orchestrator owns the process-wide resources and runs one Session per
// connected client.
type Orchestrator struct {
	resources      *Resources
	store          *memory.Store
	config         SessionConfig
	logger         *slog.Logger
	sessionOptions []SessionOption

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewOrchestrator(resources *Resources, store *memory.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		resources: resources,
		store:     store,
		config:    DefaultSessionConfig(),
		logger:    logger,
		sessions:  map[string]*Session{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Serve runs a session over t until it closes. clientID may be empty, in
// which case the session waits for the client to announce one.
func (o *Orchestrator) Serve(ctx context.Context, t transport.Transport, clientID string) error {
	ctx, span := tracer.Start(ctx, "serve session")
	defer span.End()

	opts := append([]SessionOption{
		WithSessionConfig(o.config),
		WithLogger(o.logger),
		WithClientID(clientID),
	}, o.sessionOptions...)
	session := NewSession(t, o.resources, o.store, opts...)
	span.SetAttributes(attribute.String("session.id", session.ID()))

	if err := o.track(session); err != nil {
		_ = t.Close()
		return err
	}
	defer o.untrack(session)

	return session.Run(ctx)
}

func (o *Orchestrator) track(session *Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("orchestrator closed")
	}
	o.sessions[session.ID()] = session
	o.wg.Add(1)
	return nil
}

func (o *Orchestrator) untrack(session *Session) {
	o.mu.Lock()
	delete(o.sessions, session.ID())
	o.mu.Unlock()
	o.wg.Done()
}

// ActiveSessions returns the number of sessions currently running.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Close stops accepting sessions, asks every running session to close and
// waits for them to finish their teardown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for _, session := range o.sessions {
		session.Close()
	}
	o.mu.Unlock()

	o.wg.Wait()
}
