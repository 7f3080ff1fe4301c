package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/memory"
)

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*Orchestrator, *memory.Store) {
	t.Helper()
	config := DefaultSessionConfig()
	config.HandshakeTimeout = 50 * time.Millisecond

	store := memory.NewStore(memory.NewInMemoryRepository())
	resources := NewResources(
		&stubTranscriber{text: "Hello"},
		&stubSynthesizer{},
		&stubDialogue{reply: []string{"Hi there."}},
	)
	opts = append([]OrchestratorOption{WithConfig(config)}, opts...)
	return NewOrchestrator(resources, store, opts...), store
}

func TestOrchestratorServesSessionUntilTransportCloses(t *testing.T) {
	orchestrator, store := newTestOrchestrator(t)
	transport := newStubTransport()

	done := make(chan error, 1)
	go func() { done <- orchestrator.Serve(context.Background(), transport, "client-7") }()

	waitForCondition(t, 2*time.Second, "greeting", func() bool {
		return transport.Count(events.KindAssistantResponseFinal) >= 1
	})
	if got := orchestrator.ActiveSessions(); got != 1 {
		t.Fatalf("expected 1 active session, got %d", got)
	}

	transport.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean session end, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session to end")
	}

	if got := orchestrator.ActiveSessions(); got != 0 {
		t.Fatalf("expected no active sessions, got %d", got)
	}
	if _, err := store.Load(context.Background(), "client-7"); err != nil {
		t.Fatalf("expected memory to be saved on disconnect, got %v", err)
	}
}

func TestOrchestratorCloseStopsAllSessions(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	transports := []*stubTransport{newStubTransport(), newStubTransport()}
	done := make(chan error, len(transports))
	for i, transport := range transports {
		clientID := []string{"a", "b"}[i]
		go func() { done <- orchestrator.Serve(context.Background(), transport, clientID) }()
	}
	waitForCondition(t, 2*time.Second, "two sessions", func() bool {
		return orchestrator.ActiveSessions() == 2
	})

	closed := make(chan struct{})
	go func() {
		orchestrator.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for orchestrator to close")
	}

	for range transports {
		<-done
	}
	for i, transport := range transports {
		if transport.IsAlive() {
			t.Fatalf("expected transport %d to be closed", i)
		}
	}
}

func TestOrchestratorRejectsSessionsAfterClose(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)
	orchestrator.Close()

	transport := newStubTransport()
	if err := orchestrator.Serve(context.Background(), transport, "late"); err == nil {
		t.Fatalf("expected error serving after close, got nil")
	}
	if transport.IsAlive() {
		t.Fatalf("expected rejected transport to be closed")
	}
}

func TestOrchestratorBuildsClassifierPerSession(t *testing.T) {
	built := 0
	orchestrator, _ := newTestOrchestrator(t, WithClassifierFactory(func() audio.FrameClassifier {
		built++
		return audio.FrameClassifierFunc(func([]byte) (bool, error) { return false, nil })
	}))

	transport := newStubTransport()
	done := make(chan error, 1)
	go func() { done <- orchestrator.Serve(context.Background(), transport, "c") }()
	waitForCondition(t, 2*time.Second, "session start", func() bool {
		return orchestrator.ActiveSessions() == 1
	})
	transport.Close()
	<-done

	if built != 1 {
		t.Fatalf("expected 1 classifier, got %d", built)
	}
}
