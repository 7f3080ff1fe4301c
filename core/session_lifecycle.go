package orchestration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/transport"
)

const (
	closeReasonContext   = "context cancelled"
	closeReasonRequested = "close requested"
	closeReasonIdle      = "idle timeout"
	closeReasonClient    = "closed by client"
	closeReasonTransport = "transport failure"
)

// connect resolves the client id. Without one from the handshake it waits
// for the first client_prefs carrying an id, holding back everything else.
func (s *Session) connect(ctx context.Context) (string, bool) {
	if s.clientID != "" {
		return "", false
	}

	timer := time.NewTimer(s.config.HandshakeTimeout)
	defer timer.Stop()

handshake:
	for {
		select {
		case <-ctx.Done():
			return closeReasonContext, true
		case <-s.closeRequested:
			return closeReasonRequested, true
		case <-timer.C:
			break handshake
		case item := <-s.inbound:
			if item.err != nil {
				if errors.Is(item.err, transport.ErrMalformedMessage) {
					s.logger.Warn("ignoring malformed message", "error", item.err)
					continue
				}
				s.logger.Info("transport closed during handshake", "error", item.err)
				return closeReasonTransport, true
			}

			s.pending = append(s.pending, item)
			if prefs, ok := item.message.(transport.ClientPrefs); ok && prefs.ClientID != nil {
				s.clientID = *prefs.ClientID
				break handshake
			}
		}
	}

	if s.clientID == "" {
		s.clientID = uuid.NewString()
		s.logger.Info("no client id announced, starting anonymous session", "client_id", s.clientID)
	}
	return "", false
}

// greet loads memory, applies preferences received so far and queues the
// greeting ahead of any user turn.
func (s *Session) greet(ctx context.Context) (string, bool) {
	s.setState(StateGreeting)

	m, err := s.store.Load(ctx, s.clientID)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		m = s.store.New(s.clientID)
	case err != nil:
		s.logger.Error("failed to load memory, starting fresh", "error", err)
		m = s.store.New(s.clientID)
	default:
		s.store.BeginSession(m)
	}
	s.memory = m

	pending := s.pending
	s.pending = nil
	for _, item := range pending {
		if prefs, ok := item.message.(transport.ClientPrefs); ok {
			s.applyPrefs(prefs)
		}
	}

	s.enqueueTurn(turnRequest{greeting: greeting(m), settings: s.currentSettings()})
	s.greeted = true

	for _, item := range pending {
		if _, ok := item.message.(transport.ClientPrefs); ok {
			continue
		}
		if reason, closing := s.handleMessage(ctx, item.message); closing {
			return reason, true
		}
	}
	return "", false
}

// dispatch is the single loop that owns memory and segmenter state while
// the session is active. It returns why the session is closing.
func (s *Session) dispatch(ctx context.Context) string {
	idle := time.NewTimer(s.config.IdleTimeout)
	defer idle.Stop()
	save := time.NewTicker(s.config.SaveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return closeReasonContext
		case <-s.closeRequested:
			return closeReasonRequested
		case <-idle.C:
			s.logger.Info("session idle, closing", "idle_timeout", s.config.IdleTimeout)
			return closeReasonIdle
		case <-save.C:
			s.saveAsync(ctx)

		case item := <-s.inbound:
			if item.err != nil {
				if errors.Is(item.err, transport.ErrMalformedMessage) {
					s.logger.Warn("ignoring malformed message", "error", item.err)
					continue
				}
				s.logger.Info("transport closed", "error", item.err)
				s.emit(events.NewSessionError("connection lost"))
				return closeReasonTransport
			}

			s.lastActivityAt = time.Now()
			idle.Reset(s.config.IdleTimeout)
			if reason, closing := s.handleMessage(ctx, item.message); closing {
				return reason
			}

		case request := <-s.prepare:
			request.reply <- s.prepareDialogue(request)
		case result := <-s.results:
			s.applyTurnResult(result)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, message transport.Message) (string, bool) {
	switch message := message.(type) {
	case transport.AudioFrame:
		s.handleAudioFrame(message.PCM)
	case transport.FinalTranscript:
		s.enqueueTurn(turnRequest{text: message.Text, settings: s.currentSettings()})
	case transport.ClientPrefs:
		s.applyPrefs(message)
	case transport.Ping:
		s.emit(events.NewSessionPong())
	case transport.CloseRequest:
		return closeReasonClient, true
	case transport.ClearMemory:
		s.clearMemory(ctx)
	}
	return "", false
}

func (s *Session) handleAudioFrame(frame []byte) {
	voiced, err := s.classifier.IsVoiced(frame)
	if err != nil {
		s.logger.Debug("dropping unclassifiable frame", "error", err)
		return
	}

	observation := s.segmenter.Observe(frame, voiced)
	if observation.SpeechStarted {
		s.emit(events.NewUserSpeechStarted())
	}
	if !observation.Ready() {
		return
	}

	if !s.utteranceFilter.Accept(observation.Utterance) {
		discardedUtteranceCounter.Add(context.Background(), 1)
		s.emit(events.NewUserUtteranceDiscarded("too short or too quiet"))
		return
	}
	s.enqueueTurn(turnRequest{utterance: observation.Utterance, settings: s.currentSettings()})
}

func (s *Session) applyPrefs(prefs transport.ClientPrefs) {
	if prefs.Language != nil {
		s.language = *prefs.Language
	}
	if prefs.Voice != nil {
		s.voice = *prefs.Voice
	}
	if prefs.ClientID != nil && *prefs.ClientID != s.clientID {
		s.logger.Warn("ignoring client id change on a live session", "requested", *prefs.ClientID)
	}
	if s.memory == nil {
		return
	}
	if prefs.Level != nil && s.store.SetLevel(s.memory, *prefs.Level) {
		s.logger.Info("level changed", "level", *prefs.Level)
	}
	if prefs.Scenario != nil {
		s.store.SetRolePlay(s.memory, *prefs.Scenario, "")
		s.logger.Info("role-play started", "scenario", *prefs.Scenario)
	}
}

func (s *Session) clearMemory(ctx context.Context) {
	if err := s.store.Clear(ctx, s.clientID); err != nil {
		s.logger.Error("failed to clear memory", "error", err)
		s.emit(events.NewSessionError("failed to clear memory"))
		return
	}
	level := s.memory.Level
	s.memory = s.store.New(s.clientID)
	s.memory.Level = level
	s.logger.Info("memory cleared")
}

// saveAsync persists a snapshot of memory without blocking the loop.
func (s *Session) saveAsync(ctx context.Context) {
	snapshot, err := s.store.Snapshot(s.memory)
	if err != nil {
		saveFailureCounter.Add(ctx, 1)
		s.logger.Error("failed to snapshot memory", "error", err)
		return
	}

	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		s.save(context.WithoutCancel(ctx), snapshot)
	}()
}

func (s *Session) save(ctx context.Context, m *memory.Memory) {
	ctx, cancel := context.WithTimeout(ctx, teardownSaveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, m); err != nil {
		saveFailureCounter.Add(ctx, 1)
		s.logger.Error("failed to save memory", "error", err)
	}
}

func (s *Session) teardown(ctx context.Context, reason string) {
	s.setState(StateClosing)
	s.logger.Info("closing session", "reason", reason)
	// Under sendMu so no event other than a state change is sent after this.
	s.sendMu.Lock()
	close(s.done)
	s.sendMu.Unlock()
	s.segmenter.Reset()

	s.saves.Wait()
	if s.memory != nil {
		s.save(context.WithoutCancel(ctx), s.memory)
	}

	s.setState(StateClosed)
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("failed to close transport", "error", err)
	}
}
