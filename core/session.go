package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/koscakluka/ema-tutor/core/utterance"
	"go.opentelemetry.io/otel/attribute"
)

type State string

const (
	StateConnecting State = "connecting"
	StateGreeting   State = "greeting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

const (
	DefaultLanguage          = "en-US"
	DefaultIdleTimeout       = 1200 * time.Second
	DefaultSaveInterval      = 30 * time.Second
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultSendTimeout       = 5 * time.Second
	DefaultTurnQueueCapacity = 4
	DefaultContextCharBudget = 4000
	// DefaultVoiceThreshold is the RMS level above which a frame counts as
	// speech for the built-in energy classifier.
	DefaultVoiceThreshold = 0.02

	inboundQueueCapacity = 64
	teardownSaveTimeout  = 5 * time.Second
)

type SessionConfig struct {
	DefaultLanguage string
	DefaultVoice    string
	DefaultLevel    string

	IdleTimeout      time.Duration
	SaveInterval     time.Duration
	HandshakeTimeout time.Duration
	SendTimeout      time.Duration

	TurnQueueCapacity int
	// ContextCharBudget caps the characters of past conversation sent with
	// each dialogue request.
	ContextCharBudget int

	Encoding        audio.EncodingInfo
	Segmenter       utterance.Config
	UtteranceFilter audio.UtteranceFilter
	Reply           ReplyConfig
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultLanguage:   DefaultLanguage,
		DefaultLevel:      memory.DefaultLevel,
		IdleTimeout:       DefaultIdleTimeout,
		SaveInterval:      DefaultSaveInterval,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		SendTimeout:       DefaultSendTimeout,
		TurnQueueCapacity: DefaultTurnQueueCapacity,
		ContextCharBudget: DefaultContextCharBudget,
		Encoding:          audio.GetDefaultEncodingInfo(),
		Segmenter:         utterance.DefaultConfig(),
		UtteranceFilter:   audio.DefaultUtteranceFilter(),
		Reply:             DefaultReplyConfig(),
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	defaults := DefaultSessionConfig()
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaults.DefaultLanguage
	}
	if c.DefaultLevel == "" {
		c.DefaultLevel = defaults.DefaultLevel
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = defaults.SaveInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaults.SendTimeout
	}
	if c.TurnQueueCapacity <= 0 {
		c.TurnQueueCapacity = defaults.TurnQueueCapacity
	}
	if c.ContextCharBudget == 0 {
		c.ContextCharBudget = defaults.ContextCharBudget
	}
	if c.Encoding.IsZero() {
		c.Encoding = defaults.Encoding
	}
	if c.UtteranceFilter.Encoding.IsZero() {
		c.UtteranceFilter = defaults.UtteranceFilter
		c.UtteranceFilter.Encoding = c.Encoding
	}
	c.Reply = c.Reply.withDefaults()
	return c
}

type SessionOption func(*Session)

func WithSessionConfig(config SessionConfig) SessionOption {
	return func(s *Session) {
		s.config = config
	}
}

// WithClientID sets the client id announced during the transport handshake.
func WithClientID(clientID string) SessionOption {
	return func(s *Session) {
		s.clientID = clientID
	}
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFrameClassifier replaces the built-in energy based voice detector.
func WithFrameClassifier(classifier audio.FrameClassifier) SessionOption {
	return func(s *Session) {
		s.classifier = classifier
	}
}

// Session drives one live voice connection from handshake to teardown.
//
// All memory and segmenter state is owned by the dispatch loop in Run. Turn
// work happens on a separate worker that hands results back to the loop over
// channels.
type Session struct {
	id        string
	clientID  string
	transport transport.Transport
	resources *Resources
	store     *memory.Store
	config    SessionConfig
	logger    *slog.Logger

	classifier      audio.FrameClassifier
	segmenter       *utterance.Segmenter
	utteranceFilter audio.UtteranceFilter

	state          atomic.Value
	language       string
	voice          string
	memory         *memory.Memory
	createdAt      time.Time
	lastActivityAt time.Time
	greeted        bool
	// pending holds messages that arrived while waiting for the handshake.
	pending []inboundMessage

	inbound        chan inboundMessage
	turns          chan turnRequest
	prepare        chan prepareRequest
	results        chan turnResult
	closeRequested chan struct{}
	closeOnce      sync.Once
	done           chan struct{}
	started        atomic.Bool

	sendMu sync.Mutex
	saves  sync.WaitGroup
}

type inboundMessage struct {
	message transport.Message
	err     error
}

func NewSession(t transport.Transport, resources *Resources, store *memory.Store, opts ...SessionOption) *Session {
	s := &Session{
		id:             uuid.NewString(),
		transport:      t,
		resources:      resources,
		store:          store,
		config:         DefaultSessionConfig(),
		logger:         logger,
		createdAt:      time.Now(),
		closeRequested: make(chan struct{}),
		done:           make(chan struct{}),
		prepare:        make(chan prepareRequest),
		results:        make(chan turnResult),
		inbound:        make(chan inboundMessage, inboundQueueCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.config = s.config.withDefaults()
	s.logger = s.logger.With("session_id", s.id)
	s.language = s.config.DefaultLanguage
	s.voice = s.config.DefaultVoice
	s.lastActivityAt = s.createdAt
	s.segmenter = utterance.NewSegmenter(s.config.Segmenter)
	s.utteranceFilter = s.config.UtteranceFilter
	s.turns = make(chan turnRequest, s.config.TurnQueueCapacity)
	if s.classifier == nil {
		frameBytes := s.config.Encoding.FrameBytes(s.segmenter.Config().FrameDuration)
		s.classifier = audio.NewEnergyClassifier(DefaultVoiceThreshold, frameBytes)
	}
	if s.store == nil {
		s.store = memory.NewStore(nil)
	}
	s.state.Store(StateConnecting)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// ClientID is empty until the handshake has finished.
func (s *Session) ClientID() string {
	return s.clientID
}

func (s *Session) State() State {
	return s.state.Load().(State)
}

// Close asks a running session to shut down. It does not wait for Run to
// return.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closeRequested) })
}

// Run drives the session until the transport goes away, Close is called,
// the session idles out or ctx is cancelled. It always leaves the session
// CLOSED with the transport closed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session %s already started", s.id)
	}

	ctx, span := tracer.Start(ctx, "session")
	defer span.End()

	readerCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	go s.readInbound(readerCtx)

	reason, closing := s.connect(ctx)
	span.SetAttributes(attribute.String("session.client_id", s.clientID))
	if !closing {
		s.logger = s.logger.With("client_id", s.clientID)
		go s.runTurns(context.WithoutCancel(ctx))
		reason, closing = s.greet(ctx)
	}
	if !closing {
		s.setState(StateActive)
		reason = s.dispatch(ctx)
	}

	span.SetAttributes(attribute.String("session.close_reason", reason))
	s.teardown(ctx, reason)
	return nil
}

func (s *Session) readInbound(ctx context.Context) {
	for {
		message, err := s.transport.Receive(ctx)
		select {
		case s.inbound <- inboundMessage{message: message, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, transport.ErrMalformedMessage) {
			return
		}
	}
}

func (s *Session) setState(to State) {
	from := s.State()
	if from == to {
		return
	}
	s.emit(events.NewSessionStateChanged(string(from), string(to)))
	s.state.Store(to)
	s.logger.Debug("session state changed", "from", from, "to", to)
}

// emit sends event to the client. Failures are logged and never returned.
// Once teardown has begun only state changes are sent.
func (s *Session) emit(event events.Event) {
	if s.State() == StateClosed || !s.transport.IsAlive() {
		return
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.tearingDown() && event.Kind() != events.KindSessionStateChanged {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()
	if err := s.transport.Send(ctx, event); err != nil {
		s.logger.Warn("failed to send event", "kind", event.Kind(), "error", err)
	}
}

func (s *Session) tearingDown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
