package orchestration

import (
	"context"
	"strings"

	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/speechtotext"
	"github.com/koscakluka/ema-tutor/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// turnSettings are the preferences captured when a turn is queued, so later
// control messages only affect later turns.
type turnSettings struct {
	language  string
	voice     string
	rateScale float64
	level     string
	rolePlay  *memory.RolePlay
}

func (t turnSettings) synthesisOptions(encoding audio.EncodingInfo) []texttospeech.SynthesisOption {
	return []texttospeech.SynthesisOption{
		texttospeech.WithLanguage(t.language),
		texttospeech.WithVoice(t.voice),
		texttospeech.WithRateScale(t.rateScale),
		texttospeech.WithEncodingInfo(encoding),
	}
}

type turnRequest struct {
	// Exactly one of greeting, text and utterance is set.
	greeting  string
	text      string
	utterance []byte
	settings  turnSettings
}

type prepareRequest struct {
	text     string
	settings turnSettings
	reply    chan []llms.Message
}

type turnResult struct {
	reply string
}

// currentSettings runs on the loop. The role-play is copied so a later
// client_prefs message cannot change a queued turn's persona.
func (s *Session) currentSettings() turnSettings {
	level := s.config.DefaultLevel
	if s.memory != nil {
		level = s.memory.LevelOr(level)
	}
	settings := turnSettings{
		language:  s.language,
		voice:     s.voice,
		rateScale: speechRateForLevel(level),
		level:     level,
	}
	if s.memory.RolePlayActive() {
		rolePlay := *s.memory.RolePlay
		settings.rolePlay = &rolePlay
	}
	return settings
}

// enqueueTurn never blocks the loop; a full queue drops the turn.
func (s *Session) enqueueTurn(request turnRequest) {
	select {
	case s.turns <- request:
	default:
		s.logger.Warn("turn queue full, dropping turn")
		s.emit(events.NewUserUtteranceDiscarded("busy"))
	}
}

func (s *Session) runTurns(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case request := <-s.turns:
			select {
			case <-s.done:
				return
			default:
			}
			s.processTurn(ctx, request)
		}
	}
}

func (s *Session) processTurn(ctx context.Context, request turnRequest) {
	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()

	run := panicSafeNamedWorker("turn", func(ctx context.Context) error {
		return s.runTurn(ctx, request)
	})
	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("turn failed", "error", err)
		s.emit(events.NewTurnFailed(err.Error()))
	}
}

func (s *Session) runTurn(ctx context.Context, request turnRequest) error {
	speech := request.settings.synthesisOptions(s.config.Encoding)

	if request.greeting != "" {
		pipeline := newResponsePipeline(s.config.Reply, s.resources, s.emit, speech...)
		_, err := pipeline.Run(ctx, llms.NewTextStream(request.greeting))
		return err
	}

	text, confidence := strings.TrimSpace(request.text), 1.0
	if text == "" {
		transcription, ok := s.transcribe(ctx, request)
		if !ok {
			return nil
		}
		text, confidence = transcription.Text, transcription.Confidence
	}
	s.emit(events.NewUserTranscriptFinal(text, confidence))

	messages, ok := s.requestDialogue(text, request.settings)
	if !ok {
		return nil
	}
	s.emit(events.NewTurnStarted(text))

	pipeline := newResponsePipeline(s.config.Reply, s.resources, s.emit, speech...)
	reply, err := pipeline.Run(ctx, s.resources.Dialogue(ctx, messages))
	if err != nil {
		return err
	}

	select {
	case s.results <- turnResult{reply: reply}:
	case <-s.done:
		return nil
	}
	s.emit(events.NewTurnCompleted())
	return nil
}

// transcribe returns false when the utterance produced no usable text. The
// client is told why.
func (s *Session) transcribe(ctx context.Context, request turnRequest) (speechtotext.Transcription, bool) {
	ctx, span := tracer.Start(ctx, "transcribe turn")
	defer span.End()

	utteranceCounter.Add(ctx, 1)
	span.SetAttributes(attribute.Int("utterance.bytes", len(request.utterance)))

	transcription, err := s.resources.Transcribe(ctx, request.utterance,
		speechtotext.WithLanguage(request.settings.language),
		speechtotext.WithEncodingInfo(s.config.Encoding),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("transcription failed", "error", err)
		s.emit(events.NewUserUtteranceDiscarded("transcription failed"))
		return speechtotext.Transcription{}, false
	}

	transcription.Text = strings.TrimSpace(transcription.Text)
	if transcription.Text == "" {
		s.emit(events.NewUserUtteranceDiscarded("no speech recognized"))
		return speechtotext.Transcription{}, false
	}
	return transcription, true
}

// requestDialogue asks the loop to build the dialogue messages and record
// the user text. It returns false once the session is closing.
func (s *Session) requestDialogue(text string, settings turnSettings) ([]llms.Message, bool) {
	reply := make(chan []llms.Message, 1)
	select {
	case s.prepare <- prepareRequest{text: text, settings: settings, reply: reply}:
	case <-s.done:
		return nil, false
	}
	select {
	case messages := <-reply:
		return messages, true
	case <-s.done:
		return nil, false
	}
}

// prepareDialogue runs on the loop. The context projection is taken before
// the new user text is recorded so it is not sent twice. Level and role-play
// come from the settings captured when the turn was queued.
func (s *Session) prepareDialogue(request prepareRequest) []llms.Message {
	messages := []llms.Message{
		personaMessage(s.memory, request.settings),
		correctionProtocolMessage(s.config.Reply),
	}
	messages = append(messages, s.store.ContextForDialogue(s.memory, s.config.ContextCharBudget)...)
	messages = append(messages, llms.UserMessage(request.text))

	s.store.Append(s.memory, memory.RoleUser, request.text)
	return messages
}

func (s *Session) applyTurnResult(result turnResult) {
	if strings.TrimSpace(result.reply) == "" {
		return
	}
	s.store.Append(s.memory, memory.RoleAssistant, result.reply)
}
