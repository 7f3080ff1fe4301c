package orchestration

import (
	"log/slog"

	"github.com/koscakluka/ema-tutor/core/audio"
)

type OrchestratorOption func(*Orchestrator)

// WithConfig sets the configuration every new session starts with.
func WithConfig(config SessionConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config = config
	}
}

func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClassifierFactory builds a voice detector per session, for detectors
// that keep state between frames.
func WithClassifierFactory(newClassifier func() audio.FrameClassifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sessionOptions = append(o.sessionOptions, func(s *Session) {
			WithFrameClassifier(newClassifier())(s)
		})
	}
}
