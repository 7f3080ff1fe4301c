package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-tutor/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	noopMeter = noop.NewMeterProvider().Meter(scopeName)
)

var (
	utteranceCounter = mustCounter("ema_tutor.utterances",
		"Utterances handed to transcription")
	discardedUtteranceCounter = mustCounter("ema_tutor.utterances.discarded",
		"Utterances rejected before transcription")
	synthesizedChunkCounter = mustCounter("ema_tutor.speech.chunks",
		"Reply chunks synthesized and delivered")
	droppedChunkCounter = mustCounter("ema_tutor.speech.chunks.dropped",
		"Reply chunks skipped after a synthesis failure")
	saveFailureCounter = mustCounter("ema_tutor.memory.save_failures",
		"Failed memory saves")
)

// mustCounter falls back to a no-op counter when the provider rejects the
// instrument.
func mustCounter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Error("failed to create counter", "name", name, "error", err)
		counter, _ = noopMeter.Int64Counter(name)
	}
	return counter
}
