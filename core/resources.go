package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/speechtotext"
	"github.com/koscakluka/ema-tutor/core/texttospeech"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultTranscriptionSlots = 1
	DefaultSynthesisSlots     = 1

	DefaultTranscriptionTimeout = 15 * time.Second
	DefaultDialogueTimeout      = 30 * time.Second
	DefaultSynthesisTimeout     = 10 * time.Second
)

// Resources are the collaborators shared by every session of a process.
// Transcription and synthesis are each limited to a fixed number of calls in
// flight; callers queue for a slot instead of failing.
type Resources struct {
	transcriber speechtotext.Transcriber
	synthesizer texttospeech.Synthesizer
	dialogue    llms.Dialogue

	transcriptionSlots *semaphore.Weighted
	synthesisSlots     *semaphore.Weighted

	transcriptionTimeout time.Duration
	dialogueTimeout      time.Duration
	synthesisTimeout     time.Duration
}

type ResourcesOption func(*resourcesOptions)

type resourcesOptions struct {
	transcriptionSlots   int64
	synthesisSlots       int64
	transcriptionTimeout time.Duration
	dialogueTimeout      time.Duration
	synthesisTimeout     time.Duration
}

func WithTranscriptionSlots(n int) ResourcesOption {
	return func(o *resourcesOptions) {
		if n > 0 {
			o.transcriptionSlots = int64(n)
		}
	}
}

func WithSynthesisSlots(n int) ResourcesOption {
	return func(o *resourcesOptions) {
		if n > 0 {
			o.synthesisSlots = int64(n)
		}
	}
}

func WithTranscriptionTimeout(timeout time.Duration) ResourcesOption {
	return func(o *resourcesOptions) {
		if timeout > 0 {
			o.transcriptionTimeout = timeout
		}
	}
}

func WithDialogueTimeout(timeout time.Duration) ResourcesOption {
	return func(o *resourcesOptions) {
		if timeout > 0 {
			o.dialogueTimeout = timeout
		}
	}
}

func WithSynthesisTimeout(timeout time.Duration) ResourcesOption {
	return func(o *resourcesOptions) {
		if timeout > 0 {
			o.synthesisTimeout = timeout
		}
	}
}

func NewResources(
	transcriber speechtotext.Transcriber,
	synthesizer texttospeech.Synthesizer,
	dialogue llms.Dialogue,
	opts ...ResourcesOption,
) *Resources {
	options := resourcesOptions{
		transcriptionSlots:   DefaultTranscriptionSlots,
		synthesisSlots:       DefaultSynthesisSlots,
		transcriptionTimeout: DefaultTranscriptionTimeout,
		dialogueTimeout:      DefaultDialogueTimeout,
		synthesisTimeout:     DefaultSynthesisTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Resources{
		transcriber:          transcriber,
		synthesizer:          synthesizer,
		dialogue:             dialogue,
		transcriptionSlots:   semaphore.NewWeighted(options.transcriptionSlots),
		synthesisSlots:       semaphore.NewWeighted(options.synthesisSlots),
		transcriptionTimeout: options.transcriptionTimeout,
		dialogueTimeout:      options.dialogueTimeout,
		synthesisTimeout:     options.synthesisTimeout,
	}
}

// Transcribe waits for a transcription slot, then calls the transcriber
// under the transcription timeout.
func (r *Resources) Transcribe(ctx context.Context, utterance []byte, opts ...speechtotext.TranscriptionOption) (speechtotext.Transcription, error) {
	if r.transcriber == nil {
		return speechtotext.Transcription{}, fmt.Errorf("no transcriber configured")
	}
	if err := r.transcriptionSlots.Acquire(ctx, 1); err != nil {
		return speechtotext.Transcription{}, fmt.Errorf("failed to acquire transcription slot: %w", err)
	}
	defer r.transcriptionSlots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.transcriptionTimeout)
	defer cancel()
	return r.transcriber.Transcribe(ctx, utterance, opts...)
}

// Synthesize waits for a synthesis slot, then calls the synthesizer under
// the per chunk synthesis timeout.
func (r *Resources) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	if r.synthesizer == nil {
		return nil, fmt.Errorf("no synthesizer configured")
	}
	if err := r.synthesisSlots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire synthesis slot: %w", err)
	}
	defer r.synthesisSlots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.synthesisTimeout)
	defer cancel()
	return r.synthesizer.Synthesize(ctx, text, opts...)
}

// Dialogue starts a reply stream. Reading the stream is bounded by the
// dialogue timeout, counted from the first call to Chunks.
func (r *Resources) Dialogue(ctx context.Context, messages []llms.Message, opts ...llms.DialogueOption) llms.Stream {
	return boundedStream{
		stream:  r.dialogue.Stream(ctx, messages, opts...),
		timeout: r.dialogueTimeout,
	}
}

type boundedStream struct {
	stream  llms.Stream
	timeout time.Duration
}

func (s boundedStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		for chunk, err := range s.stream.Chunks(ctx) {
			if !yield(chunk, err) {
				return
			}
		}
		if err := ctx.Err(); err != nil && errors.Is(err, context.DeadlineExceeded) {
			yield(nil, fmt.Errorf("dialogue timed out after %s: %w", s.timeout, err))
		}
	}
}
