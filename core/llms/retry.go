package llms

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
)

// RetryingDialogue retries a failed stream a fixed number of times with a
// linearly growing pause. A stream is only retried while it has not produced
// any content, so callers never see duplicated text.
type RetryingDialogue struct {
	next     Dialogue
	attempts int
	backoff  time.Duration
}

func WithRetry(next Dialogue, attempts int, backoff time.Duration) *RetryingDialogue {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingDialogue{next: next, attempts: attempts, backoff: backoff}
}

func (d *RetryingDialogue) Stream(ctx context.Context, messages []Message, opts ...DialogueOption) Stream {
	return &retryStream{dialogue: d, messages: messages, opts: opts, streamCtx: ctx}
}

type retryStream struct {
	dialogue  *RetryingDialogue
	messages  []Message
	opts      []DialogueOption
	streamCtx context.Context
}

func (s *retryStream) Chunks(ctx context.Context) func(func(StreamChunk, error) bool) {
	return func(yield func(StreamChunk, error) bool) {
		for attempt := 1; ; attempt++ {
			produced := false
			var failure error
			stopped := false

			stream := s.dialogue.next.Stream(s.streamCtx, s.messages, s.opts...)
			for chunk, err := range stream.Chunks(ctx) {
				if err != nil {
					if !produced && attempt < s.dialogue.attempts && ctx.Err() == nil {
						failure = err
						break
					}
					if !yield(nil, err) {
						stopped = true
						break
					}
					continue
				}
				produced = true
				if !yield(chunk, nil) {
					stopped = true
					break
				}
			}
			if stopped || failure == nil {
				return
			}

			logger.Warn("dialogue stream failed, retrying",
				"attempt", attempt,
				"error", failure)
			_, span := tracer.Start(ctx, "retry dialogue stream")
			span.SetAttributes(attribute.Int("retry.attempt", attempt))
			span.RecordError(failure)
			span.End()

			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-time.After(time.Duration(attempt) * s.dialogue.backoff):
			}
		}
	}
}
