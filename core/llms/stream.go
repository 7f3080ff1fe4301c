package llms

import "context"

// Dialogue produces a streamed reply for an ordered list of messages.
type Dialogue interface {
	Stream(ctx context.Context, messages []Message, opts ...DialogueOption) Stream
}

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// TotalTokens represents the total number of tokens used.
	TotalTokens int

	// QueueTime represents the time it took to queue the request.
	//
	// Note: This might be just an approximation.
	QueueTime float64
	// TotalTime represents the total time it took to complete the request.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}

type ContentChunk struct {
	finishReason *string
	content      string
}

func NewContentChunk(content string, finishReason *string) ContentChunk {
	return ContentChunk{content: content, finishReason: finishReason}
}

func (c ContentChunk) FinishReason() *string {
	return c.finishReason
}

func (c ContentChunk) Content() string {
	return c.content
}

// TextStream replays fixed text increments as a content stream. It is used
// for replies that do not come from a dialogue engine, such as greetings.
type TextStream struct {
	increments []string
}

func NewTextStream(increments ...string) TextStream {
	return TextStream{increments: increments}
}

func (s TextStream) Chunks(ctx context.Context) func(func(StreamChunk, error) bool) {
	return func(yield func(StreamChunk, error) bool) {
		for _, increment := range s.increments {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(NewContentChunk(increment, nil), nil) {
				return
			}
		}
	}
}
