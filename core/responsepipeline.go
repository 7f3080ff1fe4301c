package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReplyConfig controls how a streamed reply is split for synthesis.
type ReplyConfig struct {
	CorrectionStartMarker string
	CorrectionEndMarker   string
	// MinChunkWords flushes a chunk without terminal punctuation once it
	// has this many words.
	MinChunkWords int
	// MinChunkWordsAfterCorrection replaces MinChunkWords once the reply
	// contained a correction block.
	MinChunkWordsAfterCorrection int
}

func DefaultReplyConfig() ReplyConfig {
	return ReplyConfig{
		CorrectionStartMarker:        DefaultCorrectionStartMarker,
		CorrectionEndMarker:          DefaultCorrectionEndMarker,
		MinChunkWords:                DefaultMinChunkWords,
		MinChunkWordsAfterCorrection: DefaultMinChunkWordsAfterCorrection,
	}
}

func (c ReplyConfig) withDefaults() ReplyConfig {
	defaults := DefaultReplyConfig()
	if c.CorrectionStartMarker == "" || c.CorrectionEndMarker == "" {
		c.CorrectionStartMarker = defaults.CorrectionStartMarker
		c.CorrectionEndMarker = defaults.CorrectionEndMarker
	}
	if c.MinChunkWords <= 0 {
		c.MinChunkWords = defaults.MinChunkWords
	}
	if c.MinChunkWordsAfterCorrection <= 0 {
		c.MinChunkWordsAfterCorrection = defaults.MinChunkWordsAfterCorrection
	}
	return c
}

// speechSynthesizer is the part of Resources the pipeline needs.
type speechSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

// responsePipeline turns one streamed reply into ordered text and speech
// events. Text intake and synthesis run as two workers so chunks are
// synthesized while the reply is still streaming. Speech is only released
// once the reply is complete: a reply that ends inside a correction block
// produces no audio at all.
type responsePipeline struct {
	config      ReplyConfig
	synthesizer speechSynthesizer
	speech      []texttospeech.SynthesisOption
	emit        eventEmitter

	textBuffer *textBuffer
	filter     *annotationFilter
	chunker    *sentenceChunker

	reply strings.Builder
	// openBlock is set when the reply ended inside a correction block.
	openBlock atomic.Bool
}

func newResponsePipeline(config ReplyConfig, synthesizer speechSynthesizer, emit eventEmitter, speech ...texttospeech.SynthesisOption) *responsePipeline {
	config = config.withDefaults()
	if emit == nil {
		emit = noopEventEmitter
	}
	return &responsePipeline{
		config:      config,
		synthesizer: synthesizer,
		speech:      speech,
		emit:        emit,
		textBuffer:  newTextBuffer(),
		filter:      newAnnotationFilter(config.CorrectionStartMarker, config.CorrectionEndMarker),
		chunker:     newSentenceChunker(config.MinChunkWords),
	}
}

// Run consumes stream to completion and returns the raw reply text. On
// success the last two events are the final text and the end of speech. On
// a stream failure neither is emitted and the error is returned along with
// the text received so far.
func (p *responsePipeline) Run(ctx context.Context, stream llms.Stream) (string, error) {
	if p == nil || stream == nil {
		return "", fmt.Errorf("response pipeline and stream are required")
	}

	ctx, span := tracer.Start(ctx, "run response pipeline")
	defer span.End()

	workers := newWorkerGroup(ctx)
	workers.Go("response text processing", func(ctx context.Context) error {
		return p.processResponseText(ctx, stream)
	})
	workers.Go("speech processing", p.processSpeech)

	err := workers.Wait()
	if err == nil {
		err = ctx.Err()
	}
	reply := p.reply.String()
	span.SetAttributes(attribute.Int("reply.length", len(reply)))
	if err != nil {
		err = fmt.Errorf("reply aborted: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reply, err
	}

	p.emit(events.NewAssistantResponseFinal(reply))
	p.emit(events.NewAssistantSpeechFinal())
	return reply, nil
}

func (p *responsePipeline) processResponseText(ctx context.Context, stream llms.Stream) error {
	defer p.textBuffer.TextComplete()

	ctx, span := tracer.Start(ctx, "process response text")
	defer span.End()

	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			err = fmt.Errorf("dialogue stream failed: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			p.pushText(chunk.Content())
		case llms.StreamUsageChunk:
			usage := chunk.Usage()
			span.SetAttributes(
				attribute.Int("usage.input_tokens", usage.InputTokens),
				attribute.Int("usage.output_tokens", usage.OutputTokens),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rest, terminated := p.filter.Finish()
	if !terminated {
		span.AddEvent("reply ended inside a correction block")
		p.openBlock.Store(true)
		p.chunker.Discard()
		p.textBuffer.Clear()
		return nil
	}
	p.queue(p.chunker.Add(rest))
	p.queue(p.chunker.Flush())
	return nil
}

func (p *responsePipeline) pushText(delta string) {
	if delta == "" {
		return
	}
	p.reply.WriteString(delta)
	p.emit(events.NewAssistantResponseSegment(delta))

	speakable := p.filter.Push(delta)
	if p.filter.HadCorrection() {
		p.chunker.SetMinWords(p.config.MinChunkWordsAfterCorrection)
	}
	p.queue(p.chunker.Add(speakable))
}

func (p *responsePipeline) queue(chunks []string) {
	for _, chunk := range chunks {
		p.textBuffer.AddChunk(chunk)
	}
}

func (p *responsePipeline) processSpeech(ctx context.Context) error {
	done := withContextCancelHook(ctx, p.textBuffer.Clear)
	defer close(done)

	ctx, span := tracer.Start(ctx, "process speech")
	defer span.End()

	var held []events.AssistantSpeechChunk
	for chunk := range p.textBuffer.Chunks {
		if ctx.Err() != nil {
			break
		}

		audio, err := p.synthesizer.Synthesize(ctx, chunk, p.speech...)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				break
			}
			droppedChunkCounter.Add(ctx, 1)
			span.RecordError(fmt.Errorf("failed to synthesize chunk: %w", err))
			logger.Warn("skipping reply chunk after synthesis failure", "chunk", chunk, "error", err)
			continue
		}
		held = append(held, events.NewAssistantSpeechChunk(chunk, audio, len(held)))
	}

	if ctx.Err() != nil {
		return nil
	}
	if p.openBlock.Load() {
		span.SetAttributes(attribute.Int("speech.dropped_chunks", len(held)))
		droppedChunkCounter.Add(ctx, int64(len(held)))
		return nil
	}

	for _, chunk := range held {
		synthesizedChunkCounter.Add(ctx, 1)
		p.emit(chunk)
	}
	span.SetAttributes(attribute.Int("speech.chunks", len(held)))
	return nil
}
