package speechtotext

import (
	"context"

	"github.com/koscakluka/ema-tutor/core/audio"
)

// Transcription is the result of recognizing one utterance. Text is empty
// when nothing intelligible was said.
type Transcription struct {
	Text       string
	Confidence float64
}

// Transcriber turns a complete mono utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, utterance []byte, opts ...TranscriptionOption) (Transcription, error)
}

type TranscriptionOptions struct {
	EncodingInfo audio.EncodingInfo
	// Language is a BCP-47 tag such as en-US.
	Language string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if language == "" {
			return
		}
		o.Language = language
	}
}

func DefaultOptions() TranscriptionOptions {
	return TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo(), Language: "en-US"}
}
