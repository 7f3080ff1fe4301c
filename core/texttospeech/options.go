package texttospeech

import (
	"context"

	"github.com/koscakluka/ema-tutor/core/audio"
)

// Synthesizer renders a piece of text into audio in a single request.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error)
}

type SynthesisOptions struct {
	// Language is a BCP-47 tag. It picks a default voice when Voice is not
	// supported by the provider.
	Language string
	Voice    string
	// RateScale slows speech down below 1.0 and speeds it up above.
	RateScale    float64
	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithLanguage(language string) SynthesisOption {
	return func(o *SynthesisOptions) {
		if language == "" {
			return
		}
		o.Language = language
	}
}

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithRateScale(scale float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		if scale <= 0 {
			return
		}
		o.RateScale = scale
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func DefaultOptions() SynthesisOptions {
	return SynthesisOptions{
		Language:     "en-US",
		RateScale:    1.0,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
}
