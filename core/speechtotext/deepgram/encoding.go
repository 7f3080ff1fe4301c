package deepgram

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/koscakluka/ema-tutor/core/audio"
)

// encodingParams validates the encoding against what the listen endpoint
// accepts and returns it as query parameters.
func encodingParams(encoding audio.EncodingInfo) (url.Values, error) {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format.Name())
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	params := url.Values{}
	params.Set("encoding", encoding.Format.Name())
	params.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	params.Set("channels", "1")
	return params, nil
}
