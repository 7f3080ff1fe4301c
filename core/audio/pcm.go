package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS returns the root mean square amplitude of 16-bit little-endian mono PCM,
// normalized to [0, 1]. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += s * s
	}
	return math.Sqrt(sum / float64(samples))
}

// UtteranceFilter rejects buffers that are too short or too quiet to be worth
// sending to speech recognition.
type UtteranceFilter struct {
	Encoding    EncodingInfo
	MinDuration time.Duration
	MinEnergy   float64
}

func DefaultUtteranceFilter() UtteranceFilter {
	return UtteranceFilter{
		Encoding:    GetDefaultEncodingInfo(),
		MinDuration: 300 * time.Millisecond,
		MinEnergy:   0.005,
	}
}

// Accept reports whether the utterance passes both floors.
func (f UtteranceFilter) Accept(utterance []byte) bool {
	if len(utterance) == 0 {
		return false
	}
	if f.Encoding.Duration(len(utterance)) < f.MinDuration {
		return false
	}
	return RMS(utterance) >= f.MinEnergy
}
