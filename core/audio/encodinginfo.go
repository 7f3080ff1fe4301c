package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// FrameBytes returns the number of bytes a mono frame of duration d occupies.
func (e EncodingInfo) FrameBytes(d time.Duration) int {
	if e.IsZero() || e.Format.ByteSize() <= 0 {
		return 0
	}
	samples := int(int64(e.SampleRate) * int64(d) / int64(time.Second))
	return samples * e.Format.ByteSize()
}

// Duration returns how long n bytes of mono audio play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	if e.IsZero() || e.Format.ByteSize() <= 0 {
		return 0
	}
	samples := int64(n / e.Format.ByteSize())
	return time.Duration(samples * int64(time.Second) / int64(e.SampleRate))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
