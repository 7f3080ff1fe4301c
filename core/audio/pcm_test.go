package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func tone(samples int, amplitude int16) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected 0 for empty buffer, got %v", got)
	}
	if got := RMS(make([]byte, 960)); got != 0 {
		t.Fatalf("expected 0 for silence, got %v", got)
	}

	got := RMS(tone(480, math.MaxInt16))
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected full scale rms 1, got %v", got)
	}
}

func TestEncodingFrameBytesAndDuration(t *testing.T) {
	enc := GetDefaultEncodingInfo()
	if got := enc.FrameBytes(30 * time.Millisecond); got != 960 {
		t.Fatalf("expected 960 bytes per 30ms frame, got %d", got)
	}
	if got := enc.Duration(960); got != 30*time.Millisecond {
		t.Fatalf("expected 30ms, got %v", got)
	}
}

func TestUtteranceFilter(t *testing.T) {
	filter := DefaultUtteranceFilter()

	testCases := []struct {
		name      string
		utterance []byte
		expected  bool
	}{
		{name: "empty", utterance: nil, expected: false},
		{name: "too short", utterance: tone(1600, 8000), expected: false},
		{name: "too quiet", utterance: make([]byte, 32000), expected: false},
		{name: "long and loud", utterance: tone(16000, 8000), expected: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := filter.Accept(testCase.utterance); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestEnergyClassifier(t *testing.T) {
	classifier := NewEnergyClassifier(0.01, 960)

	voiced, err := classifier.IsVoiced(tone(480, 8000))
	if err != nil || !voiced {
		t.Fatalf("expected voiced frame, got voiced=%v err=%v", voiced, err)
	}

	voiced, err = classifier.IsVoiced(make([]byte, 960))
	if err != nil || voiced {
		t.Fatalf("expected silent frame, got voiced=%v err=%v", voiced, err)
	}

	if _, err := classifier.IsVoiced(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for wrong frame size")
	}
}
