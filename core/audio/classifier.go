package audio

import "fmt"

// FrameClassifier decides whether a single fixed-duration frame contains
// speech.
type FrameClassifier interface {
	IsVoiced(frame []byte) (bool, error)
}

// EnergyClassifier is a simple voice activity detector that marks a frame
// voiced when its RMS amplitude reaches Threshold.
type EnergyClassifier struct {
	Threshold  float64
	FrameBytes int
}

func NewEnergyClassifier(threshold float64, frameBytes int) *EnergyClassifier {
	return &EnergyClassifier{Threshold: threshold, FrameBytes: frameBytes}
}

func (c *EnergyClassifier) IsVoiced(frame []byte) (bool, error) {
	if c.FrameBytes > 0 && len(frame) != c.FrameBytes {
		return false, fmt.Errorf("unexpected frame size %d, expected %d", len(frame), c.FrameBytes)
	}
	return RMS(frame) >= c.Threshold, nil
}

type FrameClassifierFunc func(frame []byte) (bool, error)

func (f FrameClassifierFunc) IsVoiced(frame []byte) (bool, error) {
	return f(frame)
}
