package miniaudio

// framer regroups arbitrarily sized capture buffers into frames of exactly
// size bytes.
type framer struct {
	size    int
	pending []byte
}

func newFramer(size int) *framer {
	return &framer{size: size, pending: make([]byte, 0, size*2)}
}

// Push appends audio and returns every complete frame. The returned frames
// do not alias the internal buffer.
func (f *framer) Push(audio []byte) [][]byte {
	if f.size <= 0 {
		return nil
	}
	f.pending = append(f.pending, audio...)

	var frames [][]byte
	for len(f.pending) >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.pending[:f.size])
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}
	if len(f.pending) == 0 {
		f.pending = f.pending[:0:0]
	}
	return frames
}

func (f *framer) Reset() {
	f.pending = nil
}
