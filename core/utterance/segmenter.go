// Package utterance turns a continuous stream of fixed-duration audio frames
// into discrete utterances bounded by silence.
package utterance

import "time"

const (
	DefaultFrameDuration = 30 * time.Millisecond
	DefaultPreRoll       = 900 * time.Millisecond
	DefaultTriggerFrames = 2
	DefaultEndSilence    = 250 * time.Millisecond
	DefaultMaxUtterance  = 7000 * time.Millisecond
)

type Config struct {
	FrameDuration time.Duration
	// PreRoll is how much audio before the trigger is kept so the first
	// syllables are not lost.
	PreRoll       time.Duration
	TriggerFrames int
	EndSilence    time.Duration
	MaxUtterance  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FrameDuration: DefaultFrameDuration,
		PreRoll:       DefaultPreRoll,
		TriggerFrames: DefaultTriggerFrames,
		EndSilence:    DefaultEndSilence,
		MaxUtterance:  DefaultMaxUtterance,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.FrameDuration <= 0 {
		c.FrameDuration = defaults.FrameDuration
	}
	if c.PreRoll <= 0 {
		c.PreRoll = defaults.PreRoll
	}
	if c.TriggerFrames <= 0 {
		c.TriggerFrames = defaults.TriggerFrames
	}
	if c.EndSilence <= 0 {
		c.EndSilence = defaults.EndSilence
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = defaults.MaxUtterance
	}
	return c
}

// Observation is the result of feeding one frame to the Segmenter. The zero
// value means nothing happened.
type Observation struct {
	// SpeechStarted is raised on the frame that triggers a new utterance and
	// should pre-empt any assistant speech still playing.
	SpeechStarted bool
	// Utterance is non-nil when an utterance boundary was detected.
	Utterance []byte
}

func (o Observation) Ready() bool {
	return o.Utterance != nil
}

// Segmenter is not safe for concurrent use; it is owned by a single session
// loop.
type Segmenter struct {
	config Config

	preRoll         *ring
	triggered       bool
	utterance       []byte
	utteranceFrames int
	voicedRun       int
	silentRun       int
}

func NewSegmenter(config Config) *Segmenter {
	config = config.withDefaults()
	capacity := int(config.PreRoll / config.FrameDuration)
	if capacity < config.TriggerFrames {
		capacity = config.TriggerFrames
	}
	return &Segmenter{
		config:  config,
		preRoll: newRing(capacity),
	}
}

func (s *Segmenter) Config() Config {
	return s.config
}

func (s *Segmenter) Triggered() bool {
	return s.triggered
}

// Observe feeds one frame and its voiced classification.
func (s *Segmenter) Observe(frame []byte, voiced bool) Observation {
	if !s.triggered {
		s.preRoll.push(frame)
		if !voiced {
			s.voicedRun = 0
			return Observation{}
		}

		s.voicedRun++
		if s.voicedRun < s.config.TriggerFrames {
			return Observation{}
		}

		s.triggered = true
		for _, f := range s.preRoll.frames() {
			s.utterance = append(s.utterance, f...)
			s.utteranceFrames++
		}
		s.preRoll.clear()

		observation := Observation{SpeechStarted: true}
		if s.duration() >= s.config.MaxUtterance {
			observation.Utterance = s.emit()
		}
		return observation
	}

	s.utterance = append(s.utterance, frame...)
	s.utteranceFrames++
	if voiced {
		s.silentRun = 0
	} else {
		s.silentRun++
	}

	if s.silence() >= s.config.EndSilence || s.duration() >= s.config.MaxUtterance {
		return Observation{Utterance: s.emit()}
	}
	return Observation{}
}

// silence is measured from the start of the first unvoiced frame of the
// current run to the start of the latest frame.
func (s *Segmenter) silence() time.Duration {
	if s.silentRun == 0 {
		return 0
	}
	return time.Duration(s.silentRun-1) * s.config.FrameDuration
}

func (s *Segmenter) duration() time.Duration {
	return time.Duration(s.utteranceFrames) * s.config.FrameDuration
}

func (s *Segmenter) emit() []byte {
	utterance := s.utterance
	s.Reset()
	return utterance
}

// Reset drops any partial utterance and returns to the untriggered state.
func (s *Segmenter) Reset() {
	s.preRoll.clear()
	s.triggered = false
	s.utterance = nil
	s.utteranceFrames = 0
	s.voicedRun = 0
	s.silentRun = 0
}

type ring struct {
	buf   [][]byte
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([][]byte, capacity)}
}

func (r *ring) push(frame []byte) {
	f := make([]byte, len(frame))
	copy(f, frame)

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = f
		r.size++
		return
	}
	r.buf[r.start] = f
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) frames() [][]byte {
	frames := make([][]byte, 0, r.size)
	for i := 0; i < r.size; i++ {
		frames = append(frames, r.buf[(r.start+i)%len(r.buf)])
	}
	return frames
}

func (r *ring) len() int {
	return r.size
}

func (r *ring) clear() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.start = 0
	r.size = 0
}
