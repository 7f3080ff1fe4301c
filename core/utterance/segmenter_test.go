package utterance

import (
	"bytes"
	"math/rand"
	"testing"
	"time"
)

func frame(marker byte) []byte {
	return bytes.Repeat([]byte{marker}, 960)
}

func assertInitialState(t *testing.T, s *Segmenter) {
	t.Helper()
	if s.triggered || s.utterance != nil || s.utteranceFrames != 0 || s.voicedRun != 0 || s.silentRun != 0 || s.preRoll.len() != 0 {
		t.Fatalf("expected untriggered initial state, got triggered=%v frames=%d voiced=%d silent=%d preroll=%d",
			s.triggered, s.utteranceFrames, s.voicedRun, s.silentRun, s.preRoll.len())
	}
}

func TestThreeVoicedThenTenSilentFramesEmitOnce(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	var emitted [][]byte
	startedCount := 0
	for i := 0; i < 13; i++ {
		voiced := i < 3
		observation := s.Observe(frame(byte(i+1)), voiced)
		if observation.SpeechStarted {
			startedCount++
		}
		if observation.Ready() {
			emitted = append(emitted, observation.Utterance)
		}
	}

	if startedCount != 1 {
		t.Fatalf("expected exactly one speech started signal, got %d", startedCount)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(emitted))
	}
	if got := len(emitted[0]) / 960; got != 13 {
		t.Fatalf("expected utterance spanning 13 frames, got %d", got)
	}
	for i := 0; i < 13; i++ {
		if emitted[0][i*960] != byte(i+1) {
			t.Fatalf("expected frame %d in order, got marker %d", i, emitted[0][i*960])
		}
	}
	assertInitialState(t, s)
}

func TestNineSilentFramesDoNotEndUtterance(t *testing.T) {
	s := NewSegmenter(DefaultConfig())
	for i := 0; i < 3; i++ {
		s.Observe(frame(1), true)
	}
	for i := 0; i < 9; i++ {
		if observation := s.Observe(frame(0), false); observation.Ready() {
			t.Fatalf("expected no utterance after %d silent frames", i+1)
		}
	}
	if !s.Triggered() {
		t.Fatalf("expected segmenter to still be triggered")
	}
}

func TestNoUtteranceBeforeTriggerThreshold(t *testing.T) {
	s := NewSegmenter(Config{TriggerFrames: 3})

	pattern := []bool{true, false, true, true, false, true, false, false, true, true}
	for i, voiced := range pattern {
		if observation := s.Observe(frame(1), voiced); observation.SpeechStarted || observation.Ready() {
			t.Fatalf("expected nothing at frame %d before three consecutive voiced frames", i)
		}
	}

	if observation := s.Observe(frame(1), true); !observation.SpeechStarted {
		t.Fatalf("expected trigger on third consecutive voiced frame")
	}
}

func TestPreRollDropsOldestFrames(t *testing.T) {
	s := NewSegmenter(Config{PreRoll: 90 * time.Millisecond})

	for i := 0; i < 10; i++ {
		s.Observe(frame(byte(i+1)), false)
	}
	s.Observe(frame(11), true)
	s.Observe(frame(12), true)

	if !s.Triggered() {
		t.Fatalf("expected trigger")
	}
	if s.utteranceFrames != 3 {
		t.Fatalf("expected pre-roll of 3 frames to seed utterance, got %d", s.utteranceFrames)
	}
	if s.utterance[0] != 10 || s.utterance[960] != 11 || s.utterance[1920] != 12 {
		t.Fatalf("expected last three frames in order, got %d %d %d", s.utterance[0], s.utterance[960], s.utterance[1920])
	}
}

func TestMaxUtteranceCapsContinuousSpeech(t *testing.T) {
	config := DefaultConfig()
	s := NewSegmenter(config)

	maxFrames := int(config.MaxUtterance / config.FrameDuration)
	if time.Duration(maxFrames)*config.FrameDuration < config.MaxUtterance {
		maxFrames++
	}
	emittedAt := -1
	for i := 0; i < maxFrames+5; i++ {
		if observation := s.Observe(frame(1), true); observation.Ready() {
			if got := time.Duration(len(observation.Utterance)/960) * config.FrameDuration; got < config.MaxUtterance {
				t.Fatalf("expected capped utterance to reach max duration, got %v", got)
			}
			emittedAt = i
			break
		}
	}

	if emittedAt != maxFrames-1 {
		t.Fatalf("expected emission at frame %d, got %d", maxFrames-1, emittedAt)
	}
	assertInitialState(t, s)
}

func TestEmissionInvariantsHoldForRandomStreams(t *testing.T) {
	config := DefaultConfig()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		s := NewSegmenter(config)
		voicedRun := 0
		seenTrigger := false
		for i := 0; i < 2000; i++ {
			voiced := rng.Intn(3) > 0
			if voiced {
				voicedRun++
			} else {
				voicedRun = 0
			}
			if voicedRun >= config.TriggerFrames {
				seenTrigger = true
			}

			silentRun := s.silentRun
			observation := s.Observe(frame(1), voiced)
			if !observation.Ready() {
				continue
			}
			if !seenTrigger {
				t.Fatalf("utterance emitted before trigger threshold reached")
			}

			silence := time.Duration(0)
			if !voiced {
				silence = time.Duration(silentRun) * config.FrameDuration
			}
			duration := time.Duration(len(observation.Utterance)/960) * config.FrameDuration
			if silence < config.EndSilence && duration < config.MaxUtterance {
				t.Fatalf("emission with silence %v and duration %v", silence, duration)
			}
			assertInitialState(t, s)
			seenTrigger = false
			voicedRun = 0
		}
	}
}

func TestResetDropsPartialUtterance(t *testing.T) {
	s := NewSegmenter(DefaultConfig())
	s.Observe(frame(1), true)
	s.Observe(frame(1), true)
	s.Observe(frame(1), false)

	s.Reset()
	assertInitialState(t, s)
}
