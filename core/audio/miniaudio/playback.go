package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// playbackQueue holds PCM waiting for the playback device.
type playbackQueue struct {
	mu     sync.Mutex
	buffer []byte
}

func (q *playbackQueue) Push(audio []byte) {
	q.mu.Lock()
	q.buffer = append(q.buffer, audio...)
	q.mu.Unlock()
}

func (q *playbackQueue) Clear() {
	q.mu.Lock()
	q.buffer = nil
	q.mu.Unlock()
}

func (q *playbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// fill copies queued audio into out and pads the rest with silence.
func (q *playbackQueue) fill(out []byte) {
	q.mu.Lock()
	n := copy(out, q.buffer)
	q.buffer = q.buffer[n:]
	if len(q.buffer) == 0 {
		q.buffer = nil
	}
	q.mu.Unlock()

	clear(out[n:])
}

type playbackDevice struct {
	device *malgo.Device
	queue  playbackQueue
}

func (p *playbackDevice) init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			p.queue.fill(output)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	p.device = device

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (p *playbackDevice) uninit() {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	p.queue.Clear()
}
