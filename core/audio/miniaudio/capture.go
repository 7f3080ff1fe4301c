package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type captureDevice struct {
	device *malgo.Device

	mu      sync.Mutex
	framer  *framer
	onFrame func(frame []byte)
}

func (c *captureDevice) init(audioContext *malgo.AllocatedContext, sampleRate uint32, frameBytes int) error {
	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = sampleRate
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(frameBytes / malgo.SampleSizeInBytes(malgo.FormatS16))
	config.Periods = 3

	c.framer = newFramer(frameBytes)

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16)
	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			c.push(input[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	c.device = device
	return nil
}

func (c *captureDevice) push(audio []byte) {
	c.mu.Lock()
	onFrame := c.onFrame
	var frames [][]byte
	if onFrame != nil {
		frames = c.framer.Push(audio)
	}
	c.mu.Unlock()

	for _, frame := range frames {
		onFrame(frame)
	}
}

func (c *captureDevice) start(onFrame func(frame []byte)) error {
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.mu.Lock()
	c.onFrame = onFrame
	c.framer.Reset()
	c.mu.Unlock()

	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureDevice) stop() error {
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.mu.Lock()
	c.onFrame = nil
	c.mu.Unlock()

	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureDevice) uninit() {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
}
