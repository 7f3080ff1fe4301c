// Package miniaudio captures microphone audio in fixed-size frames and plays
// back synthesized speech through the default audio devices.
package miniaudio

import (
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-tutor/core/audio"
)

const DefaultFrameDuration = 30 * time.Millisecond

type Client struct {
	// audioContext is only kept to uninitialize it
	audioContext *malgo.AllocatedContext

	encoding      audio.EncodingInfo
	frameDuration time.Duration

	capture  captureDevice
	playback playbackDevice
}

type ClientOption func(*Client)

// WithEncodingInfo sets the sample rate used for both directions. Only
// linear16 is supported by the devices.
func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		c.encoding = encoding
	}
}

func WithFrameDuration(d time.Duration) ClientOption {
	return func(c *Client) {
		c.frameDuration = d
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		encoding:      audio.GetDefaultEncodingInfo(),
		frameDuration: DefaultFrameDuration,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported device encoding %q", client.encoding.Format.Name())
	}
	frameBytes := client.encoding.FrameBytes(client.frameDuration)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame duration %s", client.frameDuration)
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioContext

	sampleRate := uint32(client.encoding.SampleRate)
	if err := client.playback.init(audioContext, sampleRate); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.capture.init(audioContext, sampleRate, frameBytes); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

// StartCapture delivers every captured frame to onFrame from the audio
// thread. onFrame must not block.
func (c *Client) StartCapture(onFrame func(frame []byte)) error {
	return c.capture.start(onFrame)
}

func (c *Client) StopCapture() error {
	return c.capture.stop()
}

// Play queues audio behind whatever is still playing.
func (c *Client) Play(pcm []byte) {
	c.playback.queue.Push(pcm)
}

// ClearPlayback drops all queued audio.
func (c *Client) ClearPlayback() {
	c.playback.queue.Clear()
}

// Buffered returns how much queued audio is left to play.
func (c *Client) Buffered() time.Duration {
	return c.encoding.Duration(c.playback.queue.Len())
}

func (c *Client) Close() {
	c.capture.uninit()
	c.playback.uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}
