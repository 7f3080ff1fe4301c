// Command ema-tutor-mic is a terminal client that talks to an ema-tutor
// server through the local microphone and speakers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	gorillaws "github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/audio/miniaudio"
	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/koscakluka/ema-tutor/core/transport/websocket"
)

func main() {
	endpoint := flag.String("url", "ws://localhost:8080/v1/session", "session endpoint")
	clientID := flag.String("client-id", os.Getenv("EMA_CLIENT_ID"), "stable learner id, keeps memory across sessions")
	language := flag.String("language", "", "learner language, e.g. en-US")
	level := flag.String("level", "", "beginner, intermediate or advanced")
	voice := flag.String("voice", "", "tutor voice")
	scenario := flag.String("scenario", "", "role-play scenario")
	sampleRate := flag.Int("sample-rate", audio.DefaultSampleRate, "capture and playback sample rate")
	flag.Parse()

	if err := run(*endpoint, *sampleRate, transport.ClientPrefs{
		ClientID: optional(*clientID),
		Language: optional(*language),
		Voice:    optional(*voice),
		Level:    optional(*level),
		Scenario: optional(*scenario),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "ema-tutor-mic: %v\n", err)
		os.Exit(1)
	}
}

func run(endpoint string, sampleRate int, prefs transport.ClientPrefs) error {
	// The terminal belongs to the view, so logs are discarded unless asked for.
	if path := os.Getenv("EMA_MIC_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := websocket.Dial(dialCtx, endpoint, valueOf(prefs.ClientID))
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendControl(prefs); err != nil {
		return fmt.Errorf("failed to send preferences: %w", err)
	}

	device, err := miniaudio.NewClient(miniaudio.WithEncodingInfo(audio.EncodingInfo{
		SampleRate: sampleRate,
		Format:     audio.EncodingLinear16,
	}))
	if err != nil {
		return err
	}
	defer device.Close()

	program := tea.NewProgram(newModel(client), tea.WithAltScreen())

	go receive(client, device, program)

	if err := device.StartCapture(func(frame []byte) {
		if err := client.SendAudio(frame); err != nil {
			slog.Debug("dropped audio frame", "error", err)
		}
	}); err != nil {
		return err
	}
	defer func() { _ = device.StopCapture() }()

	_, err = program.Run()
	return err
}

func receive(client *websocket.Client, p player, program *tea.Program) {
	for {
		msg, err := client.Receive()
		if err != nil && !errors.Is(err, transport.ErrTransportClosed) {
			slog.Warn("skipping server message", "error", err)
			continue
		}
		if err != nil {
			var closeErr *gorillaws.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == gorillaws.CloseNormalClosure {
				err = nil
			}
			program.Send(disconnectedMsg{err: err})
			return
		}

		event, err := decodeServerEvent(msg)
		if err != nil {
			slog.Warn("skipping server event", "error", err)
			continue
		}
		handleAudio(p, event)
		program.Send(event)
	}
}

func valueOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
