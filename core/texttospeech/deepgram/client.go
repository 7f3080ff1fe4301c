package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

type speakMessageType string

const (
	speakMessageSpeak   speakMessageType = "Speak"
	speakMessageFlush   speakMessageType = "Flush"
	speakMessageClose   speakMessageType = "Close"
	speakMessageFlushed speakMessageType = "Flushed"
	speakMessageWarning speakMessageType = "Warning"
)

type speakMessage struct {
	Type speakMessageType `json:"type"`
	Text string           `json:"text,omitempty"`
}

type TextToSpeechClient struct {
	apiKey string
	url    string
	dialer *websocket.Dialer
}

type TextToSpeechClientOption func(*TextToSpeechClient)

// WithAPIKey overrides the key read from DEEPGRAM_API_KEY.
func WithAPIKey(apiKey string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) {
		c.apiKey = apiKey
	}
}

func WithURL(url string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) {
		c.url = url
	}
}

func NewTextToSpeechClient(opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		apiKey: os.Getenv("DEEPGRAM_API_KEY"),
		url:    defaultSpeakURL,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}
	return client, nil
}

// Synthesize speaks text and returns the raw audio once the server has
// flushed everything for it.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	options := texttospeech.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	voice := resolveVoice(options.Voice, options.Language)
	span.SetAttributes(
		attribute.Int("request.text_length", len(text)),
		attribute.String("request.voice", string(voice)),
	)

	speech, err := c.synthesize(ctx, text, voice, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(speech)))
	return speech, nil
}

func (c *TextToSpeechClient) synthesize(ctx context.Context, text string, voice deepgramVoice, options texttospeech.SynthesisOptions) ([]byte, error) {
	speakURL, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := url.Values{}
	urlValues.Set("encoding", options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	if options.RateScale != 1.0 {
		urlValues.Set("speed", strconv.FormatFloat(options.RateScale, 'f', 2, 64))
	}
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for _, msg := range []speakMessage{{Type: speakMessageSpeak, Text: text}, {Type: speakMessageFlush}} {
		if err := conn.WriteJSON(msg); err != nil {
			return nil, fmt.Errorf("failed to send %s to deepgram: %w", msg.Type, err)
		}
	}

	var speech []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("synthesis interrupted: %w", ctxErr)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				return nil, fmt.Errorf("deepgram closed the stream before flushing")
			}
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		if msgType == websocket.BinaryMessage {
			speech = append(speech, msg...)
			continue
		}

		var control speakMessage
		if err := json.Unmarshal(msg, &control); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}
		switch control.Type {
		case speakMessageFlushed:
			if err := conn.WriteJSON(speakMessage{Type: speakMessageClose}); err != nil {
				logger.Debug("failed to close deepgram speak stream", "error", err)
			}
			return speech, nil
		case speakMessageWarning:
			logger.Warn("deepgram speak warning", "message", string(msg))
		}
	}
}
