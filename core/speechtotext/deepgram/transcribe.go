package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// audioBlockSize keeps individual websocket writes small.
	audioBlockSize = 8192
)

// TranscriptionClient transcribes whole utterances by streaming them over a
// short lived listen socket.
type TranscriptionClient struct {
	apiKey string
	url    string
	model  string
	dialer *websocket.Dialer
}

type TranscriptionClientOption func(*TranscriptionClient)

// WithAPIKey overrides the key read from DEEPGRAM_API_KEY.
func WithAPIKey(apiKey string) TranscriptionClientOption {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

func WithURL(url string) TranscriptionClientOption {
	return func(c *TranscriptionClient) {
		c.url = url
	}
}

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

func NewTranscriptionClient(opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	client := &TranscriptionClient{
		apiKey: os.Getenv("DEEPGRAM_API_KEY"),
		url:    defaultListenURL,
		model:  defaultModel,
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

func (c *TranscriptionClient) Transcribe(ctx context.Context, utterance []byte, opts ...speechtotext.TranscriptionOption) (speechtotext.Transcription, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	options := speechtotext.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	span.SetAttributes(
		attribute.Int("request.audio_bytes", len(utterance)),
		attribute.String("request.language", options.Language),
	)

	transcription, err := c.transcribe(ctx, utterance, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return speechtotext.Transcription{}, err
	}
	span.SetAttributes(attribute.Float64("response.confidence", transcription.Confidence))
	return transcription, nil
}

func (c *TranscriptionClient) transcribe(ctx context.Context, utterance []byte, options speechtotext.TranscriptionOptions) (speechtotext.Transcription, error) {
	params, err := encodingParams(options.EncodingInfo)
	if err != nil {
		return speechtotext.Transcription{}, fmt.Errorf("invalid encoding: %w", err)
	}
	params.Set("model", c.model)
	params.Set("language", options.Language)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")

	listenURL, err := url.Parse(c.url)
	if err != nil {
		return speechtotext.Transcription{}, fmt.Errorf("invalid listen url: %w", err)
	}
	listenURL.RawQuery = params.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return speechtotext.Transcription{}, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
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

	for start := 0; start < len(utterance); start += audioBlockSize {
		end := min(start+audioBlockSize, len(utterance))
		if err := conn.WriteMessage(websocket.BinaryMessage, utterance[start:end]); err != nil {
			return speechtotext.Transcription{}, fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return speechtotext.Transcription{}, fmt.Errorf("failed to close deepgram stream: %w", err)
	}

	var result transcriptAccumulator
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return speechtotext.Transcription{}, fmt.Errorf("transcription interrupted: %w", ctxErr)
			}
			return speechtotext.Transcription{}, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		done, err := result.process(msg)
		if err != nil {
			logger.Warn("failed to process deepgram message", "error", err)
			continue
		}
		if done {
			break
		}
	}

	return result.transcription(), nil
}

type transcriptAccumulator struct {
	segments    []string
	confidences []float64
}

// process returns true once the server has reported the end of the stream.
func (a *transcriptAccumulator) process(msg []byte) (bool, error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return false, fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return false, fmt.Errorf("failed to unmarshal deepgram results: %w", err)
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return false, nil
		}
		alternative := msgResp.Channel.Alternatives[0]
		transcript := strings.TrimSpace(alternative.Transcript)
		if transcript != "" {
			a.segments = append(a.segments, transcript)
			a.confidences = append(a.confidences, alternative.Confidence)
		}
	case api.TypeMetadataResponse:
		// Metadata is the last message before the server closes the stream.
		return true, nil
	}
	return false, nil
}

func (a *transcriptAccumulator) transcription() speechtotext.Transcription {
	if len(a.segments) == 0 {
		return speechtotext.Transcription{}
	}
	var sum float64
	for _, confidence := range a.confidences {
		sum += confidence
	}
	return speechtotext.Transcription{
		Text:       strings.Join(a.segments, " "),
		Confidence: sum / float64(len(a.confidences)),
	}
}
