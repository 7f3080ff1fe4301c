package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/koscakluka/ema-tutor/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultURL   = "https://api.openai.com/v1/responses"
	DefaultModel = "gpt-4o-mini"

	eventPrefix = "event:"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey     string
	url        string
	options    llms.DialogueOptions
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithAPIKey overrides the key read from OPENAI_API_KEY.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithURL(url string) ClientOption {
	return func(c *Client) {
		c.url = url
	}
}

func WithDefaults(opts ...llms.DialogueOption) ClientOption {
	return func(c *Client) {
		c.options = llms.ApplyOptions(c.options, opts...)
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		apiKey:     os.Getenv("OPENAI_API_KEY"),
		url:        defaultURL,
		options:    llms.DialogueOptions{Model: DefaultModel},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Stream(_ context.Context, messages []llms.Message, opts ...llms.DialogueOption) llms.Stream {
	return &Stream{
		client:   c,
		options:  llms.ApplyOptions(c.options, opts...),
		messages: toOpenAIMessages(messages),
	}
}

type Stream struct {
	client   *Client
	options  llms.DialogueOptions
	messages []openAIMessage
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		reqBody := requestBody{
			Model:           s.options.Model,
			Input:           s.messages,
			Stream:          true,
			Temperature:     s.options.Temperature,
			MaxOutputTokens: s.options.MaxTokens,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			yield(nil, fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.client.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			yield(nil, fmt.Errorf("error creating HTTP request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			yield(nil, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		usage := llms.Usage{}
		lapTime := time.Now()
		event := ""

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if len(line) == 0 {
				continue
			}

			if strings.HasPrefix(line, eventPrefix) {
				event = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
				continue
			}
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))

			switch streamingEventType(event) {
			case streamingEventResponseCreated, streamingEventResponseQueued:
				lapTime = time.Now()

			case streamingEventResponseInProgress:
				usage.QueueTime = time.Since(lapTime).Seconds()
				lapTime = time.Now()

			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if !yield(llms.NewContentChunk(responseBody.Delta, nil), nil) {
					return
				}

			case streamingEventResponseFailed:
				yield(nil, fmt.Errorf("response failed: %s", chunk))
				return

			case streamingEventResponseCompleted:
				usage.TotalTime = time.Since(lapTime).Seconds()

				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal([]byte(chunk), &responseBody); err == nil && responseBody.Response.Usage != nil {
					usage.InputTokens = responseBody.Response.Usage.InputTokens
					usage.OutputTokens = responseBody.Response.Usage.OutputTokens
					usage.TotalTokens = responseBody.Response.Usage.TotalTokens
				}

				if !yield(StreamUsageChunk{usage: usage}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta streamingEventType = "response.output_text.delta"
	streamingEventResponseCreated         streamingEventType = "response.created"
	streamingEventResponseQueued          streamingEventType = "response.queued"
	streamingEventResponseInProgress      streamingEventType = "response.in_progress"
	streamingEventResponseCompleted       streamingEventType = "response.completed"
	streamingEventResponseFailed          streamingEventType = "response.failed"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

// streamingBodyResponseCompleted is emitted when the model response is complete
type streamingBodyResponseCompleted struct {
	Response struct {
		Usage *responseBodyUsage `json:"usage"`
	} `json:"response"`
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
