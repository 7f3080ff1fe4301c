package groq

import (
	"context"
	"net/http"
	"os"

	"github.com/koscakluka/ema-tutor/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.3-70b-versatile"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey     string
	url        string
	options    llms.DialogueOptions
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithAPIKey overrides the key read from GROQ_API_KEY.
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
		apiKey:  os.Getenv("GROQ_API_KEY"),
		url:     defaultURL,
		options: llms.DialogueOptions{Model: DefaultModel},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
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
		messages: toMessages(messages),
	}
}
