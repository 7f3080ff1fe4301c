package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-tutor/core/llms"
)

func TestStreamParsesServerSentContent(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, content := range []string{"Paris is", " the capital."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
		}
		fmt.Fprint(w, "data: {\"choices\":[],\"x_groq\":{\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":4,\"total_tokens\":7}}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL), WithHTTPClient(server.Client()))
	stream := client.Stream(context.Background(), []llms.Message{
		llms.SystemMessage("be brief"),
		llms.UserMessage("capital of France?"),
	}, llms.WithTemperature(0.2))

	var text strings.Builder
	var usage *llms.Usage
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		switch c := chunk.(type) {
		case llms.StreamContentChunk:
			text.WriteString(c.Content())
		case llms.StreamUsageChunk:
			u := c.Usage()
			usage = &u
		}
	}

	if text.String() != "Paris is the capital." {
		t.Fatalf("expected streamed content, got %q", text.String())
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Fatalf("expected usage with 7 total tokens, got %+v", usage)
	}
	if received.Model != DefaultModel || !received.Stream {
		t.Fatalf("expected streaming request for default model, got %+v", received)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != messageRoleSystem {
		t.Fatalf("expected system then user message, got %+v", received.Messages)
	}
	if received.Temperature == nil || *received.Temperature != 0.2 {
		t.Fatalf("expected temperature to be forwarded, got %v", received.Temperature)
	}
}

func TestStreamReportsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("k"), WithURL(server.URL), WithHTTPClient(server.Client()))
	var gotErr error
	for _, err := range client.Stream(context.Background(), nil).Chunks(context.Background()) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "429") {
		t.Fatalf("expected non-OK status error, got %v", gotErr)
	}
}
