package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-tutor/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Stream struct {
	client   *Client
	options  llms.DialogueOptions
	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.options.Model))
		span.SetAttributes(attribute.Int("request.messages", len(s.messages)))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		reqBody := requestBody{
			Model:       s.options.Model,
			Messages:    s.messages,
			Stream:      true,
			Temperature: s.options.Temperature,
			MaxTokens:   s.options.MaxTokens,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.client.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				span.RecordError(fmt.Errorf("error reading error body: %w", err))
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			var finishReason *string
			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				finishReason = choice.FinishReason
				if choice.Delta.FinishReason != nil {
					finishReason = choice.Delta.FinishReason
				}

				if choice.Delta.Content != "" {
					if !yield(llms.NewContentChunk(choice.Delta.Content, finishReason), nil) {
						return
					}
				}

				if choice.Delta.Reasoning != "" {
					if !yield(StreamReasoningChunk{finishReason: finishReason, reasoning: choice.Delta.Reasoning}, nil) {
						return
					}
				}
			}

			u := responseBody.Usage
			if u == nil && responseBody.XGroq != nil {
				u = responseBody.XGroq.Usage
			}
			if u != nil {
				span.SetAttributes(
					attribute.Int("usage.input", u.PromptTokens),
					attribute.Int("usage.output", u.CompletionTokens),
					attribute.Int("usage.total", u.TotalTokens),
					attribute.Float64("usage.queue_time", u.QueueTime),
					attribute.Float64("usage.total_time", u.TotalTime),
				)
				if !yield(StreamUsageChunk{
					finishReason: finishReason,
					usage: llms.Usage{
						InputTokens:  u.PromptTokens,
						OutputTokens: u.CompletionTokens,
						TotalTokens:  u.TotalTokens,
						QueueTime:    u.QueueTime,
						TotalTime:    u.TotalTime,
					},
				}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type StreamReasoningChunk struct {
	finishReason *string
	reasoning    string
}

func (s StreamReasoningChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamReasoningChunk) Reasoning() string {
	return s.reasoning
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
