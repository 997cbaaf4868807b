package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIURL is the Groq OpenAI-compatible chat completions endpoint.
const DefaultOpenAIURL = "https://api.groq.com/openai/v1/chat/completions"

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
// One http.Client (and its connection pool) is reused for every attempt.
type OpenAIBackend struct {
	apiKey     string
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// NewOpenAIBackend creates a backend for the given endpoint URL.
func NewOpenAIBackend(apiKey, url string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI-compatible API key is required")
	}
	if url == "" {
		url = DefaultOpenAIURL
	}

	return &OpenAIBackend{
		apiKey: apiKey,
		url:    url,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		now: time.Now,
	}, nil
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Close releases idle connections.
func (b *OpenAIBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Attempt sends one chat completion request.
func (b *OpenAIBackend) Attempt(ctx context.Context, req *CompletionRequest) Result {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, turn := range req.Turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Result{Kind: KindInternal, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return Result{Kind: KindInternal, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return Result{Kind: KindConnectionError, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header, b.now()),
			Err:        errors.New("rate limit exceeded (429)"),
		}
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{
			Kind:       KindHTTPError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, snippet),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Kind: KindConnectionError, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return parseOpenAIResponse(raw)
}

// chatCompletionEnvelope is the subset of a chat completion response the
// backend reads. Pointers tell an absent field from an empty one.
type chatCompletionEnvelope struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// parseOpenAIResponse validates choices[0].message.content. A missing or
// mistyped path to the content is malformed; present but blank content is
// empty.
func parseOpenAIResponse(raw []byte) Result {
	var parsed chatCompletionEnvelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{Kind: KindMalformedResponse, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if len(parsed.Choices) == 0 {
		return Result{Kind: KindMalformedResponse, Err: fmt.Errorf("response has no choices: %.200s", raw)}
	}

	msg := parsed.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return Result{Kind: KindMalformedResponse, Err: fmt.Errorf("response has no message content: %.200s", raw)}
	}

	if strings.TrimSpace(*msg.Content) == "" {
		return Result{Kind: KindEmptyResponse, Err: errors.New("response content is empty")}
	}

	return Result{Kind: KindSuccess, Text: *msg.Content}
}
