package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// AnthropicBackend is the Anthropic Messages API backend. The SDK's own
// retries are disabled so Client's policy is the only one in effect.
type AnthropicBackend struct {
	client     anthropic.Client
	httpClient *http.Client
	now        func() time.Time
}

// NewAnthropicBackend creates a new Anthropic backend. An empty baseURL uses
// the SDK default.
func NewAnthropicBackend(apiKey, baseURL string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	httpClient := &http.Client{}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicBackend{
		client:     anthropic.NewClient(opts...),
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// Name returns the provider name.
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// Close releases idle connections.
func (b *AnthropicBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Attempt sends one Messages API request.
func (b *AnthropicBackend) Attempt(ctx context.Context, req *CompletionRequest) Result {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    anthropicMessages(req.Turns),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				var retryAfter time.Duration
				if apiErr.Response != nil {
					retryAfter = ParseRetryAfter(apiErr.Response.Header, b.now())
				}
				return Result{Kind: KindRateLimited, StatusCode: apiErr.StatusCode, RetryAfter: retryAfter, Err: err}
			}
			return Result{Kind: KindHTTPError, StatusCode: apiErr.StatusCode, Err: err}
		}
		return Result{Kind: KindConnectionError, Err: fmt.Errorf("request failed: %w", err)}
	}

	if len(resp.Content) == 0 {
		return Result{Kind: KindMalformedResponse, Err: errors.New("response has no content blocks")}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return Result{Kind: KindEmptyResponse, Err: errors.New("response text is empty")}
	}

	return Result{Kind: KindSuccess, Text: text}
}

// anthropicMessages converts turns, dropping leading assistant turns left
// behind by buffer eviction; the Messages API expects a user turn first.
func anthropicMessages(turns []model.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case model.RoleAssistant:
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return messages
}

// NewBackend creates a backend for the named provider.
func NewBackend(provider, apiKey, url string) (Backend, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicBackend(apiKey, url)
	case "openai", "":
		return NewOpenAIBackend(apiKey, url)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
