// Package llm provides the chat-completion client and its provider backends.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
	"github.com/capitalize-ai/relay-bot/pkg/metrics"
)

// Kind classifies a completion outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindHTTPError
	KindConnectionError
	KindMalformedResponse
	KindEmptyResponse
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTPError:
		return "http_error"
	case KindConnectionError:
		return "connection_error"
	case KindMalformedResponse:
		return "malformed_response"
	case KindEmptyResponse:
		return "empty_response"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Result is the outcome of a completion call. Text is set only for
// KindSuccess, StatusCode only for KindHTTPError, RetryAfter only for
// KindRateLimited. Err carries detail for logging.
type Result struct {
	Kind       Kind
	Text       string
	StatusCode int
	RetryAfter time.Duration
	Attempts   int
	Err        error
}

// OK reports whether the call produced reply text.
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

// CompletionRequest is built fresh for every call and never mutated after send.
type CompletionRequest struct {
	SystemPrompt string
	Turns        []model.Turn
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Backend performs a single upstream attempt. Implementations classify the
// attempt into a Result and never retry on their own.
type Backend interface {
	// Name returns the provider name.
	Name() string

	// Attempt sends one request.
	Attempt(ctx context.Context, req *CompletionRequest) Result

	// Close releases pooled connections.
	Close() error
}

// Completer is what the orchestrator depends on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, turns []model.Turn) Result
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Defaults for Config.
const (
	DefaultModel          = "openai/gpt-oss-120b"
	DefaultMaxTokens      = 512
	DefaultTemperature    = 0.7
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 2
	DefaultRateLimitDelay = 2 * time.Second
	DefaultRetryDelay     = time.Second
)

// Config holds request parameters and the retry policy.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64

	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxAttempts bounds the total number of attempts.
	MaxAttempts int
	// RateLimitDelay is used on 429 when the response has no Retry-After.
	RateLimitDelay time.Duration
	// RetryDelay is the fixed backoff for other transient failures.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = DefaultRateLimitDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Client applies the retry policy around a Backend.
type Client struct {
	backend Backend
	cfg     Config
	sleep   SleepFunc
	logger  *logger.Logger
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithSleep replaces the wall-clock sleep between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a client. Temperature is taken as given; zero is a
// valid temperature.
func NewClient(backend Backend, cfg Config, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		cfg:     cfg.withDefaults(),
		sleep:   sleepContext,
		logger:  log.Named("llm"),
		tracer:  otel.Tracer("github.com/capitalize-ai/relay-bot/internal/llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the backend name.
func (c *Client) Provider() string {
	return c.backend.Name()
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Close releases the backend's connections.
func (c *Client) Close() error {
	return c.backend.Close()
}

// Complete sends the system prompt and turns upstream, retrying transient
// failures up to the configured attempt count. It never touches caller state.
func (c *Client) Complete(ctx context.Context, systemPrompt string, turns []model.Turn) Result {
	start := time.Now()
	provider := c.backend.Name()

	ctx, span := c.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.turns", len(turns)),
	))
	defer span.End()

	req := &CompletionRequest{
		SystemPrompt: systemPrompt,
		Turns:        append([]model.Turn(nil), turns...),
		Model:        c.cfg.Model,
		MaxTokens:    c.cfg.MaxTokens,
		Temperature:  c.cfg.Temperature,
	}

	res := c.run(ctx, req)

	span.SetAttributes(
		attribute.String("llm.result", res.Kind.String()),
		attribute.Int("llm.attempts", res.Attempts),
	)
	if !res.OK() {
		span.SetStatus(codes.Error, res.Kind.String())
	}
	metrics.RecordCompletion(provider, res.Kind.String(), time.Since(start).Seconds())

	return res
}

func (c *Client) run(ctx context.Context, req *CompletionRequest) Result {
	var res Result

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		res = c.attempt(ctx, req)
		res.Attempts = attempt
		metrics.RecordAttempt(c.backend.Name(), res.Kind.String())

		final := attempt == c.cfg.MaxAttempts

		var delay time.Duration
		switch res.Kind {
		case KindRateLimited:
			delay = res.RetryAfter
			if delay <= 0 {
				delay = c.cfg.RateLimitDelay
			}
		case KindHTTPError, KindConnectionError:
			delay = c.cfg.RetryDelay
		default:
			if res.Kind == KindInternal {
				c.logger.Error("unexpected completion failure", zap.Error(res.Err))
			}
			return res
		}

		c.logger.Warn("completion attempt failed",
			zap.String("result", res.Kind.String()),
			zap.Int("status", res.StatusCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.Error(res.Err),
		)

		if final {
			return res
		}

		trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("reason", res.Kind.String()),
			attribute.Int64("delay_ms", delay.Milliseconds()),
		))

		if err := c.sleep(ctx, delay); err != nil {
			return Result{Kind: KindConnectionError, Attempts: attempt, Err: err}
		}
	}

	return res
}

// attempt runs one backend call under the per-attempt timeout. A panic in the
// backend becomes KindInternal and is not retried.
func (c *Client) attempt(ctx context.Context, req *CompletionRequest) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: KindInternal, Err: fmt.Errorf("backend panic: %v", r)}
		}
	}()

	return c.backend.Attempt(ctx, req)
}

// ParseRetryAfter reads a Retry-After header given in seconds (fractions
// allowed) or as an HTTP date. It returns 0 when the header is absent or
// unparseable.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
