package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

// scriptedBackend returns results in order, repeating the last one.
type scriptedBackend struct {
	results  []Result
	calls    int
	requests []*CompletionRequest
	panicMsg string
}

func (b *scriptedBackend) Name() string { return "scripted" }
func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) Attempt(ctx context.Context, req *CompletionRequest) Result {
	b.calls++
	b.requests = append(b.requests, req)
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	i := b.calls - 1
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	return b.results[i]
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(b Backend, cfg Config) (*Client, *sleepRecorder) {
	rec := &sleepRecorder{}
	return NewClient(b, cfg, logger.NewNop(), WithSleep(rec.sleep)), rec
}

func TestComplete_SuccessFirstAttempt(t *testing.T) {
	b := &scriptedBackend{results: []Result{{Kind: KindSuccess, Text: "안녕하세요"}}}
	c, rec := newTestClient(b, Config{Model: "m", MaxTokens: 64, Temperature: 0.5})

	turns := []model.Turn{model.UserTurn("안녕")}
	res := c.Complete(context.Background(), "system", turns)

	require.True(t, res.OK())
	assert.Equal(t, "안녕하세요", res.Text)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.delays)

	require.Len(t, b.requests, 1)
	assert.Equal(t, &CompletionRequest{
		SystemPrompt: "system",
		Turns:        turns,
		Model:        "m",
		MaxTokens:    64,
		Temperature:  0.5,
	}, b.requests[0])
}

func TestComplete_RateLimitedUsesRetryAfterThenSucceeds(t *testing.T) {
	b := &scriptedBackend{results: []Result{
		{Kind: KindRateLimited, StatusCode: 429, RetryAfter: 5 * time.Second},
		{Kind: KindSuccess, Text: "ok"},
	}}
	c, rec := newTestClient(b, Config{})

	res := c.Complete(context.Background(), "", nil)

	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestComplete_RateLimitedDefaultDelayAndFinalAttempt(t *testing.T) {
	b := &scriptedBackend{results: []Result{{Kind: KindRateLimited, StatusCode: 429}}}
	c, rec := newTestClient(b, Config{MaxAttempts: 2})

	res := c.Complete(context.Background(), "", nil)

	assert.Equal(t, KindRateLimited, res.Kind)
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, []time.Duration{DefaultRateLimitDelay}, rec.delays)
}

func TestComplete_HTTPErrorExhaustsAttempts(t *testing.T) {
	b := &scriptedBackend{results: []Result{{Kind: KindHTTPError, StatusCode: 500}}}
	c, rec := newTestClient(b, Config{MaxAttempts: 3})

	res := c.Complete(context.Background(), "", nil)

	assert.Equal(t, KindHTTPError, res.Kind)
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.delays)
}

func TestComplete_ConnectionErrorRetried(t *testing.T) {
	b := &scriptedBackend{results: []Result{
		{Kind: KindConnectionError, Err: errors.New("reset")},
		{Kind: KindSuccess, Text: "ok"},
	}}
	c, rec := newTestClient(b, Config{})

	res := c.Complete(context.Background(), "", nil)

	assert.True(t, res.OK())
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, rec.delays)
}

func TestComplete_NonTransientNotRetried(t *testing.T) {
	for _, kind := range []Kind{KindMalformedResponse, KindEmptyResponse, KindInternal} {
		t.Run(kind.String(), func(t *testing.T) {
			b := &scriptedBackend{results: []Result{{Kind: kind}}}
			c, rec := newTestClient(b, Config{MaxAttempts: 5})

			res := c.Complete(context.Background(), "", nil)

			assert.Equal(t, kind, res.Kind)
			assert.Equal(t, 1, b.calls)
			assert.Empty(t, rec.delays)
		})
	}
}

func TestComplete_BackendPanicIsInternal(t *testing.T) {
	b := &scriptedBackend{panicMsg: "boom"}
	c, rec := newTestClient(b, Config{MaxAttempts: 3})

	res := c.Complete(context.Background(), "", nil)

	assert.Equal(t, KindInternal, res.Kind)
	assert.Equal(t, 1, b.calls)
	assert.Empty(t, rec.delays)
	assert.ErrorContains(t, res.Err, "boom")
}

func TestComplete_CancelledDuringBackoff(t *testing.T) {
	b := &scriptedBackend{results: []Result{{Kind: KindHTTPError, StatusCode: 503}}}
	c := NewClient(b, Config{MaxAttempts: 2}, logger.NewNop(), WithSleep(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	res := c.Complete(context.Background(), "", nil)

	assert.Equal(t, KindConnectionError, res.Kind)
	assert.Equal(t, 1, b.calls)
}

func TestComplete_DoesNotAliasCallerTurns(t *testing.T) {
	b := &scriptedBackend{results: []Result{{Kind: KindSuccess, Text: "ok"}}}
	c, _ := newTestClient(b, Config{})

	turns := []model.Turn{model.UserTurn("a")}
	c.Complete(context.Background(), "", turns)
	turns[0].Content = "changed"

	assert.Equal(t, "a", b.requests[0].Turns[0].Content)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"fractional", "1.5", 1500 * time.Millisecond},
		{"negative", "-1", 0},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, ParseRetryAfter(h, now))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "http_error", KindHTTPError.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
