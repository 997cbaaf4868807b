package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/relay-bot/internal/conversation"
	"github.com/capitalize-ai/relay-bot/internal/cooldown"
	"github.com/capitalize-ai/relay-bot/internal/filter"
	"github.com/capitalize-ai/relay-bot/internal/llm"
	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

type staticCompleter struct {
	result llm.Result
}

func (c staticCompleter) Complete(ctx context.Context, systemPrompt string, turns []model.Turn) llm.Result {
	return c.result
}

func newTestRelay(result llm.Result) *service.Relay {
	return service.NewRelay(
		service.RelayConfig{SystemPrompt: "system"},
		cooldown.NewGate(time.Minute),
		filter.New(filter.DefaultConfig()),
		conversation.NewStore(10),
		staticCompleter{result: result},
		logger.NewNop(),
	)
}

func newChannelRouter(h *ChannelHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/channels", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Reset)
			r.Post("/messages", h.Send)
		})
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChannelHandler_SendListGetReset(t *testing.T) {
	relay := newTestRelay(llm.Result{Kind: llm.KindSuccess, Text: "안녕하세요"})
	h := newChannelRouter(NewChannelHandler(relay, logger.NewNop()))

	rec := do(t, h, http.MethodPost, "/api/v1/channels/123/messages", SendMessageRequest{Content: "안녕"})
	require.Equal(t, http.StatusOK, rec.Code)
	var sent SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, service.OutcomeCommitted, sent.Outcome)
	assert.Equal(t, []string{"안녕하세요"}, sent.Replies)

	rec = do(t, h, http.MethodPost, "/api/v1/channels/123/messages", SendMessageRequest{Content: "또"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, service.OutcomeCooldown, sent.Outcome)

	rec = do(t, h, http.MethodGet, "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list service.ListChannelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, 2, list.Channels[0].Turns)

	rec = do(t, h, http.MethodGet, "/api/v1/channels/123", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/channels/123", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/channels/123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/channels/123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelHandler_Validation(t *testing.T) {
	h := newChannelRouter(NewChannelHandler(newTestRelay(llm.Result{Kind: llm.KindSuccess, Text: "x"}), logger.NewNop()))

	rec := do(t, h, http.MethodGet, "/api/v1/channels/bad.id", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/channels/123/messages", SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/123/messages", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/channels/123/messages", bytes.NewBufferString(`{"content":"hi","author":"x"}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"invalid request body"`)
}

func TestChannelHandler_SendReportsFailureReply(t *testing.T) {
	relay := newTestRelay(llm.Result{Kind: llm.KindHTTPError, StatusCode: 502})
	h := newChannelRouter(NewChannelHandler(relay, logger.NewNop()))

	rec := do(t, h, http.MethodPost, "/api/v1/channels/9/messages", SendMessageRequest{Content: "hi"})

	var sent SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, service.OutcomeRolledBack, sent.Outcome)
	assert.Equal(t, []string{"API 오류가 발생했습니다. (상태 코드: 502)"}, sent.Replies)
}

type stubGateway bool

func (g stubGateway) Connected() bool { return bool(g) }

func TestHealthHandler(t *testing.T) {
	for name, tc := range map[string]struct {
		gateway ReadinessChecker
		want    int
	}{
		"connected":    {stubGateway(true), http.StatusOK},
		"disconnected": {stubGateway(false), http.StatusServiceUnavailable},
		"missing":      {nil, http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			h := NewHealthHandler(tc.gateway, "discord")

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tc.want, rec.Code)

			rec = httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
