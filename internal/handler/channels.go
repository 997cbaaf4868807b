package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/middleware"
	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

// ChannelHandler handles the admin channel endpoints.
type ChannelHandler struct {
	relay  *service.Relay
	logger *logger.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(relay *service.Relay, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		relay:  relay,
		logger: log,
	}
}

// SendMessageRequest is the body of POST /api/v1/channels/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse reports how the relay handled a message and what it
// would have posted to the channel.
type SendMessageResponse struct {
	Outcome service.Outcome `json:"outcome"`
	Replies []string        `json:"replies"`
}

// List handles GET /api/v1/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.relay.Channels())
}

// Get handles GET /api/v1/channels/{id}
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.relay.Channel(model.ChannelID(channelID))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "channel not found")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Reset handles DELETE /api/v1/channels/{id}
func (h *ChannelHandler) Reset(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	existed, err := h.relay.Reset(r.Context(), model.ChannelID(channelID))
	if err != nil {
		h.logger.Error("failed to reset channel", zap.String("channel_id", channelID), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "failed to reset channel")
		return
	}
	if !existed {
		writeError(w, r, http.StatusNotFound, "channel not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/v1/channels/{id}/messages. The message goes through
// the full pipeline, including cooldown and filter, and the replies are
// returned in the response body instead of being posted.
func (h *ChannelHandler) Send(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateContent(req.Content); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msg := &model.InboundMessage{
		ID:         middleware.GetCorrelationID(r.Context()),
		ChannelID:  model.ChannelID(channelID),
		AuthorID:   middleware.GetSubject(r.Context()),
		Content:    req.Content,
		ReceivedAt: time.Now(),
	}

	collector := &collectingResponder{}
	outcome := h.relay.Handle(r.Context(), msg, req.Content, collector)

	writeJSON(w, http.StatusOK, &SendMessageResponse{
		Outcome: outcome,
		Replies: collector.replies(),
	})
}

// collectingResponder buffers replies for the HTTP response.
type collectingResponder struct {
	mu   sync.Mutex
	sent []string
}

func (c *collectingResponder) Reply(ctx context.Context, content string) error {
	return c.Send(ctx, content)
}

func (c *collectingResponder) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, content)
	return nil
}

func (c *collectingResponder) Typing(ctx context.Context) error {
	return nil
}

func (c *collectingResponder) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.sent...)
}
