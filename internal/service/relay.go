// Package service composes the per-channel relay pipeline.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/chunker"
	"github.com/capitalize-ai/relay-bot/internal/conversation"
	"github.com/capitalize-ai/relay-bot/internal/cooldown"
	"github.com/capitalize-ai/relay-bot/internal/filter"
	"github.com/capitalize-ai/relay-bot/internal/llm"
	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
	"github.com/capitalize-ai/relay-bot/pkg/metrics"
)

// User-facing replies.
const (
	MsgRateLimited     = "API 요청 한도를 초과했습니다. 잠시 후 다시 시도해주세요."
	MsgHTTPError       = "API 오류가 발생했습니다. (상태 코드: %d)"
	MsgConnectionError = "API 연결 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
	MsgMalformed       = "API 응답이 올바르지 않습니다. 잠시 후 다시 시도해주세요."
	MsgEmpty           = "빈 응답을 받았습니다. 다시 시도해주세요."
	MsgGeneric         = "오류가 발생했습니다. 잠시 후 다시 시도해주세요."

	msgCooldown = "잠시만요! %.1f초 후에 다시 시도해주세요."
)

// typingInterval keeps a typing indicator alive; the indicator expires after
// roughly ten seconds.
const typingInterval = 8 * time.Second

// Responder posts into the channel a message came from.
type Responder interface {
	// Reply posts a threaded reply to the inbound message.
	Reply(ctx context.Context, content string) error

	// Send posts a plain follow-up message.
	Send(ctx context.Context, content string) error

	// Typing shows a typing indicator. Best effort.
	Typing(ctx context.Context) error
}

// EventSink receives relay events.
type EventSink interface {
	Publish(ctx context.Context, event *model.RelayEvent) error
}

// Outcome is how a message was handled.
type Outcome string

const (
	OutcomeCooldown   Outcome = "cooldown"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeInternal   Outcome = "internal"
	OutcomeAborted    Outcome = "aborted"
)

// RelayConfig holds the orchestrator settings.
type RelayConfig struct {
	SystemPrompt     string
	MaxMessageLength int
	IdleThreshold    time.Duration
}

// Relay runs the gate, filter, context, completion and chunking pipeline for
// each eligible message. Work on one channel is serialized; channels never
// wait on each other.
type Relay struct {
	cfg       RelayConfig
	gate      *cooldown.Gate
	filter    *filter.Filter
	store     *conversation.Store
	completer llm.Completer
	locks     *channelLocks
	events    EventSink
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
	typing    time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// WithEventSink publishes relay events to sink.
func WithEventSink(sink EventSink) Option {
	return func(r *Relay) {
		r.events = sink
	}
}

// WithTypingInterval sets how often the typing indicator is refreshed.
func WithTypingInterval(d time.Duration) Option {
	return func(r *Relay) {
		r.typing = d
	}
}

// NewRelay creates a relay.
func NewRelay(
	cfg RelayConfig,
	gate *cooldown.Gate,
	f *filter.Filter,
	store *conversation.Store,
	completer llm.Completer,
	log *logger.Logger,
	opts ...Option,
) *Relay {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = chunker.DefaultMaxLength
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = time.Hour
	}

	r := &Relay{
		cfg:       cfg,
		gate:      gate,
		filter:    f,
		store:     store,
		completer: completer,
		locks:     newChannelLocks(),
		logger:    log.Named("relay"),
		tracer:    otel.Tracer("github.com/capitalize-ai/relay-bot/internal/service"),
		now:       time.Now,
		typing:    typingInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one eligible message. Every outcome produces a reply in
// the originating channel; a panic is recovered and answered with MsgGeneric.
func (r *Relay) Handle(ctx context.Context, msg *model.InboundMessage, content string, resp Responder) (outcome Outcome) {
	log := r.logger.WithMessage(uuid.NewString(), string(msg.ChannelID), msg.ID)

	ctx, span := r.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("channel.id", string(msg.ChannelID)),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			log.Error("unexpected failure while handling message",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			r.reply(ctx, log, resp, MsgGeneric)
			outcome = OutcomeInternal
		}
		span.SetAttributes(attribute.String("relay.outcome", string(outcome)))
		metrics.RecordMessage(string(outcome))
	}()

	return r.handle(ctx, log, msg.ChannelID, content, resp)
}

func (r *Relay) handle(ctx context.Context, log *logger.Logger, channelID model.ChannelID, content string, resp Responder) Outcome {
	if ok, remaining := r.gate.TryAcquire(channelID, r.now()); !ok {
		log.Debug("cooldown active", zap.Duration("remaining", remaining))
		r.reply(ctx, log, resp, fmt.Sprintf(msgCooldown, remaining.Seconds()))
		r.publish(ctx, log, channelID, model.EventTypeCooldown, "", nil)
		return OutcomeCooldown
	}

	if reply, blocked := r.filter.Check(content); blocked {
		log.Info("message blocked by keyword filter")
		r.reply(ctx, log, resp, reply)
		r.publish(ctx, log, channelID, model.EventTypeFiltered, "", nil)
		return OutcomeFiltered
	}

	unlock, err := r.locks.Lock(ctx, channelID)
	if err != nil {
		log.Warn("abandoned message waiting for channel", zap.Error(err))
		return OutcomeAborted
	}
	defer unlock()

	return r.relay(ctx, log, channelID, content, resp)
}

// relay runs with the channel lock held. The user turn appended here is
// either followed by the assistant turn or rolled back, including when a
// panic unwinds through it.
func (r *Relay) relay(ctx context.Context, log *logger.Logger, channelID model.ChannelID, content string, resp Responder) Outcome {
	r.store.Append(channelID, model.UserTurn(content))
	pending := true
	defer func() {
		if pending {
			r.store.RollbackLast(channelID)
		}
	}()

	turns := r.store.Snapshot(channelID)

	stopTyping := r.startTyping(ctx, log, resp)
	defer stopTyping()
	res := r.completer.Complete(ctx, r.cfg.SystemPrompt, turns)
	stopTyping()

	if !res.OK() {
		r.store.RollbackLast(channelID)
		pending = false

		log.Warn("completion failed, rolled back user turn",
			zap.String("result", res.Kind.String()),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err),
		)
		r.reply(ctx, log, resp, FailureMessage(res))
		r.publish(ctx, log, channelID, model.EventTypeRolledBack, res.Kind.String(), map[string]any{
			"attempts":    res.Attempts,
			"status_code": res.StatusCode,
		})
		return OutcomeRolledBack
	}

	r.store.Append(channelID, model.AssistantTurn(res.Text))
	pending = false
	metrics.ActiveChannels.Set(float64(len(r.store.Channels())))

	chunks := chunker.Split(res.Text, r.cfg.MaxMessageLength)
	for i, chunk := range chunks {
		var err error
		if i == 0 {
			err = resp.Reply(ctx, chunk)
		} else {
			err = resp.Send(ctx, chunk)
		}
		if err != nil {
			log.Error("failed to send reply chunk", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		metrics.ChunksSent.Inc()
	}

	log.Info("reply sent",
		zap.Int("chunks", len(chunks)),
		zap.Int("attempts", res.Attempts),
	)
	r.publish(ctx, log, channelID, model.EventTypeCommitted, "", map[string]any{
		"attempts": res.Attempts,
		"chunks":   len(chunks),
	})
	return OutcomeCommitted
}

// FailureMessage maps a failed completion to its user-facing reply.
func FailureMessage(res llm.Result) string {
	switch res.Kind {
	case llm.KindRateLimited:
		return MsgRateLimited
	case llm.KindHTTPError:
		return fmt.Sprintf(MsgHTTPError, res.StatusCode)
	case llm.KindConnectionError:
		return MsgConnectionError
	case llm.KindMalformedResponse:
		return MsgMalformed
	case llm.KindEmptyResponse:
		return MsgEmpty
	default:
		return MsgGeneric
	}
}

// startTyping shows the typing indicator until the returned func is called.
func (r *Relay) startTyping(ctx context.Context, log *logger.Logger, resp Responder) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.typing)
		defer ticker.Stop()

		for {
			if err := resp.Typing(ctx); err != nil && ctx.Err() == nil {
				log.Debug("typing indicator failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func (r *Relay) reply(ctx context.Context, log *logger.Logger, resp Responder, content string) {
	if err := resp.Reply(ctx, content); err != nil {
		log.Error("failed to send reply", zap.Error(err))
	}
}

func (r *Relay) publish(ctx context.Context, log *logger.Logger, channelID model.ChannelID, eventType model.EventType, reason string, metadata map[string]any) {
	if r.events == nil {
		return
	}
	event := &model.RelayEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChannelID: channelID,
		Type:      eventType,
		Reason:    reason,
		Metadata:  metadata,
		CreatedAt: r.now(),
	}
	if err := r.events.Publish(ctx, event); err != nil {
		log.Warn("failed to publish relay event", zap.String("type", string(eventType)), zap.Error(err))
	}
}
