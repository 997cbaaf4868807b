package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/middleware"
	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

// BridgeSelfID is the user ID the bridge answers to. Publishers address the
// bot by listing it in mention_ids or by using the chat command.
const BridgeSelfID = "relay-bot"

// MessageHandler receives each inbound bus message.
type MessageHandler func(ctx context.Context, selfID string, msg *model.InboundMessage, resp service.Responder)

// publisher is the part of *nats.Conn the bridge replies with.
type publisher interface {
	Publish(subject string, data []byte) error
}

// BridgeConfig holds the bridge subjects.
type BridgeConfig struct {
	InboundSubject string
	OutboundPrefix string
	// QueueGroup, when set, load-balances inbound messages across bridges.
	QueueGroup string
}

// Bridge is a gateway over plain NATS subjects. Inbound messages are JSON
// model.InboundMessage values; replies are JSON model.OutboundMessage values
// published to <OutboundPrefix>.<channel>.
type Bridge struct {
	cfg     BridgeConfig
	client  *Client
	handler MessageHandler
	logger  *logger.Logger

	ready     chan struct{}
	readyOnce sync.Once
	inflight  sync.WaitGroup
}

// NewBridge creates a bridge.
func NewBridge(client *Client, cfg BridgeConfig, handler MessageHandler, log *logger.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  log.Named("bridge"),
		ready:   make(chan struct{}),
	}
}

// Name returns the gateway name.
func (b *Bridge) Name() string {
	return "nats"
}

// Ready is closed once the inbound subscription is active.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Connected reports whether the NATS connection is up.
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}

// Run subscribes to the inbound subject and dispatches messages until ctx is
// done. It waits for in-flight handlers before returning.
func (b *Bridge) Run(ctx context.Context) error {
	conn := b.client.Conn()

	cb := func(m *nats.Msg) {
		msg, err := DecodeInbound(m.Data)
		if err != nil {
			b.logger.Warn("dropping invalid inbound message", zap.String("subject", m.Subject), zap.Error(err))
			return
		}

		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.handler(ctx, BridgeSelfID, msg, NewResponder(conn, b.cfg.OutboundPrefix, msg.ChannelID, msg.ID))
		}()
	}

	var sub *nats.Subscription
	var err error
	if b.cfg.QueueGroup != "" {
		sub, err = conn.QueueSubscribe(b.cfg.InboundSubject, b.cfg.QueueGroup, cb)
	} else {
		sub, err = conn.Subscribe(b.cfg.InboundSubject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.cfg.InboundSubject, err)
	}

	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("bridge listening", zap.String("subject", b.cfg.InboundSubject))

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		b.logger.Warn("failed to unsubscribe", zap.Error(err))
	}
	b.inflight.Wait()
	return nil
}

// DecodeInbound parses and validates an inbound bus message.
func DecodeInbound(data []byte) (*model.InboundMessage, error) {
	var msg model.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := middleware.ValidateChannelID(string(msg.ChannelID)); err != nil {
		return nil, err
	}
	if err := middleware.ValidateContent(msg.Content); err != nil {
		return nil, err
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	return &msg, nil
}

// OutboundSubject returns the subject replies for a channel are published to.
func OutboundSubject(prefix string, channelID model.ChannelID) string {
	return prefix + "." + string(channelID)
}

// TypingSubject returns the subject typing notices for a channel go to.
func TypingSubject(prefix string, channelID model.ChannelID) string {
	return OutboundSubject(prefix, channelID) + ".typing"
}

// Responder publishes replies for one inbound bus message.
type Responder struct {
	pub       publisher
	prefix    string
	channelID model.ChannelID
	messageID string
}

// NewResponder creates a responder for messageID in channelID.
func NewResponder(pub publisher, prefix string, channelID model.ChannelID, messageID string) *Responder {
	return &Responder{pub: pub, prefix: prefix, channelID: channelID, messageID: messageID}
}

// Reply publishes a reply to the inbound message.
func (r *Responder) Reply(ctx context.Context, content string) error {
	return r.publish(&model.OutboundMessage{ChannelID: r.channelID, Content: content, ReplyTo: r.messageID})
}

// Send publishes a follow-up message.
func (r *Responder) Send(ctx context.Context, content string) error {
	return r.publish(&model.OutboundMessage{ChannelID: r.channelID, Content: content})
}

// Typing publishes an empty typing notice.
func (r *Responder) Typing(ctx context.Context) error {
	return r.pub.Publish(TypingSubject(r.prefix, r.channelID), nil)
}

func (r *Responder) publish(msg *model.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := r.pub.Publish(OutboundSubject(r.prefix, r.channelID), data); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}
