// Package discord connects the relay to Discord through a discordgo session:
// the gateway for inbound messages and the REST API for replies.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
	"github.com/capitalize-ai/relay-bot/pkg/metrics"
)

// DefaultIntents subscribes to guild and direct messages with their content.
const DefaultIntents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// MessageHandler receives every MESSAGE_CREATE. selfID is the bot's user ID.
type MessageHandler func(ctx context.Context, selfID string, msg *model.InboundMessage, resp service.Responder)

// Config holds gateway settings.
type Config struct {
	Token   string
	Intents discordgo.Intent
}

// connection is the part of *discordgo.Session that opens and closes the
// gateway websocket.
type connection interface {
	Open() error
	Close() error
}

// Gateway runs a discordgo session and dispatches messages to a handler,
// each in its own goroutine. discordgo resumes and reconnects dropped
// sessions on its own; Gateway retries only the initial connect.
type Gateway struct {
	conn       connection
	messenger  messenger
	handler    MessageHandler
	logger     *logger.Logger
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	ctx     context.Context
	closing bool

	selfID    atomic.Value
	connected atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once

	inflight sync.WaitGroup
}

// NewGateway creates a gateway. The session is not opened until Run.
func NewGateway(cfg Config, handler MessageHandler, log *logger.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	intents := cfg.Intents
	if intents == 0 {
		intents = DefaultIntents
	}
	session.Identify.Intents = intents
	session.SyncEvents = true

	g := newGateway(session, session, handler, log)
	session.AddHandler(g.onConnect)
	session.AddHandler(g.onDisconnect)
	session.AddHandler(g.onReady)
	session.AddHandler(g.onMessageCreate)

	routeLibraryLogs(g.logger)
	return g, nil
}

func newGateway(conn connection, m messenger, handler MessageHandler, log *logger.Logger) *Gateway {
	g := &Gateway{
		conn:      conn,
		messenger: m,
		handler:   handler,
		logger:    log.Named("discord"),
		ctx:       context.Background(),
		ready:     make(chan struct{}),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
	}
	g.selfID.Store("")
	return g
}

// Name returns the gateway name.
func (g *Gateway) Name() string {
	return "discord"
}

// Ready is closed after the first READY event.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// Connected reports whether a session is currently established.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// SelfID returns the bot's user ID, empty before READY.
func (g *Gateway) SelfID() string {
	return g.selfID.Load().(string)
}

// Run opens the session, retrying with exponential backoff, and keeps it open
// until ctx is done. Authentication and intent rejections stop Run with an
// error. It waits for in-flight message handlers before returning.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.closing = false
	g.mu.Unlock()

	open := func() error {
		err := g.conn.Open()
		if err == nil {
			return nil
		}

		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && fatalCloseCode(closeErr.Code) {
			return backoff.Permanent(fmt.Errorf("discord gateway closed the session: %w", err))
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		g.logger.Warn("failed to open gateway session, retrying",
			zap.Error(err),
			zap.Duration("delay", delay),
		)
		metrics.GatewayReconnectsTotal.WithLabelValues(g.Name()).Inc()
	}

	if err := backoff.RetryNotify(open, backoff.WithContext(g.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	<-ctx.Done()

	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	if err := g.conn.Close(); err != nil {
		g.logger.Warn("failed to close gateway session", zap.Error(err))
	}
	g.connected.Store(false)
	g.inflight.Wait()
	return nil
}

// fatalCloseCode reports close codes that reconnecting cannot fix:
// authentication failure and invalid or disallowed intents.
func fatalCloseCode(code int) bool {
	switch code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return true
	}
	return false
}

func (g *Gateway) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	g.connected.Store(true)
}

func (g *Gateway) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	if g.connected.Swap(false) {
		g.logger.Warn("gateway disconnected")
		metrics.GatewayReconnectsTotal.WithLabelValues(g.Name()).Inc()
	}
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		g.logger.Error("READY without user")
		return
	}
	g.selfID.Store(r.User.ID)
	g.connected.Store(true)
	g.readyOnce.Do(func() { close(g.ready) })
	g.logger.Info("gateway ready", zap.String("user_id", r.User.ID))
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	msg := toInbound(m.Message)
	selfID := g.SelfID()
	if msg.AuthorID == selfID {
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return
	}
	ctx := g.ctx
	g.inflight.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.inflight.Done()
		g.handler(ctx, selfID, msg, newResponder(g.messenger, msg.ChannelID, msg.ID))
	}()
}

func toInbound(m *discordgo.Message) *model.InboundMessage {
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u != nil {
			mentions = append(mentions, u.ID)
		}
	}
	return &model.InboundMessage{
		ID:              m.ID,
		ChannelID:       model.ChannelID(m.ChannelID),
		AuthorID:        m.Author.ID,
		Content:         m.Content,
		AuthorIsBot:     m.Author.Bot,
		MentionIDs:      mentions,
		MentionEveryone: m.MentionEveryone,
		ReceivedAt:      time.Now(),
	}
}
