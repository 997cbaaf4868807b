// Package handler routes gateway messages and serves the ops HTTP API.
package handler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

// Hints sent when a message addresses the bot without any text.
const (
	MentionHint = "메시지를 입력해주세요! 예: `@봇이름 안녕하세요`"
	ChatHint    = "메시지를 입력해주세요! 예: `!chat 안녕하세요`"
)

// Relayer runs an eligible message through the relay pipeline.
type Relayer interface {
	Handle(ctx context.Context, msg *model.InboundMessage, content string, resp service.Responder) service.Outcome
}

// BotInfo describes the running bot for the info command.
type BotInfo struct {
	Persona  string
	Provider string
	Model    string
}

// Router decides whether an inbound message is for the bot and extracts the
// text to relay. It recognizes direct mentions and the chat and info
// commands; everything else is ignored.
type Router struct {
	relay  Relayer
	prefix string
	info   BotInfo
	logger *logger.Logger
}

// NewRouter creates a router. prefix defaults to "!".
func NewRouter(relay Relayer, prefix string, info BotInfo, log *logger.Logger) *Router {
	if prefix == "" {
		prefix = "!"
	}
	return &Router{
		relay:  relay,
		prefix: prefix,
		info:   info,
		logger: log.Named("router"),
	}
}

// HandleMessage routes one inbound message. selfID is the bot's own user ID.
func (rt *Router) HandleMessage(ctx context.Context, selfID string, msg *model.InboundMessage, resp service.Responder) {
	if msg.AuthorIsBot {
		return
	}

	if name, args, ok := rt.parseCommand(msg.Content); ok {
		switch name {
		case "chat":
			if args == "" {
				rt.reply(ctx, resp, ChatHint)
				return
			}
			rt.relay.Handle(ctx, msg, args, resp)
			return
		case "info":
			rt.reply(ctx, resp, rt.infoText())
			return
		}
	}

	if selfID == "" || !msg.Mentions(selfID) || msg.MentionEveryone {
		return
	}

	content := StripMention(msg.Content, selfID)
	if content == "" {
		rt.reply(ctx, resp, MentionHint)
		return
	}
	rt.relay.Handle(ctx, msg, content, resp)
}

// parseCommand splits "<prefix><name> <args>". Names are case-sensitive.
func (rt *Router) parseCommand(content string) (name, args string, ok bool) {
	if !strings.HasPrefix(content, rt.prefix) {
		return "", "", false
	}
	rest := content[len(rt.prefix):]
	name, args, _ = strings.Cut(rest, " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		args = rest[i+1:]
		name = name[:i]
	}
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

func (rt *Router) infoText() string {
	return fmt.Sprintf("**[봇 정보]**\n페르소나: %s\n모델: %s\nAPI: %s",
		rt.info.Persona, rt.info.Model, rt.info.Provider)
}

func (rt *Router) reply(ctx context.Context, resp service.Responder, content string) {
	if err := resp.Reply(ctx, content); err != nil {
		rt.logger.Error("failed to send reply", zap.Error(err))
	}
}

// StripMention removes both mention forms of userID and trims the result.
func StripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}
