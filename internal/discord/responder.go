package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// messenger is the part of *discordgo.Session replies go through. discordgo
// handles Discord's per-route rate limits.
type messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// responder answers one inbound message in its channel.
type responder struct {
	m         messenger
	channelID model.ChannelID
	messageID string
}

func newResponder(m messenger, channelID model.ChannelID, messageID string) *responder {
	return &responder{m: m, channelID: channelID, messageID: messageID}
}

// Reply posts a threaded reply that pings nobody but the replied-to author.
func (r *responder) Reply(ctx context.Context, content string) error {
	return r.send(ctx, &discordgo.MessageSend{
		Content: content,
		Reference: &discordgo.MessageReference{
			MessageID: r.messageID,
			ChannelID: string(r.channelID),
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{},
			RepliedUser: true,
		},
	})
}

// Send posts a follow-up message that pings nobody.
func (r *responder) Send(ctx context.Context, content string) error {
	return r.send(ctx, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	})
}

// Typing shows the typing indicator for about ten seconds.
func (r *responder) Typing(ctx context.Context) error {
	return r.m.ChannelTyping(string(r.channelID), discordgo.WithContext(ctx))
}

func (r *responder) send(ctx context.Context, data *discordgo.MessageSend) error {
	_, err := r.m.ChannelMessageSendComplex(string(r.channelID), data, discordgo.WithContext(ctx))
	return err
}
