package handler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

type relayCall struct {
	channel model.ChannelID
	content string
}

type fakeRelayer struct {
	mu    sync.Mutex
	calls []relayCall
}

func (f *fakeRelayer) Handle(ctx context.Context, msg *model.InboundMessage, content string, resp service.Responder) service.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, relayCall{msg.ChannelID, content})
	return service.OutcomeCommitted
}

type replyRecorder struct {
	replies []string
}

func (r *replyRecorder) Reply(ctx context.Context, content string) error {
	r.replies = append(r.replies, content)
	return nil
}

func (r *replyRecorder) Send(ctx context.Context, content string) error {
	r.replies = append(r.replies, content)
	return nil
}

func (r *replyRecorder) Typing(ctx context.Context) error { return nil }

const selfID = "42"

func TestRouter_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       model.InboundMessage
		wantRelay []string
		wantReply []string
	}{
		{
			name:      "mention",
			msg:       model.InboundMessage{Content: "<@42> 안녕", MentionIDs: []string{"42"}},
			wantRelay: []string{"안녕"},
		},
		{
			name:      "nickname mention",
			msg:       model.InboundMessage{Content: "안녕 <@!42> 짱구야", MentionIDs: []string{"42"}},
			wantRelay: []string{"안녕  짱구야"},
		},
		{
			name:      "empty mention gets hint",
			msg:       model.InboundMessage{Content: "<@42>   ", MentionIDs: []string{"42"}},
			wantReply: []string{MentionHint},
		},
		{
			name: "everyone mention ignored",
			msg:  model.InboundMessage{Content: "@everyone <@42> hi", MentionIDs: []string{"42"}, MentionEveryone: true},
		},
		{
			name: "other user mention ignored",
			msg:  model.InboundMessage{Content: "<@7> hi", MentionIDs: []string{"7"}},
		},
		{
			name: "bot author ignored",
			msg:  model.InboundMessage{Content: "!chat hi", AuthorIsBot: true},
		},
		{
			name:      "chat command",
			msg:       model.InboundMessage{Content: "!chat  오늘 뭐해?"},
			wantRelay: []string{"오늘 뭐해?"},
		},
		{
			name:      "chat command across lines",
			msg:       model.InboundMessage{Content: "!chat\n여러 줄"},
			wantRelay: []string{"여러 줄"},
		},
		{
			name:      "empty chat gets hint",
			msg:       model.InboundMessage{Content: "!chat"},
			wantReply: []string{ChatHint},
		},
		{
			name:      "command wins over mention",
			msg:       model.InboundMessage{Content: "!chat <@42> hi", MentionIDs: []string{"42"}},
			wantRelay: []string{"<@42> hi"},
		},
		{
			name:      "unknown command falls through to mention",
			msg:       model.InboundMessage{Content: "!help <@42>", MentionIDs: []string{"42"}},
			wantRelay: []string{"!help"},
		},
		{
			name: "plain message ignored",
			msg:  model.InboundMessage{Content: "그냥 대화"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &fakeRelayer{}
			resp := &replyRecorder{}
			router := NewRouter(relay, "!", BotInfo{}, logger.NewNop())

			msg := tt.msg
			msg.ChannelID = "C"
			router.HandleMessage(context.Background(), selfID, &msg, resp)

			var got []string
			for _, c := range relay.calls {
				got = append(got, c.content)
			}
			assert.Equal(t, tt.wantRelay, got)
			assert.Equal(t, tt.wantReply, resp.replies)
		})
	}
}

func TestRouter_InfoCommand(t *testing.T) {
	relay := &fakeRelayer{}
	resp := &replyRecorder{}
	router := NewRouter(relay, "!", BotInfo{Persona: "짱구", Provider: "openai", Model: "openai/gpt-oss-120b"}, logger.NewNop())

	router.HandleMessage(context.Background(), selfID, &model.InboundMessage{ChannelID: "C", Content: "!info"}, resp)

	assert.Empty(t, relay.calls)
	if assert.Len(t, resp.replies, 1) {
		assert.Contains(t, resp.replies[0], "openai/gpt-oss-120b")
		assert.Contains(t, resp.replies[0], "짱구")
	}
}

func TestRouter_CustomPrefix(t *testing.T) {
	relay := &fakeRelayer{}
	router := NewRouter(relay, "?", BotInfo{}, logger.NewNop())

	router.HandleMessage(context.Background(), selfID, &model.InboundMessage{ChannelID: "C", Content: "!chat hi"}, &replyRecorder{})
	router.HandleMessage(context.Background(), selfID, &model.InboundMessage{ChannelID: "C", Content: "?chat hi"}, &replyRecorder{})

	assert.Equal(t, []relayCall{{"C", "hi"}}, relay.calls)
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "hi", StripMention("<@42> hi <@!42>", "42"))
	assert.Equal(t, "<@7> hi", StripMention("<@7> hi", "42"))
}
