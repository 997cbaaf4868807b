// Package model defines data structures shared by the relay components.
package model

import (
	"time"
)

// Role represents the role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChannelID identifies an isolated conversation scope. All per-channel state
// is keyed by it.
type ChannelID string

// Turn is one message exchanged in a conversation. Treat it as immutable.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a user turn with the given content.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns an assistant turn with the given content.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// InboundMessage is a chat message delivered by a gateway.
type InboundMessage struct {
	// Identity
	ID        string    `json:"id"`
	ChannelID ChannelID `json:"channel_id"`
	AuthorID  string    `json:"author_id"`

	// Content
	Content string `json:"content"`

	// Addressing
	AuthorIsBot     bool     `json:"author_is_bot"`
	MentionIDs      []string `json:"mention_ids,omitempty"`
	MentionEveryone bool     `json:"mention_everyone"`

	ReceivedAt time.Time `json:"received_at"`
}

// Mentions reports whether the message mentions the given user ID.
func (m *InboundMessage) Mentions(userID string) bool {
	for _, id := range m.MentionIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OutboundMessage is a chat message sent back through a gateway.
type OutboundMessage struct {
	ChannelID ChannelID `json:"channel_id"`
	Content   string    `json:"content"`
	// ReplyTo is the inbound message ID for threaded replies, empty for follow-ups.
	ReplyTo string `json:"reply_to,omitempty"`
}
