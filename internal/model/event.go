package model

import (
	"time"
)

// EventType represents the type of relay event.
type EventType string

const (
	EventTypeCooldown   EventType = "cooldown"
	EventTypeFiltered   EventType = "filtered"
	EventTypeCommitted  EventType = "committed"
	EventTypeRolledBack EventType = "rolled_back"
	EventTypeEvicted    EventType = "evicted"
)

// RelayEvent records an orchestration outcome for a channel. It never carries
// message content.
type RelayEvent struct {
	ID        string         `json:"id"`
	ChannelID ChannelID      `json:"channel_id"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
