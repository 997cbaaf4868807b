package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

const (
	// EventStreamName is the name of the relay events stream.
	EventStreamName = "RELAY_EVENTS"

	// EventSubjectPrefix is the prefix for all relay event subjects.
	EventSubjectPrefix = "relay.events"
)

// streamPublisher is the part of jetstream.JetStream the journal publishes with.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventJournal publishes relay events to JetStream. Events never carry
// message content.
type EventJournal struct {
	js streamPublisher
}

// NewEventJournal creates a journal on the client's JetStream context.
func NewEventJournal(client *Client) *EventJournal {
	return &EventJournal{js: client.JetStream()}
}

// EnsureStream ensures the relay events stream exists.
func EnsureStream(ctx context.Context, client *Client) error {
	js := client.JetStream()

	if _, err := js.Stream(ctx, EventStreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        EventStreamName,
		Subjects:    []string{EventSubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Relay bot orchestration events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(channelID model.ChannelID, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", EventSubjectPrefix, channelID, eventType)
}

// Publish publishes an event to JetStream.
func (j *EventJournal) Publish(ctx context.Context, event *model.RelayEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := j.js.Publish(ctx, EventSubject(event.ChannelID, event.Type), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
