package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// ChannelInfo summarizes a channel's state for the admin API.
type ChannelInfo struct {
	ID          model.ChannelID `json:"id"`
	Turns       int             `json:"turns"`
	LastRequest *time.Time      `json:"last_request,omitempty"`
}

// ListChannelsResponse is the admin channel listing.
type ListChannelsResponse struct {
	Channels []ChannelInfo `json:"channels"`
	Total    int           `json:"total"`
}

// Channels lists every channel holding a buffer or a cooldown record.
func (r *Relay) Channels() *ListChannelsResponse {
	activity := r.gate.Activity()

	seen := make(map[model.ChannelID]struct{}, len(activity))
	for id := range activity {
		seen[id] = struct{}{}
	}
	for _, id := range r.store.Channels() {
		seen[id] = struct{}{}
	}

	channels := make([]ChannelInfo, 0, len(seen))
	for id := range seen {
		info := ChannelInfo{ID: id, Turns: r.store.Len(id)}
		if last, ok := activity[id]; ok {
			info.LastRequest = &last
		}
		channels = append(channels, info)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	return &ListChannelsResponse{Channels: channels, Total: len(channels)}
}

// Channel returns one channel's state.
func (r *Relay) Channel(channelID model.ChannelID) (*ChannelInfo, error) {
	last, hasRecord := r.gate.LastRequest(channelID)
	turns := r.store.Len(channelID)
	if !hasRecord && turns == 0 {
		return nil, fmt.Errorf("channel not found")
	}

	info := &ChannelInfo{ID: channelID, Turns: turns}
	if hasRecord {
		info.LastRequest = &last
	}
	return info, nil
}

// Reset drops a channel's buffer and cooldown record together. It waits for
// any in-flight message on the channel to finish.
func (r *Relay) Reset(ctx context.Context, channelID model.ChannelID) (bool, error) {
	unlock, err := r.locks.Lock(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to lock channel: %w", err)
	}
	defer unlock()

	_, hadRecord := r.gate.LastRequest(channelID)
	hadBuffer := r.store.Delete(channelID)
	r.gate.Forget(channelID)

	if hadRecord || hadBuffer {
		r.logger.Info("channel reset", zap.String("channel_id", string(channelID)))
	}
	return hadRecord || hadBuffer, nil
}
