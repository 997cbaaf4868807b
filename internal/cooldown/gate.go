// Package cooldown provides a per-channel request gate.
package cooldown

import (
	"sync"
	"time"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// DefaultWindow is the minimum time between two processed requests in a channel.
const DefaultWindow = 3 * time.Second

// Gate allows at most one request per channel per window.
type Gate struct {
	window time.Duration

	mu   sync.Mutex
	last map[model.ChannelID]time.Time
}

// NewGate creates a gate with the given window. A non-positive window uses
// DefaultWindow.
func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		window: window,
		last:   make(map[model.ChannelID]time.Time),
	}
}

// Window returns the configured cooldown window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// TryAcquire records now as the channel's last request and returns true when
// the window has elapsed. Otherwise it returns false with the time remaining
// and leaves the stored timestamp untouched.
func (g *Gate) TryAcquire(channelID model.ChannelID, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[channelID]; ok {
		if elapsed := now.Sub(last); elapsed < g.window {
			return false, g.window - elapsed
		}
	}

	g.last[channelID] = now
	return true, 0
}

// LastRequest returns the channel's last accepted request time.
func (g *Gate) LastRequest(channelID model.ChannelID) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.last[channelID]
	return t, ok
}

// Activity returns a copy of every channel's last accepted request time.
func (g *Gate) Activity() map[model.ChannelID]time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[model.ChannelID]time.Time, len(g.last))
	for id, t := range g.last {
		out[id] = t
	}
	return out
}

// Forget drops the records for the given channels.
func (g *Gate) Forget(channelIDs ...model.ChannelID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range channelIDs {
		delete(g.last, id)
	}
}

// ForgetIdle drops the channel's record only if it is still more than idle
// before now. A request accepted after the caller sampled Activity keeps its
// record.
func (g *Gate) ForgetIdle(channelID model.ChannelID, now time.Time, idle time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.last[channelID]
	if !ok || now.Sub(last) <= idle {
		return false
	}
	delete(g.last, channelID)
	return true
}

// Len returns the number of tracked channels.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
