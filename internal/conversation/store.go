// Package conversation keeps the bounded per-channel conversation context.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// DefaultMaxTurns is the default buffer bound per channel.
const DefaultMaxTurns = 10

// buffer holds a channel's turns, oldest first. evicted is the head dropped
// by the most recent Append, kept until the next Append or RollbackLast.
type buffer struct {
	turns      []model.Turn
	evicted    model.Turn
	hasEvicted bool
}

// Store owns every channel's conversation buffer. Buffers are created lazily
// and hold at most maxTurns turns; appending to a full buffer evicts the
// oldest turn.
type Store struct {
	maxTurns int

	mu      sync.RWMutex
	buffers map[model.ChannelID]*buffer
}

// NewStore creates a store bounded to maxTurns per channel. A non-positive
// bound uses DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		maxTurns: maxTurns,
		buffers:  make(map[model.ChannelID]*buffer),
	}
}

// MaxTurns returns the per-channel bound.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}

// getOrCreate returns the channel's buffer, creating an empty one on first
// use. Callers must hold s.mu for writing.
func (s *Store) getOrCreate(channelID model.ChannelID) *buffer {
	b, ok := s.buffers[channelID]
	if !ok {
		b = &buffer{turns: make([]model.Turn, 0, s.maxTurns)}
		s.buffers[channelID] = b
	}
	return b
}

// Append inserts turn at the tail of the channel's buffer, evicting the head
// when the bound is exceeded.
func (s *Store) Append(channelID model.ChannelID, turn model.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(channelID)
	if len(b.turns) < s.maxTurns {
		b.turns = append(b.turns, turn)
		b.evicted, b.hasEvicted = model.Turn{}, false
		return
	}
	b.evicted, b.hasEvicted = b.turns[0], true
	copy(b.turns, b.turns[1:])
	b.turns[len(b.turns)-1] = turn
}

// RollbackLast removes the most recently appended turn. Directly after an
// Append it restores the buffer exactly, including a head that Append
// evicted. It reports whether a turn was removed; an empty or missing buffer
// is a no-op.
func (s *Store) RollbackLast(channelID model.ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[channelID]
	if !ok || len(b.turns) == 0 {
		return false
	}

	if b.hasEvicted {
		copy(b.turns[1:], b.turns[:len(b.turns)-1])
		b.turns[0] = b.evicted
		b.evicted, b.hasEvicted = model.Turn{}, false
		return true
	}

	b.turns[len(b.turns)-1] = model.Turn{}
	b.turns = b.turns[:len(b.turns)-1]
	return true
}

// Snapshot returns a copy of the channel's turns, oldest first.
func (s *Store) Snapshot(channelID model.ChannelID) []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[channelID]
	if !ok {
		return []model.Turn{}
	}
	out := make([]model.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len returns the number of turns buffered for the channel.
func (s *Store) Len(channelID model.ChannelID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buffers[channelID]; ok {
		return len(b.turns)
	}
	return 0
}

// Channels returns the IDs of channels that currently have a buffer, sorted.
func (s *Store) Channels() []model.ChannelID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]model.ChannelID, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Delete drops the channel's buffer. It reports whether one existed.
func (s *Store) Delete(channelID model.ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buffers[channelID]
	delete(s.buffers, channelID)
	return ok
}

// EvictIdle removes the buffers of channels in lastActivity whose last
// activity is more than idle before now. It returns every idle channel ID
// from lastActivity, whether or not it had a buffer, so the caller can drop
// sibling per-channel state.
func (s *Store) EvictIdle(now time.Time, idle time.Duration, lastActivity map[model.ChannelID]time.Time) []model.ChannelID {
	var evicted []model.ChannelID

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, last := range lastActivity {
		if now.Sub(last) <= idle {
			continue
		}
		delete(s.buffers, id)
		evicted = append(evicted, id)
	}

	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}
