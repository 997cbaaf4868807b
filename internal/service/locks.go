package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

// channelLocks serializes work per channel. Entries are reference counted and
// removed once nobody holds or waits on them, so the map only holds channels
// with work in flight.
type channelLocks struct {
	mu    sync.Mutex
	locks map[model.ChannelID]*channelLock
}

type channelLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[model.ChannelID]*channelLock)}
}

func (l *channelLocks) ref(channelID model.ChannelID) *channelLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.locks[channelID]
	if !ok {
		cl = &channelLock{sem: semaphore.NewWeighted(1)}
		l.locks[channelID] = cl
	}
	cl.refs++
	return cl
}

func (l *channelLocks) unref(channelID model.ChannelID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl := l.locks[channelID]
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, channelID)
	}
}

// Lock blocks until the channel is free or ctx is done. The returned func
// releases the channel.
func (l *channelLocks) Lock(ctx context.Context, channelID model.ChannelID) (func(), error) {
	cl := l.ref(channelID)
	if err := cl.sem.Acquire(ctx, 1); err != nil {
		l.unref(channelID)
		return nil, err
	}
	return l.releaser(channelID, cl), nil
}

// TryLock takes the channel only if it is free.
func (l *channelLocks) TryLock(channelID model.ChannelID) (func(), bool) {
	cl := l.ref(channelID)
	if !cl.sem.TryAcquire(1) {
		l.unref(channelID)
		return nil, false
	}
	return l.releaser(channelID, cl), true
}

func (l *channelLocks) releaser(channelID model.ChannelID, cl *channelLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			cl.sem.Release(1)
			l.unref(channelID)
		})
	}
}

// Len returns the number of channels with a holder or waiter.
func (l *channelLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
