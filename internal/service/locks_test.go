package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelLocks_TryLock(t *testing.T) {
	l := newChannelLocks()

	unlock, ok := l.TryLock("C")
	require.True(t, ok)

	_, ok = l.TryLock("C")
	assert.False(t, ok)

	_, ok = l.TryLock("other")
	assert.True(t, ok, "channels are independent")

	unlock()
	unlock()

	relock, ok := l.TryLock("C")
	require.True(t, ok)
	relock()
}

func TestChannelLocks_LockHonorsContext(t *testing.T) {
	l := newChannelLocks()
	unlock, err := l.Lock(context.Background(), "C")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "C")
	assert.Error(t, err)

	unlock()
	assert.Zero(t, l.Len(), "entries are dropped when unused")
}

func TestChannelLocks_WaiterProceedsAfterRelease(t *testing.T) {
	l := newChannelLocks()
	unlock, err := l.Lock(context.Background(), "C")
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		next, err := l.Lock(context.Background(), "C")
		if err == nil {
			acquired <- next
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	next := <-acquired
	next()
	assert.Zero(t, l.Len())
}
