package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/relay-bot/internal/model"
)

func TestAppend_NeverExceedsBound(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 10; i++ {
		s.Append("c1", model.UserTurn(fmt.Sprintf("m%d", i)))
		assert.LessOrEqual(t, s.Len("c1"), 3)
	}

	// Oldest turns are evicted first; insertion order is kept.
	assert.Equal(t, []model.Turn{
		model.UserTurn("m7"),
		model.UserTurn("m8"),
		model.UserTurn("m9"),
	}, s.Snapshot("c1"))
}

func TestRollbackLast_UndoesAppend(t *testing.T) {
	full := make([]model.Turn, 0, 4)
	for i := 0; i < 4; i++ {
		full = append(full, model.UserTurn(fmt.Sprintf("t%d", i)))
	}

	states := map[string][]model.Turn{
		"empty": nil,
		"partial": {
			model.UserTurn("a"),
			model.AssistantTurn("b"),
		},
		"full":       full,
		"overflowed": append(full, model.AssistantTurn("t4"), model.UserTurn("t5")),
	}

	for name, initial := range states {
		t.Run(name, func(t *testing.T) {
			s := NewStore(4)
			for _, turn := range initial {
				s.Append("c1", turn)
			}
			before := s.Snapshot("c1")

			s.Append("c1", model.UserTurn("x"))
			require.True(t, s.RollbackLast("c1"))

			assert.Equal(t, before, s.Snapshot("c1"))
		})
	}
}

func TestRollbackLast_RestoresEvictedHead(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 10; i++ {
		s.Append("c1", model.UserTurn(fmt.Sprintf("t%d", i)))
	}
	before := s.Snapshot("c1")

	s.Append("c1", model.UserTurn("new"))
	assert.Equal(t, "t1", s.Snapshot("c1")[0].Content)

	require.True(t, s.RollbackLast("c1"))
	assert.Equal(t, before, s.Snapshot("c1"))

	// The restored head is given back once; a second rollback drops the tail.
	require.True(t, s.RollbackLast("c1"))
	assert.Equal(t, before[:9], s.Snapshot("c1"))
}

func TestRollbackLast_EvictedHeadClearedByNextAppend(t *testing.T) {
	s := NewStore(2)
	s.Append("c1", model.UserTurn("a"))
	s.Append("c1", model.AssistantTurn("b"))
	s.Append("c1", model.UserTurn("c"))
	s.Append("c1", model.AssistantTurn("d"))

	require.True(t, s.RollbackLast("c1"))
	assert.Equal(t, []model.Turn{model.AssistantTurn("b"), model.UserTurn("c")}, s.Snapshot("c1"))
}

func TestRollbackLast_EmptyIsNoop(t *testing.T) {
	s := NewStore(10)

	assert.False(t, s.RollbackLast("missing"))

	s.Append("c1", model.UserTurn("a"))
	assert.True(t, s.RollbackLast("c1"))
	assert.False(t, s.RollbackLast("c1"), "double rollback must not fail")
	assert.Equal(t, 0, s.Len("c1"))
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewStore(10)
	s.Append("c1", model.UserTurn("a"))

	snap := s.Snapshot("c1")
	snap[0].Content = "mutated"

	assert.Equal(t, "a", s.Snapshot("c1")[0].Content)
	assert.Empty(t, s.Snapshot("unknown"))
}

func TestChannelsAreIsolated(t *testing.T) {
	s := NewStore(10)
	s.Append("c1", model.UserTurn("a"))
	s.Append("c2", model.UserTurn("b"))
	s.RollbackLast("c2")

	assert.Equal(t, 1, s.Len("c1"))
	assert.Equal(t, 0, s.Len("c2"))
	assert.Equal(t, []model.ChannelID{"c1", "c2"}, s.Channels())
}

func TestEvictIdle(t *testing.T) {
	s := NewStore(10)
	now := time.Unix(10_000, 0)
	s.Append("idle", model.UserTurn("a"))
	s.Append("fresh", model.UserTurn("b"))

	evicted := s.EvictIdle(now, time.Hour, map[model.ChannelID]time.Time{
		"idle":       now.Add(-2 * time.Hour),
		"fresh":      now.Add(-time.Minute),
		"gate-only":  now.Add(-3 * time.Hour),
		"borderline": now.Add(-time.Hour),
	})

	assert.Equal(t, []model.ChannelID{"gate-only", "idle"}, evicted)
	assert.Equal(t, []model.ChannelID{"fresh"}, s.Channels())
}

func TestNewStore_DefaultBound(t *testing.T) {
	assert.Equal(t, DefaultMaxTurns, NewStore(0).MaxTurns())
}
