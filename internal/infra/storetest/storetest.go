// Package storetest holds the behavior every MistakeStore and SeenStore
// backend must share. Backend packages call it from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizprep-service/internal/app"
	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

// Clock is a settable time source handed to store factories.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Step(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MistakeFactory returns an empty store whose timestamps come from now.
type MistakeFactory func(t *testing.T, now func() time.Time) app.MistakeStore

// SeenFactory returns an empty seen store.
type SeenFactory func(t *testing.T) app.SeenStore

var (
	alice = domain.Scope{UserID: "alice", Subject: "Mathematics"}
	bob   = domain.Scope{UserID: "bob", Subject: "Mathematics"}
)

func q(id, text string) domain.Question {
	return domain.Question{ID: id, Text: text, Choices: []string{"a", "b", "c"}, AnswerIndex: 2}
}

func byID(ms []domain.Mistake) map[string]domain.Mistake {
	out := make(map[string]domain.Mistake, len(ms))
	for _, m := range ms {
		out[m.ID] = m
	}
	return out
}

func ids(ms []domain.Mistake) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

// RunMistakeStore exercises the MistakeStore contract.
func RunMistakeStore(t *testing.T, factory MistakeFactory) {
	ctx := context.Background()

	t.Run("add creates records", func(t *testing.T) {
		clock := NewClock()
		store := factory(t, clock.Now)

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "one"), q("q2", "two")}))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 2)
		m := byID(got)
		assert.Equal(t, 1, m["q1"].TimesWrong)
		assert.Equal(t, "one", m["q1"].Text)
		assert.Equal(t, []string{"a", "b", "c"}, m["q1"].Choices)
		assert.Equal(t, 2, m["q1"].AnswerIndex)
		assert.True(t, m["q1"].UpdatedAt.Equal(clock.Now()))
	})

	t.Run("repeated miss increments counter", func(t *testing.T) {
		clock := NewClock()
		store := factory(t, clock.Now)

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "old text")}))
		clock.Step(time.Minute)
		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "new text")}))

		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].TimesWrong)
		assert.Equal(t, "new text", got[0].Text, "snapshot is replaced")
		assert.True(t, got[0].UpdatedAt.Equal(clock.Now()))
	})

	t.Run("duplicates within a batch count once", func(t *testing.T) {
		store := factory(t, NewClock().Now)

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "first"), q("q1", "last")}))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].TimesWrong)
		assert.Equal(t, "last", got[0].Text)
	})

	t.Run("questions without id use content identity", func(t *testing.T) {
		store := factory(t, NewClock().Now)
		anon := domain.Question{Text: "2+2", Choices: []string{"3", "4"}, AnswerIndex: 1}

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{anon}))
		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{anon}))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, question.Identify(anon), got[0].ID)
		assert.Equal(t, 2, got[0].TimesWrong)
	})

	t.Run("most recent first", func(t *testing.T) {
		clock := NewClock()
		store := factory(t, clock.Now)

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("a", "a")}))
		clock.Step(time.Second)
		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("b", "b")}))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(got))

		clock.Step(time.Second)
		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("a", "a")}))
		got, err = store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(got))

		again, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, got, again, "reads are idempotent")
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		store := factory(t, NewClock().Now)

		require.NoError(t, store.AddMistakes(ctx, alice, nil))
		require.NoError(t, store.RemoveMistakeIDs(ctx, alice, nil))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("remove ignores unknown ids", func(t *testing.T) {
		store := factory(t, NewClock().Now)

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "one"), q("q2", "two")}))
		require.NoError(t, store.RemoveMistakeIDs(ctx, alice, []string{"q1", "missing"}))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []string{"q2"}, ids(got))
	})

	t.Run("clear and scope isolation", func(t *testing.T) {
		store := factory(t, NewClock().Now)
		history := domain.Scope{UserID: "alice", Subject: "History"}

		require.NoError(t, store.AddMistakes(ctx, alice, []domain.Question{q("q1", "one")}))
		require.NoError(t, store.AddMistakes(ctx, bob, []domain.Question{q("q1", "one")}))
		require.NoError(t, store.AddMistakes(ctx, history, []domain.Question{q("h1", "war")}))

		require.NoError(t, store.ClearAllMistakes(ctx, alice))
		got, err := store.GetMistakes(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = store.GetMistakes(ctx, bob)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		got, err = store.GetMistakes(ctx, history)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("invalid scope is a storage error", func(t *testing.T) {
		store := factory(t, NewClock().Now)

		err := store.AddMistakes(ctx, domain.Scope{Subject: "Mathematics"}, []domain.Question{q("q1", "one")})
		var storageErr *domain.StorageError
		require.True(t, errors.As(err, &storageErr), "got %v", err)
		assert.ErrorIs(t, err, domain.ErrInvalidScope)
	})
}

// RunSeenStore exercises the SeenStore contract.
func RunSeenStore(t *testing.T, factory SeenFactory) {
	ctx := context.Background()

	t.Run("add, get and clear", func(t *testing.T) {
		store := factory(t)

		require.NoError(t, store.AddSeen(ctx, alice, []string{"q1", "q2"}))
		require.NoError(t, store.AddSeen(ctx, alice, []string{"q2", "q3"}))
		require.NoError(t, store.AddSeen(ctx, bob, []string{"q9"}))

		seen, err := store.GetSeen(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, seen, 3)
		assert.Contains(t, seen, "q3")
		assert.NotContains(t, seen, "q9")

		require.NoError(t, store.ClearSeen(ctx, alice))
		seen, err = store.GetSeen(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, seen)

		seen, err = store.GetSeen(ctx, bob)
		require.NoError(t, err)
		assert.Len(t, seen, 1)
	})

	t.Run("empty add is a no-op", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.AddSeen(ctx, alice, nil))
		seen, err := store.GetSeen(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, seen)
	})
}
