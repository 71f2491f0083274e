package app

import (
	"math/rand"
	"sort"

	"quizprep-service/internal/domain"
)

const (
	ModeMistakes = "mistakes"
	ModeNew      = "new"
)

// SessionConfig is everything Engine.Start needs.
type SessionConfig struct {
	Mode            string
	Questions       []domain.Question
	DurationSeconds int
}

// Resolver turns a user's choice of quiz mode into a session configuration.
type Resolver struct {
	seeded bool
	seed   int64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSeed shuffles the pool with a fixed seed before truncation.
func WithSeed(seed int64) ResolverOption {
	return func(r *Resolver) {
		r.seeded = true
		r.seed = seed
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SelectOption tweaks a single NewQuestions call.
type SelectOption func(*selectOptions)

type selectOptions struct {
	seen map[string]struct{}
}

// PreferUnseen orders questions the user has not been shown before the ones
// they have. The pool is never shrunk by it.
func PreferUnseen(seen map[string]struct{}) SelectOption {
	return func(o *selectOptions) { o.seen = seen }
}

// PastMistakes builds a session from a user's selection of stored mistakes.
func (r *Resolver) PastMistakes(selected []domain.Question, minutes int) (SessionConfig, error) {
	if len(selected) == 0 {
		return SessionConfig{}, &domain.EmptySelectionError{Mode: ModeMistakes}
	}
	if minutes <= 0 {
		return SessionConfig{}, &domain.InvalidSessionError{Reason: domain.ErrInvalidDuration}
	}
	return SessionConfig{
		Mode:            ModeMistakes,
		Questions:       append([]domain.Question(nil), selected...),
		DurationSeconds: minutes * 60,
	}, nil
}

// NewQuestions takes the first count questions of the pool. A count of zero
// or less means the whole pool.
func (r *Resolver) NewQuestions(pool []domain.Question, count, minutes int, opts ...SelectOption) (SessionConfig, error) {
	if len(pool) == 0 {
		return SessionConfig{}, &domain.EmptySelectionError{Mode: ModeNew}
	}
	if minutes <= 0 {
		return SessionConfig{}, &domain.InvalidSessionError{Reason: domain.ErrInvalidDuration}
	}

	var so selectOptions
	for _, opt := range opts {
		opt(&so)
	}

	ordered := append([]domain.Question(nil), pool...)
	if r.seeded {
		rng := rand.New(rand.NewSource(r.seed))
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}
	if len(so.seen) > 0 {
		sort.SliceStable(ordered, func(i, j int) bool {
			_, si := so.seen[ordered[i].ID]
			_, sj := so.seen[ordered[j].ID]
			return !si && sj
		})
	}

	if count > 0 && count < len(ordered) {
		ordered = ordered[:count]
	}
	return SessionConfig{
		Mode:            ModeNew,
		Questions:       ordered,
		DurationSeconds: minutes * 60,
	}, nil
}
