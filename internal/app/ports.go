package app

import (
	"context"

	"quizprep-service/internal/domain"
)

// MistakeStore persists missed questions per (user, subject). Implementations
// merge by question identity: a repeated miss increments TimesWrong instead of
// adding a record. Failures are returned as *domain.StorageError.
type MistakeStore interface {
	AddMistakes(ctx context.Context, scope domain.Scope, items []domain.Question) error
	GetMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error)
	RemoveMistakeIDs(ctx context.Context, scope domain.Scope, ids []string) error
	ClearAllMistakes(ctx context.Context, scope domain.Scope) error
}

// SeenStore remembers which questions a user has already been shown.
type SeenStore interface {
	GetSeen(ctx context.Context, scope domain.Scope) (map[string]struct{}, error)
	AddSeen(ctx context.Context, scope domain.Scope, ids []string) error
	ClearSeen(ctx context.Context, scope domain.Scope) error
}

// QuestionSource fetches the raw question pool for a subject.
type QuestionSource interface {
	Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error)
}

// FallbackBank serves a static question set when the source is unavailable.
type FallbackBank interface {
	Questions(subject string) ([]domain.Question, bool)
}

// ResultPublisher announces completed sessions to other systems.
type ResultPublisher interface {
	PublishResult(ctx context.Context, scope domain.Scope, result domain.SessionResult) error
}

// NopPublisher discards results.
type NopPublisher struct{}

func (NopPublisher) PublishResult(context.Context, domain.Scope, domain.SessionResult) error {
	return nil
}

type nopSeenStore struct{}

func (nopSeenStore) GetSeen(context.Context, domain.Scope) (map[string]struct{}, error) {
	return nil, nil
}
func (nopSeenStore) AddSeen(context.Context, domain.Scope, []string) error { return nil }
func (nopSeenStore) ClearSeen(context.Context, domain.Scope) error         { return nil }
