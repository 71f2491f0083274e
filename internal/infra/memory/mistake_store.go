package memory

import (
	"context"
	"sync"
	"time"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

// MistakeStore keeps mistakes in process memory. It is the default backend
// for local runs and the reference for the store contract tests.
type MistakeStore struct {
	clock func() time.Time

	mu     sync.RWMutex
	scopes map[domain.Scope]map[string]domain.Mistake
}

func NewMistakeStore() *MistakeStore {
	return &MistakeStore{
		clock:  time.Now,
		scopes: make(map[domain.Scope]map[string]domain.Mistake),
	}
}

// NewMistakeStoreWithClock is for deterministic UpdatedAt values in tests.
func NewMistakeStoreWithClock(now func() time.Time) *MistakeStore {
	s := NewMistakeStore()
	s.clock = now
	return s
}

func (s *MistakeStore) AddMistakes(ctx context.Context, scope domain.Scope, items []domain.Question) error {
	if err := checkScope(ctx, scope, "add_mistakes"); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	batch := question.Dedupe(items)
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.scopes[scope]
	if !ok {
		records = make(map[string]domain.Mistake)
		s.scopes[scope] = records
	}
	for _, q := range batch {
		m := domain.Mistake{Question: cloneQuestion(q), TimesWrong: 1, UpdatedAt: now}
		if prev, ok := records[q.ID]; ok {
			m.TimesWrong = prev.TimesWrong + 1
		}
		records[q.ID] = m
	}
	return nil
}

func (s *MistakeStore) GetMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error) {
	if err := checkScope(ctx, scope, "get_mistakes"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	records := s.scopes[scope]
	out := make([]domain.Mistake, 0, len(records))
	for _, m := range records {
		m.Question = cloneQuestion(m.Question)
		out = append(out, m)
	}
	s.mu.RUnlock()

	domain.SortMistakes(out)
	return out, nil
}

func (s *MistakeStore) RemoveMistakeIDs(ctx context.Context, scope domain.Scope, ids []string) error {
	if err := checkScope(ctx, scope, "remove_mistakes"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(records, id)
	}
	if len(records) == 0 {
		delete(s.scopes, scope)
	}
	return nil
}

func (s *MistakeStore) ClearAllMistakes(ctx context.Context, scope domain.Scope) error {
	if err := checkScope(ctx, scope, "clear_mistakes"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.scopes, scope)
	s.mu.Unlock()
	return nil
}

func checkScope(ctx context.Context, scope domain.Scope, op string) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	return domain.NewStorageError(scope, op, ctx.Err())
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Choices = append([]string(nil), q.Choices...)
	return q
}
