package memory

import (
	"context"
	"sync"

	"quizprep-service/internal/domain"
)

// SeenStore remembers shown question ids per scope in memory.
type SeenStore struct {
	mu     sync.RWMutex
	scopes map[domain.Scope]map[string]struct{}
}

func NewSeenStore() *SeenStore {
	return &SeenStore{scopes: make(map[domain.Scope]map[string]struct{})}
}

func (s *SeenStore) GetSeen(ctx context.Context, scope domain.Scope) (map[string]struct{}, error) {
	if err := checkScope(ctx, scope, "get_seen"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.scopes[scope]))
	for id := range s.scopes[scope] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *SeenStore) AddSeen(ctx context.Context, scope domain.Scope, ids []string) error {
	if err := checkScope(ctx, scope, "add_seen"); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.scopes[scope]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		s.scopes[scope] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

func (s *SeenStore) ClearSeen(ctx context.Context, scope domain.Scope) error {
	if err := checkScope(ctx, scope, "clear_seen"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.scopes, scope)
	s.mu.Unlock()
	return nil
}
