package memory

import (
	"context"
	"sync"
	"time"

	"quizprep-service/internal/auth"
)

// UserStore keeps accounts in memory, keyed by email.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]auth.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]auth.User)}
}

func (s *UserStore) CreateUser(_ context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok {
		return auth.ErrUserExists
	}
	s.users[u.Email] = u
	return nil
}

func (s *UserStore) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

// TokenBlacklist keeps revoked token ids in memory until they expire.
type TokenBlacklist struct {
	clock func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewTokenBlacklist() *TokenBlacklist {
	return &TokenBlacklist{clock: time.Now, revoked: make(map[string]time.Time)}
}

func (b *TokenBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = b.clock().Add(ttl)
	return nil
}

func (b *TokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	for id, until := range b.revoked {
		if !until.After(now) {
			delete(b.revoked, id)
		}
	}
	_, ok := b.revoked[jti]
	return ok, nil
}
