package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizprep-service/internal/auth"
)

// UserStore keeps one JSON document per account under auth:user:<email>.
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

type storedUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *UserStore) CreateUser(ctx context.Context, u auth.User) error {
	data, err := json.Marshal(storedUser(u))
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	ok, err := s.client.SetNX(ctx, userKey(u.Email), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrUserExists
	}
	return nil
}

func (s *UserStore) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	data, err := s.client.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	var u storedUser
	if err := json.Unmarshal(data, &u); err != nil {
		return auth.User{}, fmt.Errorf("decode user %s: %w", email, err)
	}
	return auth.User(u), nil
}

func userKey(email string) string {
	return "auth:user:" + email
}
