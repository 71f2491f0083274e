package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"quizprep-service/internal/domain"
)

// SeenStore keeps one set per scope: SADD seen:{user}:{subject} {questionID}
type SeenStore struct {
	client *redis.Client
}

func NewSeenStore(client *redis.Client) *SeenStore {
	return &SeenStore{client: client}
}

func (s *SeenStore) GetSeen(ctx context.Context, scope domain.Scope) (map[string]struct{}, error) {
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, "get_seen", domain.ErrInvalidScope)
	}
	members, err := s.client.SMembersMap(ctx, seenKey(scope)).Result()
	if err != nil {
		return nil, domain.NewStorageError(scope, "get_seen", err)
	}
	return members, nil
}

func (s *SeenStore) AddSeen(ctx context.Context, scope domain.Scope, ids []string) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, "add_seen", domain.ErrInvalidScope)
	}
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return domain.NewStorageError(scope, "add_seen", s.client.SAdd(ctx, seenKey(scope), members...).Err())
}

func (s *SeenStore) ClearSeen(ctx context.Context, scope domain.Scope) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, "clear_seen", domain.ErrInvalidScope)
	}
	return domain.NewStorageError(scope, "clear_seen", s.client.Del(ctx, seenKey(scope)).Err())
}

func seenKey(scope domain.Scope) string {
	return "seen:" + scope.UserID + ":" + scope.Subject
}
