package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

const maxTxRetries = 5

// MistakeStore keeps one hash per scope:
// HSET mistakes:{user}:{subject} {questionID} <json mistake>
type MistakeStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewMistakeStore(client *redis.Client) *MistakeStore {
	return &MistakeStore{client: client, clock: time.Now}
}

// NewMistakeStoreWithClock is for deterministic UpdatedAt values in tests.
func NewMistakeStoreWithClock(client *redis.Client, now func() time.Time) *MistakeStore {
	return &MistakeStore{client: client, clock: now}
}

func (s *MistakeStore) AddMistakes(ctx context.Context, scope domain.Scope, items []domain.Question) error {
	const op = "add_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	if len(items) == 0 {
		return nil
	}
	batch := question.Dedupe(items)
	key := mistakesKey(scope)
	fields := make([]string, len(batch))
	for i, q := range batch {
		fields[i] = q.ID
	}

	txf := func(tx *redis.Tx) error {
		existing, err := tx.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		values := make([]interface{}, 0, len(batch)*2)
		for i, q := range batch {
			m := domain.Mistake{Question: q, TimesWrong: 1, UpdatedAt: now}
			if raw, ok := existing[i].(string); ok {
				var prev domain.Mistake
				if json.Unmarshal([]byte(raw), &prev) == nil {
					m.TimesWrong = prev.TimesWrong + 1
				}
			}
			payload, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("encode mistake %s: %w", q.ID, err)
			}
			values = append(values, q.ID, payload)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.NewStorageError(scope, op, err)
	}
	return domain.NewStorageError(scope, op, redis.TxFailedErr)
}

func (s *MistakeStore) GetMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error) {
	const op = "get_mistakes"
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	records, err := s.client.HGetAll(ctx, mistakesKey(scope)).Result()
	if err != nil {
		return nil, domain.NewStorageError(scope, op, err)
	}
	out := make([]domain.Mistake, 0, len(records))
	for id, raw := range records {
		var m domain.Mistake
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, domain.NewStorageError(scope, op, fmt.Errorf("decode mistake %s: %w", id, err))
		}
		m.ID = id
		out = append(out, m)
	}
	domain.SortMistakes(out)
	return out, nil
}

func (s *MistakeStore) RemoveMistakeIDs(ctx context.Context, scope domain.Scope, ids []string) error {
	const op = "remove_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	if len(ids) == 0 {
		return nil
	}
	return domain.NewStorageError(scope, op, s.client.HDel(ctx, mistakesKey(scope), ids...).Err())
}

func (s *MistakeStore) ClearAllMistakes(ctx context.Context, scope domain.Scope) error {
	const op = "clear_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	return domain.NewStorageError(scope, op, s.client.Del(ctx, mistakesKey(scope)).Err())
}

func mistakesKey(scope domain.Scope) string {
	return "mistakes:" + scope.UserID + ":" + scope.Subject
}
