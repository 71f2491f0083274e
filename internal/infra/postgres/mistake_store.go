package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

const upsertMistakeSQL = `
INSERT INTO mistakes (user_id, subject, question_id, question_json, times_wrong, updated_at)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (user_id, subject, question_id) DO UPDATE SET
	question_json = EXCLUDED.question_json,
	times_wrong   = mistakes.times_wrong + 1,
	updated_at    = EXCLUDED.updated_at`

// MistakeStore persists mistakes in the mistakes table, one row per
// (user, subject, question).
type MistakeStore struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

func NewMistakeStore(pool *pgxpool.Pool) *MistakeStore {
	return &MistakeStore{pool: pool, clock: time.Now}
}

// NewMistakeStoreWithClock is for deterministic updated_at values in tests.
func NewMistakeStoreWithClock(pool *pgxpool.Pool, now func() time.Time) *MistakeStore {
	return &MistakeStore{pool: pool, clock: now}
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
	now := s.clock().UTC()

	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, q := range batch {
			data, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			if _, err := tx.Exec(ctx, upsertMistakeSQL, scope.UserID, scope.Subject, q.ID, string(data), now); err != nil {
				return fmt.Errorf("upsert mistake %s: %w", q.ID, err)
			}
		}
		return nil
	})
	return domain.NewStorageError(scope, op, err)
}

func (s *MistakeStore) GetMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error) {
	const op = "get_mistakes"
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT question_id, question_json, times_wrong, updated_at
		FROM mistakes
		WHERE user_id=$1 AND subject=$2
		ORDER BY updated_at DESC, question_id ASC`, scope.UserID, scope.Subject)
	if err != nil {
		return nil, domain.NewStorageError(scope, op, err)
	}
	defer rows.Close()

	var out []domain.Mistake
	for rows.Next() {
		var (
			id   string
			data []byte
			m    domain.Mistake
		)
		if err := rows.Scan(&id, &data, &m.TimesWrong, &m.UpdatedAt); err != nil {
			return nil, domain.NewStorageError(scope, op, err)
		}
		if err := json.Unmarshal(data, &m.Question); err != nil {
			return nil, domain.NewStorageError(scope, op, fmt.Errorf("decode mistake %s: %w", id, err))
		}
		m.ID = id
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(scope, op, err)
	}
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
	_, err := s.pool.Exec(ctx, `DELETE FROM mistakes WHERE user_id=$1 AND subject=$2 AND question_id = ANY($3)`,
		scope.UserID, scope.Subject, ids)
	return domain.NewStorageError(scope, op, err)
}

func (s *MistakeStore) ClearAllMistakes(ctx context.Context, scope domain.Scope) error {
	const op = "clear_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM mistakes WHERE user_id=$1 AND subject=$2`, scope.UserID, scope.Subject)
	return domain.NewStorageError(scope, op, err)
}
