package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

const upsertMistakeSQL = `
INSERT INTO mistakes (user_id, subject, question_id, question_json, times_wrong, updated_at)
VALUES (?, ?, ?, ?, 1, ?)
ON CONFLICT (user_id, subject, question_id) DO UPDATE SET
	question_json = excluded.question_json,
	times_wrong   = mistakes.times_wrong + 1,
	updated_at    = excluded.updated_at`

type MistakeStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewMistakeStore(d *DB) *MistakeStore {
	return &MistakeStore{db: d.db, clock: time.Now}
}

// NewMistakeStoreWithClock is for deterministic updated_at values in tests.
func NewMistakeStoreWithClock(d *DB, now func() time.Time) *MistakeStore {
	return &MistakeStore{db: d.db, clock: now}
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
	now := s.clock().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(scope, op, err)
	}
	defer tx.Rollback()

	for _, q := range batch {
		data, err := json.Marshal(q)
		if err != nil {
			return domain.NewStorageError(scope, op, fmt.Errorf("encode question %s: %w", q.ID, err))
		}
		if _, err := tx.ExecContext(ctx, upsertMistakeSQL, scope.UserID, scope.Subject, q.ID, string(data), now); err != nil {
			return domain.NewStorageError(scope, op, fmt.Errorf("upsert mistake %s: %w", q.ID, err))
		}
	}
	return domain.NewStorageError(scope, op, tx.Commit())
}

func (s *MistakeStore) GetMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error) {
	const op = "get_mistakes"
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, question_json, times_wrong, updated_at
		FROM mistakes
		WHERE user_id = ? AND subject = ?
		ORDER BY updated_at DESC, question_id ASC`, scope.UserID, scope.Subject)
	if err != nil {
		return nil, domain.NewStorageError(scope, op, err)
	}
	defer rows.Close()

	var out []domain.Mistake
	for rows.Next() {
		var (
			id      string
			data    string
			updated int64
			m       domain.Mistake
		)
		if err := rows.Scan(&id, &data, &m.TimesWrong, &updated); err != nil {
			return nil, domain.NewStorageError(scope, op, err)
		}
		if err := json.Unmarshal([]byte(data), &m.Question); err != nil {
			return nil, domain.NewStorageError(scope, op, fmt.Errorf("decode mistake %s: %w", id, err))
		}
		m.ID = id
		m.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, m)
	}
	return out, domain.NewStorageError(scope, op, rows.Err())
}

func (s *MistakeStore) RemoveMistakeIDs(ctx context.Context, scope domain.Scope, ids []string) error {
	const op = "remove_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(scope, op, err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mistakes WHERE user_id = ? AND subject = ? AND question_id = ?`,
			scope.UserID, scope.Subject, id); err != nil {
			return domain.NewStorageError(scope, op, err)
		}
	}
	return domain.NewStorageError(scope, op, tx.Commit())
}

func (s *MistakeStore) ClearAllMistakes(ctx context.Context, scope domain.Scope) error {
	const op = "clear_mistakes"
	if !scope.Valid() {
		return domain.NewStorageError(scope, op, domain.ErrInvalidScope)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM mistakes WHERE user_id = ? AND subject = ?`, scope.UserID, scope.Subject)
	return domain.NewStorageError(scope, op, err)
}
