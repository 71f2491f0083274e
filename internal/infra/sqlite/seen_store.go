package sqlite

import (
	"context"
	"database/sql"

	"quizprep-service/internal/domain"
)

type SeenStore struct {
	db *sql.DB
}

func (s *SeenStore) GetSeen(ctx context.Context, scope domain.Scope) (map[string]struct{}, error) {
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, "get_seen", domain.ErrInvalidScope)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT question_id FROM seen WHERE user_id = ? AND subject = ?`, scope.UserID, scope.Subject)
	if err != nil {
		return nil, domain.NewStorageError(scope, "get_seen", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorageError(scope, "get_seen", err)
		}
		out[id] = struct{}{}
	}
	return out, domain.NewStorageError(scope, "get_seen", rows.Err())
}

func (s *SeenStore) AddSeen(ctx context.Context, scope domain.Scope, ids []string) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, "add_seen", domain.ErrInvalidScope)
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(scope, "add_seen", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seen (user_id, subject, question_id) VALUES (?, ?, ?)`,
			scope.UserID, scope.Subject, id); err != nil {
			return domain.NewStorageError(scope, "add_seen", err)
		}
	}
	return domain.NewStorageError(scope, "add_seen", tx.Commit())
}

func (s *SeenStore) ClearSeen(ctx context.Context, scope domain.Scope) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, "clear_seen", domain.ErrInvalidScope)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM seen WHERE user_id = ? AND subject = ?`, scope.UserID, scope.Subject)
	return domain.NewStorageError(scope, "clear_seen", err)
}
