package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizprep-service/internal/domain"
)

// SeenStore records shown questions in the seen table.
type SeenStore struct {
	pool *pgxpool.Pool
}

func NewSeenStore(pool *pgxpool.Pool) *SeenStore {
	return &SeenStore{pool: pool}
}

func (s *SeenStore) GetSeen(ctx context.Context, scope domain.Scope) (map[string]struct{}, error) {
	if !scope.Valid() {
		return nil, domain.NewStorageError(scope, "get_seen", domain.ErrInvalidScope)
	}
	rows, err := s.pool.Query(ctx, `SELECT question_id FROM seen WHERE user_id=$1 AND subject=$2`, scope.UserID, scope.Subject)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO seen (user_id, subject, question_id)
		SELECT $1, $2, unnest($3::text[])
		ON CONFLICT (user_id, subject, question_id) DO NOTHING`,
		scope.UserID, scope.Subject, ids)
	return domain.NewStorageError(scope, "add_seen", err)
}

func (s *SeenStore) ClearSeen(ctx context.Context, scope domain.Scope) error {
	if !scope.Valid() {
		return domain.NewStorageError(scope, "clear_seen", domain.ErrInvalidScope)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM seen WHERE user_id=$1 AND subject=$2`, scope.UserID, scope.Subject)
	return domain.NewStorageError(scope, "clear_seen", err)
}
