package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizprep-service/internal/auth"
)

type UserStore struct {
	db *sql.DB
}

func (s *UserStore) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return auth.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	var (
		u       auth.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}
