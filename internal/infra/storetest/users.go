package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizprep-service/internal/auth"
)

// RunUserStore exercises the auth.UserStore contract.
func RunUserStore(t *testing.T, store auth.UserStore) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := auth.User{
		ID:           "user-1",
		Email:        "sara@wizara.local",
		Username:     "sara",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    created,
	}

	_, err := store.UserByEmail(ctx, u.Email)
	assert.True(t, errors.Is(err, auth.ErrUserNotFound), "got %v", err)

	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.True(t, got.CreatedAt.Equal(created))

	dup := u
	dup.ID = "user-2"
	err = store.CreateUser(ctx, dup)
	assert.True(t, errors.Is(err, auth.ErrUserExists), "got %v", err)
}
