// Package auth resolves who is practicing. It issues HS256 tokens for local
// accounts whose passwords are stored as bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LocalDomain is appended to identifiers that are not email addresses.
const LocalDomain = "wizara.local"

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// Session is an authenticated user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider is the authentication contract the practice surfaces depend on.
type Provider interface {
	Login(ctx context.Context, identifier, secret string) (Session, error)
	SignUp(ctx context.Context, identifier, secret string) (Session, error)
	Logout(ctx context.Context, token string) error
	// CurrentSession returns nil without error when token is empty.
	CurrentSession(ctx context.Context, token string) (*Session, error)
}

// User is a stored account.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts. CreateUser returns ErrUserExists for a taken
// email; UserByEmail returns ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
}

// Blacklist remembers revoked token ids for at least ttl.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ToEmail maps a bare username to an address in LocalDomain.
func ToEmail(identifier string) string {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return ""
	}
	if strings.Contains(id, "@") {
		return id
	}
	return id + "@" + LocalDomain
}

// Username is the part of identifier before the "@", if any.
func Username(identifier string) string {
	id := strings.TrimSpace(identifier)
	if at := strings.Index(id, "@"); at >= 0 {
		return id[:at]
	}
	return id
}
