package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"quizprep-service/internal/domain"
)

const (
	DefaultTokenTTL   = 24 * time.Hour
	MinPasswordLength = 6
)

// Claims are carried by every issued token.
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LocalProvider authenticates against a UserStore.
type LocalProvider struct {
	users     UserStore
	blacklist Blacklist
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewLocalProvider(users UserStore, blacklist Blacklist, secret string, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &LocalProvider{
		users:     users,
		blacklist: blacklist,
		secret:    []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, identifier, secret string) (Session, error) {
	email := ToEmail(identifier)
	if email == "" {
		return Session{}, &domain.AuthError{Code: domain.AuthInvalidCredentials, Err: errors.New("identifier is required")}
	}
	if len(secret) < MinPasswordLength {
		return Session{}, &domain.AuthError{
			Code: domain.AuthInvalidCredentials,
			Err:  fmt.Errorf("password must be at least %d characters", MinPasswordLength),
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     Username(identifier),
		PasswordHash: string(hash),
		CreatedAt:    p.now(),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return Session{}, &domain.AuthError{Code: domain.AuthUserExists, Err: err}
		}
		return Session{}, err
	}
	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user signed up")
	return p.issue(user)
}

func (p *LocalProvider) Login(ctx context.Context, identifier, secret string) (Session, error) {
	user, err := p.users.UserByEmail(ctx, ToEmail(identifier))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, &domain.AuthError{Code: domain.AuthUserNotFound, Err: err}
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return Session{}, &domain.AuthError{Code: domain.AuthInvalidCredentials}
	}
	return p.issue(user)
}

func (p *LocalProvider) Logout(ctx context.Context, token string) error {
	claims, err := p.parse(ctx, token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(p.now())
	if err := p.blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (p *LocalProvider) CurrentSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := p.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *LocalProvider) issue(user User) (Session, error) {
	now := p.now()
	expires := now.Add(p.ttl)
	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{
		Token:     signed,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		ExpiresAt: expires,
	}, nil
}

func (p *LocalProvider) parse(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil || !parsed.Valid {
		return nil, &domain.AuthError{Code: domain.AuthInvalidToken, Err: err}
	}

	revoked, err := p.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, &domain.AuthError{Code: domain.AuthInvalidToken, Err: errors.New("token revoked")}
	}
	return claims, nil
}
