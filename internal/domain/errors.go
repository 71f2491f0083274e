package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuestions is returned when a session is started without questions.
	ErrEmptyQuestions = errors.New("session has no questions")
	// ErrInvalidDuration is returned when a session duration is not positive.
	ErrInvalidDuration = errors.New("session duration must be positive")
	// ErrSessionStarted is returned when Start is called on an engine that already left Idle.
	ErrSessionStarted = errors.New("session already started")
	// ErrNoActiveSession is returned when a surface operation needs a running session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidScope indicates a missing user id or subject.
	ErrInvalidScope = errors.New("scope requires user id and subject")
	// ErrUnknownSubject is returned by sources that hold no questions for a subject.
	ErrUnknownSubject = errors.New("unknown subject")
)

// InvalidSessionError reports malformed start parameters.
type InvalidSessionError struct {
	Reason error
}

func (e *InvalidSessionError) Error() string {
	return "invalid session: " + e.Reason.Error()
}

func (e *InvalidSessionError) Unwrap() error { return e.Reason }

// EmptySelectionError reports that the resolver had no usable questions.
type EmptySelectionError struct {
	Mode    string
	Subject string
}

func (e *EmptySelectionError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("no questions selected for %s quiz", e.Mode)
	}
	return fmt.Sprintf("no questions selected for %s quiz on %s", e.Mode, e.Subject)
}

// FetchError reports a failed question retrieval.
type FetchError struct {
	Subject string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch questions for %q: %v", e.Subject, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError reports a persistence failure with the scope and operation that hit it.
type StorageError struct {
	Scope Scope
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s for %s: %v", e.Op, e.Scope, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil.
func NewStorageError(scope Scope, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Scope: scope, Op: op, Err: err}
}

// AuthErrorCode is an opaque reason code mapped to user-facing text by callers.
type AuthErrorCode string

const (
	AuthUserExists         AuthErrorCode = "user_exists"
	AuthUserNotFound       AuthErrorCode = "user_not_found"
	AuthInvalidCredentials AuthErrorCode = "invalid_credentials"
	AuthInvalidToken       AuthErrorCode = "invalid_token"
	AuthUnauthenticated    AuthErrorCode = "unauthenticated"
)

// AuthError reports an authentication failure.
type AuthError struct {
	Code AuthErrorCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return "auth: " + string(e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthCode reports whether err is an AuthError with the given code.
func IsAuthCode(err error, code AuthErrorCode) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}
