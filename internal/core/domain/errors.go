package domain

import "errors"

// Authentication and token errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMalformedToken     = errors.New("malformed token")
	ErrSignatureInvalid   = errors.New("token signature invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityDisabled   = errors.New("identity disabled")
)

// Caller-side outcomes of a delegated verification.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("access forbidden")
	ErrVerifierUnavailable = errors.New("verifier unavailable")
)

// Ingestion errors.
var (
	ErrDeserialization = errors.New("event deserialization failed")
	ErrPersistence     = errors.New("event persistence failed")
)

// ErrStoreUnavailable wraps credential store failures that are not a
// missing row or a unique violation.
var ErrStoreUnavailable = errors.New("credential store unavailable")

var (
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsAuthFailure reports whether err means the bearer could not be
// authenticated. Infrastructure failures are never auth failures.
func IsAuthFailure(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, ErrIdentityDisabled),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthenticated):
		return true
	}
	return false
}
