// Package common defines shared constants and sentinel errors used across
// the authmaker client and server. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrDuplicateUser     = errors.New("user already exists for this client")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrDanglingReference = errors.New("dangling reference")

	// Service-level errors.
	ErrorInternal              = errors.New("internal error")
	ErrorUnauthorized          = errors.New("unauthorized")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidActivation       = errors.New("invalid activation hash")
	ErrorValidation            = errors.New("validation error")

	// Identity errors.
	ErrInvalidURL = errors.New("invalid url")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
