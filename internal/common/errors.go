// Package common defines shared constants and sentinel errors used across
// the MedGuard client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transport-level errors. ErrUnavailable covers timeouts, refused
	// connections and DNS failures; it triggers the offline fallback and
	// is never fatal to the user.
	ErrUnavailable = errors.New("server unavailable")

	// Auth errors.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Local auth cache errors.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")

	// Reconciliation errors.
	ErrIncompleteResolution = errors.New("incomplete resolution")
	ErrResolutionPending    = errors.New("resolution pending")
	ErrServerConflict       = errors.New("server state changed")

	// Outbox errors.
	ErrOutboxExhausted = errors.New("outbox retries exhausted")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")
)
