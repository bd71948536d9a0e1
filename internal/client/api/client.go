// Package api contains the REST client for the MedGuard backend. It owns
// token attachment and rotation for outbound requests and maps HTTP and
// network failures onto the shared error taxonomy, so callers never inspect
// status codes or error strings themselves.
package api

import (
	"context"
	"time"
)

// TokenPair is an access/refresh token pair issued by the server.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
}

// LoginResult is the server's answer to a successful credential exchange.
type LoginResult struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	TokenPair
}

// UserInfo is the server's view of the current session.
type UserInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Valid  bool   `json:"valid"`
}

// EntitySnapshot is the authoritative server copy of one entity.
type EntitySnapshot struct {
	EntityID  string            `json:"entity_id"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Client is the surface the services use to talk to the backend.
//
// All methods honor context cancellation and deadlines. Transport failures
// come back as common.ErrUnavailable; authentication problems as
// common.ErrInvalidCredentials / common.ErrTokenExpired /
// common.ErrRefreshTokenExpired; a push against moved-on server state as
// common.ErrServerConflict.
type Client interface {
	Login(ctx context.Context, email string, password []byte) (*LoginResult, error)
	Me(ctx context.Context) (*UserInfo, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	FetchEntity(ctx context.Context, entityID string) (*EntitySnapshot, error)
	PushEntity(ctx context.Context, entityID string, fields map[string]string, expectedUpdatedAt time.Time) (*EntitySnapshot, error)

	Ping(ctx context.Context) error

	// SetTokens installs the pair attached to authenticated requests.
	SetTokens(access, refresh string)

	// OnTokens registers a callback invoked whenever the client rotates
	// tokens on its own (refresh-on-expiry), so the caller can persist them.
	OnTokens(fn func(TokenPair))

	Close() error
}
