// Package models defines client-side data models for the MedGuard client:
// the authenticated session, mirrored entity records, field conflicts and
// their resolutions, and queued offline writes.
package models

import "time"

// SessionMode says how the current session talks to the server.
type SessionMode string

const (
	// ModeOnline means the last server round trip succeeded.
	ModeOnline SessionMode = "online"

	// ModeOffline means the session is still authenticated from cached
	// data, but the server is currently unreachable.
	ModeOffline SessionMode = "offline"
)

// Session is the authenticated identity and token state for this install.
// Exactly one exists at a time; it is owned by the session service and read
// by everyone else.
type Session struct {
	UserID        string
	Email         string
	AccessToken   string
	RefreshToken  string
	IssuedAt      time.Time
	Mode          SessionMode
	Authenticated bool
}

// Empty returns an unauthenticated zero session.
func EmptySession() *Session {
	return &Session{}
}
