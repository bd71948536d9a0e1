// Package metadata persists the client's small singleton state: session
// tokens, the cached user identity, and the offline credential record (salt
// and verifier). It is a plain key/value table; the services own the key
// names and value encodings.
package metadata

import (
	"context"
)

// Repository describes the key/value operations the session and credential
// services need.
type Repository interface {
	// Get returns the value for key, or (nil, nil) if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	// SetMany upserts a group of keys that belong together, such as a
	// session snapshot.
	SetMany(ctx context.Context, values map[string][]byte) error

	// Delete removes one key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes a fixed group of keys, such as the token material.
	DeleteMany(ctx context.Context, keys ...string) error

	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
