// Package outbox persists writes made while offline until the server
// acknowledges them. Entries are keyed by an autoincrement sequence, so
// replay order is exactly creation order.
package outbox

import (
	"context"

	"github.com/medguard/medguard-client/internal/client/models"
)

// Repository describes persistence operations for queued offline writes.
type Repository interface {
	// Enqueue appends the entry and fills in its Seq.
	Enqueue(ctx context.Context, entry *models.OutboxEntry) error

	// GetAll returns all entries in creation order.
	GetAll(ctx context.Context) ([]*models.OutboxEntry, error)

	// GetByEntity returns the entries for one entity in creation order.
	GetByEntity(ctx context.Context, entityID string) ([]*models.OutboxEntry, error)

	// IncrementAttempts bumps the persisted attempt counter.
	IncrementAttempts(ctx context.Context, seq int64) error

	// Delete removes an acknowledged or discarded entry.
	Delete(ctx context.Context, seq int64) error

	// DeleteByEntity removes all entries for an entity.
	DeleteByEntity(ctx context.Context, entityID string) error

	// Count returns the number of queued entries.
	Count(ctx context.Context) (int, error)
}
