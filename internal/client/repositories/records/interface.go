// Package records implements the local mirror of server-owned entities.
// The store persists whatever the caller supplies (last writer wins); it
// does not detect or resolve divergence itself.
package records

import (
	"context"

	"github.com/medguard/medguard-client/internal/client/models"
)

// Repository describes persistence operations for mirrored records.
type Repository interface {
	// Get returns the record for entityID, or common.ErrNotFound.
	Get(ctx context.Context, entityID string) (*models.Record, error)

	// Put upserts the record. The server timestamp may never move
	// backwards for an entity; a regressing write is rejected.
	Put(ctx context.Context, record *models.Record) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, entityID string) error

	// List returns all mirrored records.
	List(ctx context.Context) ([]*models.Record, error)
}
