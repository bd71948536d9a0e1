package services

import (
	"context"
	"fmt"
	"time"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/client/repositories/records"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/logging"
)

// ResolveService collapses a pending conflict set into one record. It never
// applies a resolution partially: validation happens before any write, and
// the pending state is cleared only after the merged record is durable.
type ResolveService struct {
	sync *SyncService
	log  logging.Logger
}

func NewResolveService(syncSvc *SyncService, log logging.Logger) *ResolveService {
	return &ResolveService{sync: syncSvc, log: log.With("component", "resolve")}
}

// Resolve applies the resolution to the conflicts recorded for entityID by
// the last sync pass. On success the merged record is persisted, becomes
// the new baseline, and is pushed to the server (or queued for replay when
// offline).
func (r *ResolveService) Resolve(ctx context.Context, entityID string, resolution models.Resolution) (*models.Record, error) {
	unlock := r.sync.lockEntity(entityID)
	defer unlock()

	pending, ok := r.sync.getPending(entityID)
	if !ok {
		return nil, fmt.Errorf("entity %s has no pending conflicts: %w", entityID, common.ErrNotFound)
	}

	merged, err := mergeConflicts(pending.merged, pending.server, pending.conflicts, resolution)
	if err != nil {
		return nil, err
	}

	repo := records.NewSQLiteRepository(r.sync.store.DB)
	if err := repo.Put(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist resolved %s: %w", entityID, err)
	}

	// Anything that kept a local value still has to reach the server.
	if merged.Origin != models.OriginServer {
		if err := r.sync.pushOrEnqueue(ctx, merged); err != nil {
			return nil, err
		}
	}

	r.sync.clearPending(entityID)
	r.log.Info(ctx, "conflicts resolved",
		"entity", entityID, "strategy", resolution.Strategy, "fields", len(pending.conflicts))
	return merged.Clone(), nil
}

// mergeConflicts is the pure merge step: it takes the clean-merged record
// (conflicted fields absent), the server snapshot of the sync pass, the
// conflict list, and the resolution, and produces the final record.
// Deterministic for a given input, so applying the same resolution to the
// same conflict set always yields the same record fields.
//
// ResolutionServer discards the local copy wholesale: the result is rebuilt
// from the server snapshot, not from the merged state, so local edits that
// won their fields cleanly are dropped along with the conflicted ones and
// can never resurface as phantom changes on a later sync.
func mergeConflicts(base *models.Record, server *api.EntitySnapshot, conflicts []models.Conflict, resolution models.Resolution) (*models.Record, error) {
	switch resolution.Strategy {
	case models.ResolutionLocal:
		// whole-side strategy, no selections needed
	case models.ResolutionServer:
		return &models.Record{
			EntityID:        base.EntityID,
			Fields:          models.CopyFields(server.Fields),
			Base:            models.CopyFields(server.Fields),
			LocalUpdatedAt:  server.UpdatedAt,
			ServerUpdatedAt: server.UpdatedAt,
			Origin:          models.OriginServer,
		}, nil
	case models.ResolutionManual:
		for _, c := range conflicts {
			side, ok := resolution.Selections[c.Field]
			if !ok {
				return nil, fmt.Errorf("field %q has no selection: %w", c.Field, common.ErrIncompleteResolution)
			}
			if side != models.SideLocal && side != models.SideServer {
				return nil, fmt.Errorf("field %q has invalid selection %q: %w", c.Field, side, common.ErrIncompleteResolution)
			}
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q: %w", resolution.Strategy, common.ErrIncompleteResolution)
	}

	merged := base.Clone()
	localTaken := false

	for _, c := range conflicts {
		side := models.SideLocal
		if resolution.Strategy == models.ResolutionManual {
			side = resolution.Selections[c.Field]
		}

		if side == models.SideLocal {
			merged.Fields[c.Field] = c.LocalValue
			localTaken = true
		} else {
			merged.Fields[c.Field] = c.ServerValue
		}
	}

	switch resolution.Strategy {
	case models.ResolutionLocal:
		merged.Origin = models.OriginLocal
		merged.LocalUpdatedAt = time.Now().UTC()
	case models.ResolutionManual:
		merged.Origin = models.OriginMerged
		if localTaken {
			merged.LocalUpdatedAt = time.Now().UTC()
		}
	}

	// The resolved state is the new common baseline.
	merged.Base = models.CopyFields(merged.Fields)
	return merged, nil
}
