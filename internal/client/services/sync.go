package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/client/repositories/outbox"
	"github.com/medguard/medguard-client/internal/client/repositories/records"
	"github.com/medguard/medguard-client/internal/client/storage"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/dbx"
	"github.com/medguard/medguard-client/internal/logging"
)

// pendingEntity remembers a sync pass that stopped on conflicts: the
// conflicts themselves, the partially merged state they were cut from, and
// the server snapshot of that pass so a server-side resolution can restore
// the server copy wholesale. It lives only in memory; the durable store
// stays untouched until the caller supplies a resolution.
type pendingEntity struct {
	conflicts []models.Conflict
	merged    *models.Record
	server    *api.EntitySnapshot
}

// SyncService reconciles the local mirror with the authoritative server
// copy. All writes to one entity are funneled through a per-entity lock, so
// no two in-flight operations touch the same record concurrently.
type SyncService struct {
	api     api.Client
	store   *storage.Repositories
	session *SessionService
	log     logging.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]*pendingEntity
}

func NewSyncService(apiClient api.Client, store *storage.Repositories, session *SessionService, log logging.Logger) *SyncService {
	return &SyncService{
		api:     apiClient,
		store:   store,
		session: session,
		log:     log.With("component", "sync"),
		locks:   make(map[string]*sync.Mutex),
		pending: make(map[string]*pendingEntity),
	}
}

// lockEntity serializes writers per entity. Callers must release via the
// returned func.
func (s *SyncService) lockEntity(entityID string) func() {
	s.mu.Lock()
	l, ok := s.locks[entityID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[entityID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *SyncService) getPending(entityID string) (*pendingEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[entityID]
	return p, ok
}

func (s *SyncService) setPending(entityID string, p *pendingEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[entityID] = p
}

func (s *SyncService) clearPending(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, entityID)
}

// PendingConflicts exposes the conflicts awaiting resolution for an entity.
func (s *SyncService) PendingConflicts(entityID string) ([]models.Conflict, bool) {
	p, ok := s.getPending(entityID)
	if !ok {
		return nil, false
	}
	out := make([]models.Conflict, len(p.conflicts))
	copy(out, p.conflicts)
	return out, true
}

// Sync fetches the server copy of entityID, compares it field by field
// against the local mirror, and either persists a clean merge or reports
// the conflicting fields. While conflicts are outstanding for an entity,
// further syncs of it are refused and the durable mirror is not modified.
func (s *SyncService) Sync(ctx context.Context, entityID string) (*models.SyncResult, error) {
	unlock := s.lockEntity(entityID)
	defer unlock()

	if _, ok := s.getPending(entityID); ok {
		return nil, fmt.Errorf("entity %s: %w", entityID, common.ErrResolutionPending)
	}
	if !s.session.Current().Authenticated {
		return nil, common.ErrUnauthorized
	}

	snap, err := s.api.FetchEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			s.session.MarkOffline()
		}
		return nil, fmt.Errorf("fetch %s: %w", entityID, err)
	}
	s.session.MarkOnline()

	// A fetch that raced a logout must not commit anything locally.
	if !s.session.Current().Authenticated {
		return nil, common.ErrUnauthorized
	}

	repo := records.NewSQLiteRepository(s.store.DB)

	local, err := repo.Get(ctx, entityID)
	if errors.Is(err, common.ErrNotFound) {
		// First sight of this entity: the server copy is the baseline.
		rec := &models.Record{
			EntityID:        entityID,
			Fields:          models.CopyFields(snap.Fields),
			Base:            models.CopyFields(snap.Fields),
			LocalUpdatedAt:  snap.UpdatedAt,
			ServerUpdatedAt: snap.UpdatedAt,
			Origin:          models.OriginServer,
		}
		if err := repo.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist baseline %s: %w", entityID, err)
		}
		return &models.SyncResult{Status: models.SyncClean, Record: rec.Clone()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load local %s: %w", entityID, err)
	}

	merged, conflicts := diffAgainstBase(local, snap)

	if len(conflicts) > 0 {
		s.setPending(entityID, &pendingEntity{conflicts: conflicts, merged: merged, server: snap})
		s.log.Info(ctx, "sync found conflicts", "entity", entityID, "fields", len(conflicts))
		return &models.SyncResult{Status: models.SyncConflicts, Conflicts: conflicts}, nil
	}

	if err := repo.Put(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist merged %s: %w", entityID, err)
	}

	// Local-side wins survive the merge but are not on the server yet.
	if merged.Origin != models.OriginServer {
		if err := s.pushOrEnqueue(ctx, merged); err != nil {
			return nil, err
		}
	}

	s.log.Info(ctx, "sync clean", "entity", entityID)
	return &models.SyncResult{Status: models.SyncClean, Record: merged.Clone()}, nil
}

// diffAgainstBase performs the three-way comparison of local and server
// fields against the baseline captured at the last successful sync.
//
// A field changed on one side only takes that side's value. A field changed
// identically on both sides is clean. A field changed differently on both
// sides is a conflict. When both sides' timestamps are exactly equal the
// server copy is the conventional winner, but the field is still reported
// as a conflict so the choice is confirmed, never silent.
func diffAgainstBase(local *models.Record, snap *api.EntitySnapshot) (*models.Record, []models.Conflict) {
	fields := make(map[string]string)
	var conflicts []models.Conflict
	localWin, serverWin := false, false

	for _, name := range fieldUnion(local.Fields, snap.Fields, local.Base) {
		lv, lok := local.Fields[name]
		sv, sok := snap.Fields[name]
		bv, bok := local.Base[name]

		localChanged := lok != bok || lv != bv
		serverChanged := sok != bok || sv != bv

		switch {
		case !localChanged && !serverChanged:
			if bok {
				fields[name] = bv
			}
		case localChanged && !serverChanged:
			localWin = true
			if lok {
				fields[name] = lv
			}
		case !localChanged && serverChanged:
			serverWin = true
			if sok {
				fields[name] = sv
			}
		default: // both changed
			if lok == sok && lv == sv {
				// convergent edit, nothing to resolve
				if lok {
					fields[name] = lv
				}
				continue
			}
			c := models.Conflict{
				Field:           name,
				LocalValue:      lv,
				ServerValue:     sv,
				LocalUpdatedAt:  local.LocalUpdatedAt,
				ServerUpdatedAt: snap.UpdatedAt,
			}
			if local.LocalUpdatedAt.Equal(snap.UpdatedAt) {
				c.Suggested = models.SideServer
			}
			conflicts = append(conflicts, c)
		}
	}

	origin := models.OriginServer
	switch {
	case localWin && serverWin:
		origin = models.OriginMerged
	case localWin:
		origin = models.OriginLocal
	}

	merged := &models.Record{
		EntityID:        local.EntityID,
		Fields:          fields,
		Base:            models.CopyFields(fields),
		LocalUpdatedAt:  local.LocalUpdatedAt,
		ServerUpdatedAt: snap.UpdatedAt,
		Origin:          origin,
	}
	return merged, conflicts
}

func fieldUnion(maps ...map[string]string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	return names
}

// Update applies a local edit to the mirror. Online, the change is pushed
// immediately; offline (or when the push hits a dead network) it is queued
// in the outbox together with the durable write, in one transaction.
func (s *SyncService) Update(ctx context.Context, entityID string, changes map[string]string) (*models.Record, error) {
	unlock := s.lockEntity(entityID)
	defer unlock()

	if _, ok := s.getPending(entityID); ok {
		return nil, fmt.Errorf("entity %s: %w", entityID, common.ErrResolutionPending)
	}
	if !s.session.Current().Authenticated {
		return nil, common.ErrUnauthorized
	}

	repo := records.NewSQLiteRepository(s.store.DB)

	rec, err := repo.Get(ctx, entityID)
	if errors.Is(err, common.ErrNotFound) {
		rec = &models.Record{EntityID: entityID, Fields: map[string]string{}, Base: map[string]string{}}
	} else if err != nil {
		return nil, fmt.Errorf("load local %s: %w", entityID, err)
	}

	for k, v := range changes {
		rec.Fields[k] = v
	}
	rec.LocalUpdatedAt = time.Now().UTC()
	rec.Origin = models.OriginLocal

	if s.session.Current().Mode == models.ModeOnline {
		snap, err := s.api.PushEntity(ctx, entityID, rec.Fields, rec.ServerUpdatedAt)
		switch {
		case err == nil:
			rec.ServerUpdatedAt = snap.UpdatedAt
			rec.Base = models.CopyFields(rec.Fields)
			if err := repo.Put(ctx, rec); err != nil {
				return nil, fmt.Errorf("persist %s: %w", entityID, err)
			}
			return rec.Clone(), nil
		case errors.Is(err, common.ErrServerConflict):
			// Server moved on. Keep the local write durable; the next
			// sync pass surfaces the divergence field by field.
			s.log.Warn(ctx, "push rejected, server state changed", "entity", entityID)
			if err := repo.Put(ctx, rec); err != nil {
				return nil, fmt.Errorf("persist %s: %w", entityID, err)
			}
			return rec.Clone(), nil
		case errors.Is(err, common.ErrUnavailable):
			s.session.MarkOffline()
			// fall through to the offline path below
		default:
			return nil, fmt.Errorf("push %s: %w", entityID, err)
		}
	}

	// Offline: durable write and outbox entry commit together.
	err = dbx.WithTx(ctx, s.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Put(ctx, rec); err != nil {
			return err
		}
		entry := &models.OutboxEntry{
			ID:        uuid.NewString(),
			EntityID:  entityID,
			Payload:   models.CopyFields(rec.Fields),
			CreatedAt: time.Now().UTC(),
		}
		return outbox.NewSQLiteRepository(tx).Enqueue(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("queue offline write %s: %w", entityID, err)
	}

	s.log.Info(ctx, "queued offline write", "entity", entityID)
	return rec.Clone(), nil
}

// pushOrEnqueue sends the record to the server when online, or queues it
// for replay when the network is down. Used after clean merges and
// resolutions, which must never lose the local side silently.
func (s *SyncService) pushOrEnqueue(ctx context.Context, rec *models.Record) error {
	if s.session.Current().Mode == models.ModeOnline {
		snap, err := s.api.PushEntity(ctx, rec.EntityID, rec.Fields, rec.ServerUpdatedAt)
		if err == nil {
			rec.ServerUpdatedAt = snap.UpdatedAt
			rec.Base = models.CopyFields(rec.Fields)
			return records.NewSQLiteRepository(s.store.DB).Put(ctx, rec)
		}
		if errors.Is(err, common.ErrServerConflict) {
			s.log.Warn(ctx, "push rejected, server state changed", "entity", rec.EntityID)
			return nil
		}
		if !errors.Is(err, common.ErrUnavailable) {
			return fmt.Errorf("push %s: %w", rec.EntityID, err)
		}
		s.session.MarkOffline()
	}

	entry := &models.OutboxEntry{
		ID:        uuid.NewString(),
		EntityID:  rec.EntityID,
		Payload:   models.CopyFields(rec.Fields),
		CreatedAt: time.Now().UTC(),
	}
	return outbox.NewSQLiteRepository(s.store.DB).Enqueue(ctx, entry)
}
