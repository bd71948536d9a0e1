package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/client/repositories/outbox"
	"github.com/medguard/medguard-client/internal/client/repositories/records"
	"github.com/medguard/medguard-client/internal/client/storage"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/dbx"
	"github.com/medguard/medguard-client/internal/logging"
)

// replayBaseDelay is the first backoff step for a transient replay failure.
const replayBaseDelay = 500 * time.Millisecond

// ReplayOutcome classifies what happened to one outbox entry during a drain.
type ReplayOutcome string

const (
	ReplayAcked     ReplayOutcome = "acked"
	ReplayConflict  ReplayOutcome = "conflict"
	ReplayExhausted ReplayOutcome = "exhausted"
	ReplaySkipped   ReplayOutcome = "skipped"
)

// ReplayResult reports one entry's fate.
type ReplayResult struct {
	Entry   *models.OutboxEntry
	Outcome ReplayOutcome
	Err     error
}

// DrainReport summarizes a full drain pass.
type DrainReport struct {
	Results []ReplayResult
}

// Counts returns acked/conflicted/exhausted/skipped totals.
func (d *DrainReport) Counts() (acked, conflicted, exhausted, skipped int) {
	for _, r := range d.Results {
		switch r.Outcome {
		case ReplayAcked:
			acked++
		case ReplayConflict:
			conflicted++
		case ReplayExhausted:
			exhausted++
		case ReplaySkipped:
			skipped++
		}
	}
	return
}

// OutboxService replays writes captured while offline. Entries are replayed
// strictly in creation order; once an entry for an entity fails, the rest of
// that entity's queue is skipped for the pass so a later edit can never
// overtake an earlier one.
type OutboxService struct {
	api         api.Client
	store       *storage.Repositories
	session     *SessionService
	sync        *SyncService
	log         logging.Logger
	maxAttempts int
}

func NewOutboxService(apiClient api.Client, store *storage.Repositories, session *SessionService, syncSvc *SyncService, maxAttempts int, log logging.Logger) *OutboxService {
	return &OutboxService{
		api:         apiClient,
		store:       store,
		session:     session,
		sync:        syncSvc,
		log:         log.With("component", "outbox"),
		maxAttempts: maxAttempts,
	}
}

// PendingCount returns how many writes await replay.
func (o *OutboxService) PendingCount(ctx context.Context) (int, error) {
	return outbox.NewSQLiteRepository(o.store.DB).Count(ctx)
}

// Pending returns the queued writes in replay order.
func (o *OutboxService) Pending(ctx context.Context) ([]*models.OutboxEntry, error) {
	return outbox.NewSQLiteRepository(o.store.DB).GetAll(ctx)
}

// Discard drops one queued write explicitly, after its retries were
// exhausted and the user chose not to keep it.
func (o *OutboxService) Discard(ctx context.Context, seq int64) error {
	return outbox.NewSQLiteRepository(o.store.DB).Delete(ctx, seq)
}

// Drain replays all queued writes against the server. It requires an
// authenticated session and stops immediately if the session is torn down
// mid-pass. A replay rejected because server state moved on re-enters the
// sync path for that entity instead of being retried blindly.
func (o *OutboxService) Drain(ctx context.Context) (*DrainReport, error) {
	if !o.session.Current().Authenticated {
		return nil, common.ErrUnauthorized
	}

	repo := outbox.NewSQLiteRepository(o.store.DB)
	entries, err := repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}

	report := &DrainReport{}
	blocked := make(map[string]bool)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !o.session.Current().Authenticated {
			// Session torn down mid-drain: replay pauses, entries stay.
			return report, common.ErrUnauthorized
		}
		if blocked[entry.EntityID] {
			report.Results = append(report.Results, ReplayResult{Entry: entry, Outcome: ReplaySkipped})
			continue
		}

		res := o.replay(ctx, repo, entry)
		report.Results = append(report.Results, res)

		switch res.Outcome {
		case ReplayConflict:
			blocked[entry.EntityID] = true
			// The local mirror already holds the end state of every
			// queued edit for this entity, so the stale queue is dropped
			// and the divergence goes through the regular sync pass,
			// surfaced field by field instead of retried.
			if err := repo.DeleteByEntity(ctx, entry.EntityID); err != nil {
				o.log.Error(ctx, "failed to drop conflicted queue", "entity", entry.EntityID, "error", err)
			}
			if _, err := o.sync.Sync(ctx, entry.EntityID); err != nil {
				o.log.Warn(ctx, "conflict re-entry sync failed", "entity", entry.EntityID, "error", err)
			}
		case ReplayExhausted:
			blocked[entry.EntityID] = true
		}
	}

	return report, nil
}

// replay pushes a single entry, retrying transient failures with capped
// exponential backoff. Attempt counts are persisted so the cap holds across
// drain passes.
func (o *OutboxService) replay(ctx context.Context, repo outbox.Repository, entry *models.OutboxEntry) ReplayResult {
	recRepo := records.NewSQLiteRepository(o.store.DB)

	remaining := o.maxAttempts - entry.Attempts
	if remaining <= 0 {
		return ReplayResult{Entry: entry, Outcome: ReplayExhausted, Err: common.ErrOutboxExhausted}
	}

	var snap *api.EntitySnapshot
	backoff := retry.WithMaxRetries(uint64(remaining-1), retry.NewExponential(replayBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if bumpErr := repo.IncrementAttempts(ctx, entry.Seq); bumpErr != nil {
			return bumpErr
		}
		entry.Attempts++

		expected := time.Time{}
		if rec, recErr := recRepo.Get(ctx, entry.EntityID); recErr == nil {
			expected = rec.ServerUpdatedAt
		}

		var pushErr error
		snap, pushErr = o.api.PushEntity(ctx, entry.EntityID, entry.Payload, expected)
		if pushErr == nil {
			return nil
		}
		if errors.Is(pushErr, common.ErrUnavailable) {
			return retry.RetryableError(pushErr)
		}
		return pushErr
	})

	switch {
	case err == nil:
		o.session.MarkOnline()
		if ackErr := o.acknowledge(ctx, recRepo, entry, snap); ackErr != nil {
			return ReplayResult{Entry: entry, Outcome: ReplayExhausted, Err: ackErr}
		}
		return ReplayResult{Entry: entry, Outcome: ReplayAcked}

	case errors.Is(err, common.ErrServerConflict):
		return ReplayResult{Entry: entry, Outcome: ReplayConflict, Err: err}

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The drain was cut short, not the entry's retry budget.
		return ReplayResult{Entry: entry, Outcome: ReplaySkipped, Err: err}

	case errors.Is(err, common.ErrUnavailable):
		o.session.MarkOffline()
		if entry.Attempts >= o.maxAttempts {
			o.log.Warn(ctx, "outbox entry exhausted retries",
				"entity", entry.EntityID, "seq", entry.Seq, "attempts", entry.Attempts)
			return ReplayResult{Entry: entry, Outcome: ReplayExhausted, Err: common.ErrOutboxExhausted}
		}
		return ReplayResult{Entry: entry, Outcome: ReplaySkipped, Err: err}

	default:
		return ReplayResult{Entry: entry, Outcome: ReplayExhausted, Err: err}
	}
}

// acknowledge removes a confirmed entry and advances the mirror's server
// timestamp, atomically.
func (o *OutboxService) acknowledge(ctx context.Context, recRepo records.Repository, entry *models.OutboxEntry, snap *api.EntitySnapshot) error {
	rec, err := recRepo.Get(ctx, entry.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		rec = &models.Record{EntityID: entry.EntityID, Fields: models.CopyFields(entry.Payload)}
	} else if err != nil {
		return err
	}

	rec.ServerUpdatedAt = snap.UpdatedAt
	rec.Base = models.CopyFields(entry.Payload)

	return dbx.WithTx(ctx, o.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Put(ctx, rec); err != nil {
			return err
		}
		return outbox.NewSQLiteRepository(tx).Delete(ctx, entry.Seq)
	})
}
