package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `INSERT INTO outbox (id, entity_id, payload, created_at, attempts)
		VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.EntityID, payload, entry.CreatedAt.UnixNano(), entry.Attempts)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get outbox seq: %w", err)
	}
	entry.Seq = seq
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.OutboxEntry, error) {
	return r.query(ctx,
		`SELECT seq, id, entity_id, payload, created_at, attempts FROM outbox ORDER BY seq`)
}

func (r *SQLiteRepository) GetByEntity(ctx context.Context, entityID string) ([]*models.OutboxEntry, error) {
	return r.query(ctx,
		`SELECT seq, id, entity_id, payload, created_at, attempts FROM outbox WHERE entity_id = ? ORDER BY seq`,
		entityID)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entries: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		var (
			e       models.OutboxEntry
			payload []byte
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.EntityID, &payload, &created, &e.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) IncrementAttempts(ctx context.Context, seq int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to bump attempts for seq %d: %w", seq, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, seq int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", seq, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEntity(ctx context.Context, entityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete outbox entries for %s: %w", entityID, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}
