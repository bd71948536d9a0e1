package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/dbx"
)

// ErrTimestampRegression is returned by Put when the supplied record would
// move the entity's server timestamp backwards.
var ErrTimestampRegression = errors.New("server timestamp regression")

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, entityID string) (*models.Record, error) {
	query := `SELECT entity_id, fields, base, local_updated_at, server_updated_at, origin
		FROM records WHERE entity_id = ?`
	row := r.db.QueryRowContext(ctx, query, entityID)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", entityID, err)
	}
	return rec, nil
}

// Put upserts the record by entity id. Server timestamp monotonicity is
// checked against the stored row before writing.
func (r *SQLiteRepository) Put(ctx context.Context, record *models.Record) error {
	var existing int64
	err := r.db.QueryRowContext(ctx,
		`SELECT server_updated_at FROM records WHERE entity_id = ?`, record.EntityID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read record %s: %w", record.EntityID, err)
	}
	if err == nil && record.ServerUpdatedAt.UnixNano() < existing {
		return fmt.Errorf("record %s: %w", record.EntityID, ErrTimestampRegression)
	}

	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	base, err := json.Marshal(record.Base)
	if err != nil {
		return fmt.Errorf("failed to encode base: %w", err)
	}

	query := `INSERT INTO records (entity_id, fields, base, local_updated_at, server_updated_at, origin)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET fields = excluded.fields,
			base = excluded.base,
			local_updated_at = excluded.local_updated_at,
			server_updated_at = excluded.server_updated_at,
			origin = excluded.origin
	`
	_, err = r.db.ExecContext(ctx, query,
		record.EntityID, fields, base,
		record.LocalUpdatedAt.UnixNano(), record.ServerUpdatedAt.UnixNano(),
		string(record.Origin))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", record.EntityID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, entityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", entityID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Record, error) {
	query := `SELECT entity_id, fields, base, local_updated_at, server_updated_at, origin
		FROM records ORDER BY entity_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var (
		rec          models.Record
		fields, base []byte
		localNs      int64
		serverNs     int64
		origin       string
	)
	if err := scan(&rec.EntityID, &fields, &base, &localNs, &serverNs, &origin); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if err := json.Unmarshal(base, &rec.Base); err != nil {
		return nil, fmt.Errorf("failed to decode base: %w", err)
	}
	rec.LocalUpdatedAt = time.Unix(0, localNs).UTC()
	rec.ServerUpdatedAt = time.Unix(0, serverNs).UTC()
	rec.Origin = models.Origin(origin)
	return &rec, nil
}
