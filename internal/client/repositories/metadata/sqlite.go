package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medguard/medguard-client/internal/dbx"
)

// SQLiteRepository stores the client's singleton state rows: session tokens,
// the cached user identity, and the offline credential record. One row per
// key; values are opaque bytes owned by the caller.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the value stored under key, or (nil, nil) when the key was
// never written. Callers treat absence as "no session" rather than an error.
func (s *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key)

	var value []byte
	switch err := row.Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("metadata read %q: %w", key, err)
	}
	return value, nil
}

// Set upserts one key.
func (s *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("metadata write %q: %w", key, err)
	}
	return nil
}

// SetMany upserts several keys through the repository's handle; run it on a
// transaction when the keys must land together, as a session snapshot or a
// credential record does.
func (s *SQLiteRepository) SetMany(ctx context.Context, values map[string][]byte) error {
	for key, value := range values {
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one key. Deleting an absent key is not an error.
func (s *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("metadata delete %q: %w", key, err)
	}
	return nil
}

// DeleteMany removes the given keys. Used by token teardown and the
// credential cache wipe, which drop fixed key groups.
func (s *SQLiteRepository) DeleteMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// List returns every stored key with its value. The session restore path
// reads the whole table at once instead of issuing one query per key.
func (s *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("metadata list: %w", err)
	}
	defer rows.Close()

	values := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("metadata list scan: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata list rows: %w", err)
	}
	return values, nil
}

// Clear drops every row. Only the explicit logout path uses it.
func (s *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("metadata clear: %w", err)
	}
	return nil
}
