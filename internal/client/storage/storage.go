// Package storage opens the on-device SQLite database, applies schema
// migrations, and bundles the repositories the services work with.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/medguard/medguard-client/internal/client/migrations"
	"github.com/medguard/medguard-client/internal/client/repositories/metadata"
	"github.com/medguard/medguard-client/internal/client/repositories/outbox"
	"github.com/medguard/medguard-client/internal/client/repositories/records"

	_ "modernc.org/sqlite"
)

// Repositories groups the per-table repositories plus the shared DB handle
// used for cross-repository transactions.
type Repositories struct {
	Metadata metadata.Repository
	Records  records.Repository
	Outbox   outbox.Repository
	DB       *sql.DB
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if necessary) the database at dsn, migrates
// it, and returns the repository bundle.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Records:  records.NewSQLiteRepository(db),
		Outbox:   outbox.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}
