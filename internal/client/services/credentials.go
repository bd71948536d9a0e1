// Package services contains the application services of the MedGuard client:
// session lifecycle, local/server reconciliation, conflict resolution, and
// the offline mutation outbox.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"

	"github.com/medguard/medguard-client/internal/client/repositories/metadata"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/cryptox"
	"github.com/medguard/medguard-client/internal/dbx"
)

// Metadata keys for the locally cached credential record.
const (
	metaCredEmail    = "cred_email"
	metaCredSalt     = "cred_salt"
	metaCredVerifier = "cred_verifier"
)

// CredentialProvider verifies a credential without the server. It backs the
// degraded login path used when the backend is unreachable.
type CredentialProvider interface {
	// Verify checks email+password against the cached credential record.
	// Returns common.ErrLocalDataNotAvailable when nothing is cached and
	// common.ErrInvalidCredentials on mismatch.
	Verify(ctx context.Context, email string, password []byte) error

	// Store caches the credential record after a successful online login.
	Store(ctx context.Context, email string, password []byte) error

	// Clear wipes the cached credential record.
	Clear(ctx context.Context) error
}

// OfflineProvider implements CredentialProvider on the local metadata store.
// Only a salt and a verifier hash are cached, never the password itself.
type OfflineProvider struct {
	db *sql.DB
}

func NewOfflineProvider(db *sql.DB) *OfflineProvider {
	return &OfflineProvider{db: db}
}

func (p *OfflineProvider) repo() metadata.Repository {
	return metadata.NewSQLiteRepository(p.db)
}

func (p *OfflineProvider) Verify(ctx context.Context, email string, password []byte) error {
	repo := p.repo()

	savedEmail, err := repo.Get(ctx, metaCredEmail)
	if err != nil {
		return fmt.Errorf("read cached email: %w", err)
	}
	if savedEmail == nil {
		return common.ErrLocalDataNotAvailable
	}
	if string(savedEmail) != email {
		return common.ErrInvalidCredentials
	}

	salt, err := repo.Get(ctx, metaCredSalt)
	if err != nil {
		return fmt.Errorf("read cached salt: %w", err)
	}
	verifier, err := repo.Get(ctx, metaCredVerifier)
	if err != nil {
		return fmt.Errorf("read cached verifier: %w", err)
	}
	if salt == nil || verifier == nil {
		return common.ErrLocalDataNotAvailable
	}

	candidate := cryptox.MakeVerifier(cryptox.DeriveKey(password, salt))
	if subtle.ConstantTimeCompare(verifier, candidate) == 0 {
		return common.ErrInvalidCredentials
	}
	return nil
}

// Store persists email, a fresh random salt and the derived verifier in a
// single transaction so a crash cannot leave a partial credential record.
func (p *OfflineProvider) Store(ctx context.Context, email string, password []byte) error {
	salt := common.GenerateRandByteArray(32)
	verifier := cryptox.MakeVerifier(cryptox.DeriveKey(password, salt))

	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).SetMany(ctx, map[string][]byte{
			metaCredEmail:    []byte(email),
			metaCredSalt:     salt,
			metaCredVerifier: verifier,
		})
	})
}

func (p *OfflineProvider) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).DeleteMany(ctx, metaCredEmail, metaCredSalt, metaCredVerifier)
	})
}
