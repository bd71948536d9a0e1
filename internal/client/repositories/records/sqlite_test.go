package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:recrepo?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS records (
  entity_id         TEXT PRIMARY KEY,
  fields            BLOB NOT NULL,
  base              BLOB NOT NULL,
  local_updated_at  INTEGER NOT NULL,
  server_updated_at INTEGER NOT NULL,
  origin            TEXT NOT NULL
);
DELETE FROM records;
`)
	require.NoError(t, err)
	return db
}

func sample(entityID string) *models.Record {
	return &models.Record{
		EntityID:        entityID,
		Fields:          map[string]string{"bloodType": "O+", "allergies": "penicillin"},
		Base:            map[string]string{"bloodType": "B+", "allergies": "penicillin"},
		LocalUpdatedAt:  time.Unix(10, 0).UTC(),
		ServerUpdatedAt: time.Unix(5, 0).UTC(),
		Origin:          models.OriginLocal,
	}
}

func TestPut_Get_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	want := sample("medical_profile")
	require.NoError(t, repo.Put(ctx, want))

	got, err := repo.Get(ctx, "medical_profile")
	require.NoError(t, err)
	require.Equal(t, want.Fields, got.Fields)
	require.Equal(t, want.Base, got.Base)
	require.True(t, got.LocalUpdatedAt.Equal(want.LocalUpdatedAt))
	require.True(t, got.ServerUpdatedAt.Equal(want.ServerUpdatedAt))
	require.Equal(t, models.OriginLocal, got.Origin)
}

func TestGet_MissingIsNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))

	_, err := repo.Get(context.Background(), "absent")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPut_UpsertsByEntityID(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := sample("medical_profile")
	require.NoError(t, repo.Put(ctx, rec))

	rec.Fields["bloodType"] = "A+"
	rec.ServerUpdatedAt = time.Unix(20, 0).UTC()
	rec.Origin = models.OriginMerged
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "medical_profile")
	require.NoError(t, err)
	require.Equal(t, "A+", got.Fields["bloodType"])
	require.Equal(t, models.OriginMerged, got.Origin)
}

func TestPut_RejectsServerTimestampRegression(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := sample("medical_profile")
	rec.ServerUpdatedAt = time.Unix(100, 0).UTC()
	require.NoError(t, repo.Put(ctx, rec))

	stale := rec.Clone()
	stale.ServerUpdatedAt = time.Unix(50, 0).UTC()
	require.ErrorIs(t, repo.Put(ctx, stale), ErrTimestampRegression)

	// equal timestamp is not a regression
	same := rec.Clone()
	require.NoError(t, repo.Put(ctx, same))
}

func TestDelete_IsIdempotent(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, sample("user_profile")))
	require.NoError(t, repo.Delete(ctx, "user_profile"))
	require.NoError(t, repo.Delete(ctx, "user_profile"))

	_, err := repo.Get(ctx, "user_profile")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_OrderedByEntityID(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, sample("user_profile")))
	require.NoError(t, repo.Put(ctx, sample("emergency_contacts")))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "emergency_contacts", all[0].EntityID)
	require.Equal(t, "user_profile", all[1].EntityID)
}
