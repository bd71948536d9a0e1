package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medguard/medguard-client/internal/client/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:outboxrepo?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS outbox (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  id         TEXT NOT NULL,
  entity_id  TEXT NOT NULL,
  payload    BLOB NOT NULL,
  created_at INTEGER NOT NULL,
  attempts   INTEGER NOT NULL DEFAULT 0
);
DELETE FROM outbox;
`)
	require.NoError(t, err)
	return db
}

func entry(entityID, bloodType string) *models.OutboxEntry {
	return &models.OutboxEntry{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Payload:   map[string]string{"bloodType": bloodType},
		CreatedAt: time.Now().UTC(),
	}
}

func TestEnqueue_AssignsIncreasingSeq(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	first := entry("medical_profile", "O+")
	second := entry("medical_profile", "A+")
	require.NoError(t, repo.Enqueue(ctx, first))
	require.NoError(t, repo.Enqueue(ctx, second))

	require.Greater(t, second.Seq, first.Seq)
}

func TestGetAll_CreationOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		e := entry("medical_profile", fmt.Sprintf("v%d", i))
		require.NoError(t, repo.Enqueue(ctx, e))
		want = append(want, e.ID)
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		require.Equal(t, want[i], e.ID)
	}
}

func TestGetByEntity_FiltersAndOrders(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, entry("medical_profile", "O+")))
	require.NoError(t, repo.Enqueue(ctx, entry("user_profile", "x")))
	require.NoError(t, repo.Enqueue(ctx, entry("medical_profile", "A+")))

	got, err := repo.GetByEntity(ctx, "medical_profile")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "O+", got[0].Payload["bloodType"])
	require.Equal(t, "A+", got[1].Payload["bloodType"])
}

func TestIncrementAttempts_Persists(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	e := entry("medical_profile", "O+")
	require.NoError(t, repo.Enqueue(ctx, e))

	require.NoError(t, repo.IncrementAttempts(ctx, e.Seq))
	require.NoError(t, repo.IncrementAttempts(ctx, e.Seq))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, all[0].Attempts)
}

func TestIncrementAttempts_MissingSeqFails(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))

	require.Error(t, repo.IncrementAttempts(context.Background(), 9999))
}

func TestDelete_And_Count(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	e1 := entry("medical_profile", "O+")
	e2 := entry("medical_profile", "A+")
	require.NoError(t, repo.Enqueue(ctx, e1))
	require.NoError(t, repo.Enqueue(ctx, e2))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, repo.Delete(ctx, e1.Seq))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDeleteByEntity(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, entry("medical_profile", "O+")))
	require.NoError(t, repo.Enqueue(ctx, entry("medical_profile", "A+")))
	require.NoError(t, repo.Enqueue(ctx, entry("user_profile", "x")))

	require.NoError(t, repo.DeleteByEntity(ctx, "medical_profile"))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "user_profile", all[0].EntityID)
}
