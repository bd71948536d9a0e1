package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/common"
)

func TestDrain_Unauthenticated(t *testing.T) {
	fake := &fakeClient{}
	_, _, _, outboxSvc, _ := newTestStack(t, fake)

	_, err := outboxSvc.Drain(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDrain_ReplaysInCreationOrder(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, outboxSvc, _ := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	for _, edit := range []struct {
		entity string
		fields map[string]string
	}{
		{"medical_profile", map[string]string{"bloodType": "O+"}},
		{"emergency_contacts", map[string]string{"primary": "555-0100"}},
		{"medical_profile", map[string]string{"bloodType": "O+", "allergies": "latex"}},
	} {
		_, err := syncSvc.Update(context.Background(), edit.entity, edit.fields)
		require.NoError(t, err)
	}

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	acked, conflicted, exhausted, skipped := report.Counts()
	assert.Equal(t, 3, acked)
	assert.Zero(t, conflicted+exhausted+skipped)

	order := fake.pushedOrder()
	require.Len(t, order, 3)
	assert.Equal(t, "O+", order[0]["bloodType"])
	assert.Equal(t, "555-0100", order[1]["primary"])
	assert.Equal(t, "latex", order[2]["allergies"])

	n, err := outboxSvc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "acknowledged entries leave the queue")

	assert.Equal(t, models.ModeOnline, session.Current().Mode, "successful replay restores online mode")
}

func TestDrain_AckAdvancesServerTimestamp(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, outboxSvc, repos := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)

	fake.PushedAt = time.Unix(40, 0).UTC()

	_, err = outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	rec, err := repos.Records.Get(context.Background(), "medical_profile")
	require.NoError(t, err)
	assert.True(t, rec.ServerUpdatedAt.Equal(time.Unix(40, 0).UTC()))
	assert.Equal(t, "O+", rec.Base["bloodType"], "acknowledged payload becomes the baseline")
}

func TestDrain_ConflictDropsQueueAndReentersSync(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, outboxSvc, _ := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)
	_, err = syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O-"})
	require.NoError(t, err)

	session.MarkOnline()
	fake.PushErrs = []error{common.ErrServerConflict}
	fake.FetchRes = map[string]*api.EntitySnapshot{
		"medical_profile": {
			EntityID:  "medical_profile",
			Fields:    map[string]string{"bloodType": "A+"},
			UpdatedAt: time.Unix(50, 0).UTC(),
		},
	}

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	_, conflicted, _, _ := report.Counts()
	assert.Equal(t, 1, conflicted)

	// the whole queue for the entity is gone; the divergence is now a
	// regular pending conflict set
	n, err := outboxSvc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	conflicts, ok := syncSvc.PendingConflicts("medical_profile")
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "O-", conflicts[0].LocalValue)
	assert.Equal(t, "A+", conflicts[0].ServerValue)
}

func TestDrain_ExhaustionAfterMaxAttempts(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, _, repos := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	// single-attempt service keeps the test free of backoff sleeps
	outboxSvc := NewOutboxService(fake, repos, session, syncSvc, 1, testLogger())

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)

	session.MarkOnline()
	fake.PushErr = common.ErrUnavailable

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	_, _, exhausted, _ := report.Counts()
	require.Equal(t, 1, exhausted)
	require.ErrorIs(t, report.Results[0].Err, common.ErrOutboxExhausted)

	// the entry is kept for the user to inspect and discard explicitly
	pending, err := outboxSvc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, outboxSvc.Discard(context.Background(), pending[0].Seq))
	n, err := outboxSvc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_FailureBlocksLaterEntriesForEntity(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, _, repos := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	outboxSvc := NewOutboxService(fake, repos, session, syncSvc, 1, testLogger())

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)
	_, err = syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O-"})
	require.NoError(t, err)
	_, err = syncSvc.Update(context.Background(), "emergency_contacts", map[string]string{"primary": "555-0100"})
	require.NoError(t, err)

	session.MarkOnline()
	// first push dies, the rest succeed
	fake.PushErrs = []error{common.ErrUnavailable}

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	acked, _, exhausted, skipped := report.Counts()
	assert.Equal(t, 1, exhausted, "first medical_profile entry")
	assert.Equal(t, 1, skipped, "second medical_profile entry never overtakes the first")
	assert.Equal(t, 1, acked, "other entities keep draining")

	order := fake.pushedOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "555-0100", order[1]["primary"])
}

func TestDrain_DeadlineCutsPassShortWithoutExhausting(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, outboxSvc, _ := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)

	session.MarkOnline()
	fake.PushErr = context.DeadlineExceeded

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)

	_, _, exhausted, skipped := report.Counts()
	assert.Zero(t, exhausted, "a cut-short pass must not count against the retry cap")
	assert.Equal(t, 1, skipped)

	n, err := outboxSvc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrain_AttemptCountPersistsAcrossPasses(t *testing.T) {
	fake := &fakeClient{}
	session, syncSvc, _, _, repos := newTestStack(t, fake)
	onlineLogin(t, fake, session)
	session.MarkOffline()

	outboxSvc := NewOutboxService(fake, repos, session, syncSvc, 1, testLogger())

	_, err := syncSvc.Update(context.Background(), "medical_profile", map[string]string{"bloodType": "O+"})
	require.NoError(t, err)

	// the attempt recorded by an earlier pass counts against the cap
	pending, err := outboxSvc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, repos.Outbox.IncrementAttempts(context.Background(), pending[0].Seq))

	session.MarkOnline()

	report, err := outboxSvc.Drain(context.Background())
	require.NoError(t, err)
	_, _, exhausted, _ := report.Counts()
	assert.Equal(t, 1, exhausted)
	assert.Empty(t, fake.Pushes, "an exhausted entry is never replayed again")
}
