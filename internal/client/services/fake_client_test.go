package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/storage"
	"github.com/medguard/medguard-client/internal/logging"
)

// pushCall records one PushEntity invocation for order assertions.
type pushCall struct {
	EntityID string
	Fields   map[string]string
	Expected time.Time
}

// fakeClient implements api.Client for service unit tests.
type fakeClient struct {
	mu sync.Mutex

	LoginRes *api.LoginResult
	LoginErr error

	MeRes *api.UserInfo
	MeErr error

	LogoutErr error

	RefreshRes *api.TokenPair
	RefreshErr error

	FetchRes map[string]*api.EntitySnapshot
	FetchErr error

	// PushErrs is consumed one per call; when empty PushErr applies.
	PushErrs []error
	PushErr  error
	PushedAt time.Time
	Pushes   []pushCall

	PingErr error

	access, refresh string
	onTokens        func(api.TokenPair)
}

func (f *fakeClient) Login(ctx context.Context, email string, password []byte) (*api.LoginResult, error) {
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	if f.LoginRes == nil {
		return nil, fmt.Errorf("fake: no login result configured")
	}
	return f.LoginRes, nil
}

func (f *fakeClient) Me(ctx context.Context) (*api.UserInfo, error) {
	if f.MeErr != nil {
		return nil, f.MeErr
	}
	return f.MeRes, nil
}

func (f *fakeClient) Logout(ctx context.Context) error { return f.LogoutErr }

func (f *fakeClient) Refresh(ctx context.Context, refreshToken string) (*api.TokenPair, error) {
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.RefreshRes, nil
}

func (f *fakeClient) FetchEntity(ctx context.Context, entityID string) (*api.EntitySnapshot, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	snap, ok := f.FetchRes[entityID]
	if !ok {
		return nil, fmt.Errorf("fake: no snapshot for %s", entityID)
	}
	return snap, nil
}

func (f *fakeClient) PushEntity(ctx context.Context, entityID string, fields map[string]string, expected time.Time) (*api.EntitySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	f.Pushes = append(f.Pushes, pushCall{EntityID: entityID, Fields: cp, Expected: expected})

	if len(f.PushErrs) > 0 {
		err := f.PushErrs[0]
		f.PushErrs = f.PushErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if f.PushErr != nil {
		return nil, f.PushErr
	}

	at := f.PushedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &api.EntitySnapshot{EntityID: entityID, Fields: cp, UpdatedAt: at}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return f.PingErr }

func (f *fakeClient) SetTokens(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access, f.refresh = access, refresh
}

func (f *fakeClient) OnTokens(fn func(api.TokenPair)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTokens = fn
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) pushedOrder() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(f.Pushes))
	for i, p := range f.Pushes {
		out[i] = p.Fields
	}
	return out
}

// ---- stack helpers ----

var dbSeq int
var dbSeqMu sync.Mutex

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestStack builds the full service graph over a fresh in-memory DB.
func newTestStack(t *testing.T, fake *fakeClient) (*SessionService, *SyncService, *ResolveService, *OutboxService, *storage.Repositories) {
	t.Helper()

	dbSeqMu.Lock()
	dbSeq++
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", dbSeq)
	dbSeqMu.Unlock()

	repos, err := storage.InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.DB.Close() })

	log := testLogger()
	creds := NewOfflineProvider(repos.DB)
	session := NewSessionService(fake, repos, creds, log)
	syncSvc := NewSyncService(fake, repos, session, log)
	resolver := NewResolveService(syncSvc, log)
	outboxSvc := NewOutboxService(fake, repos, session, syncSvc, 3, log)

	return session, syncSvc, resolver, outboxSvc, repos
}

func onlineLogin(t *testing.T, fake *fakeClient, session *SessionService) {
	t.Helper()
	fake.LoginErr = nil
	fake.LoginRes = &api.LoginResult{
		UserID: "u1",
		Email:  "test@medguard.com",
		TokenPair: api.TokenPair{
			AccessToken:  "at",
			RefreshToken: "rt",
			IssuedAt:     time.Now().UTC(),
		},
	}
	_, err := session.Login(context.Background(), "test@medguard.com", []byte("pw"))
	require.NoError(t, err)
}
