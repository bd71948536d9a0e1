package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/client/repositories/metadata"
	"github.com/medguard/medguard-client/internal/client/storage"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/dbx"
	"github.com/medguard/medguard-client/internal/logging"
)

// Metadata keys for the persisted session.
const (
	metaUserID       = "user_id"
	metaEmail        = "email"
	metaAccessToken  = "access_token"
	metaRefreshToken = "refresh_token"
	metaIssuedAt     = "issued_at"
)

// SessionService owns the authentication lifecycle: credential exchange,
// token custody, validation, and the degraded offline-authenticated mode.
// It is the only component allowed to mutate the session; everyone else
// reads through Current.
type SessionService struct {
	api   api.Client
	store *storage.Repositories
	creds CredentialProvider
	log   logging.Logger

	mu      sync.RWMutex
	session *models.Session
}

func NewSessionService(apiClient api.Client, store *storage.Repositories, creds CredentialProvider, log logging.Logger) *SessionService {
	s := &SessionService{
		api:     apiClient,
		store:   store,
		creds:   creds,
		log:     log.With("component", "session"),
		session: models.EmptySession(),
	}
	// Persist token rotations the transport performs on its own.
	apiClient.OnTokens(s.tokensRotated)
	return s
}

// Current returns a copy of the session. Never nil.
func (s *SessionService) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.session
	return &c
}

func (s *SessionService) setSession(sess *models.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// MarkOffline flips an authenticated session into offline mode. Called by
// collaborators when a request fails at the transport level.
func (s *SessionService) MarkOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Authenticated && s.session.Mode != models.ModeOffline {
		s.session.Mode = models.ModeOffline
		s.log.Info(context.Background(), "session switched to offline mode")
	}
}

// MarkOnline is the reverse transition, taken on the next successful server
// round trip.
func (s *SessionService) MarkOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Authenticated && s.session.Mode != models.ModeOnline {
		s.session.Mode = models.ModeOnline
		s.log.Info(context.Background(), "session switched to online mode")
	}
}

// Login exchanges credentials for a session. When the server is unreachable
// it falls back to the locally cached credential record and yields an
// offline-mode session; a rejected credential is returned as
// common.ErrInvalidCredentials either way.
func (s *SessionService) Login(ctx context.Context, email string, password []byte) (*models.Session, error) {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			return s.offlineLogin(ctx, email, password)
		}
		return nil, err
	}

	if err := s.creds.Store(ctx, email, password); err != nil {
		return nil, fmt.Errorf("cache offline credentials: %w", err)
	}

	sess := &models.Session{
		UserID:        res.UserID,
		Email:         res.Email,
		AccessToken:   res.AccessToken,
		RefreshToken:  res.RefreshToken,
		IssuedAt:      res.IssuedAt,
		Mode:          models.ModeOnline,
		Authenticated: true,
	}
	if err := s.persistSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.api.SetTokens(sess.AccessToken, sess.RefreshToken)
	s.setSession(sess)
	s.log.Info(ctx, "logged in", "user", res.UserID, "mode", models.ModeOnline)
	return s.Current(), nil
}

func (s *SessionService) offlineLogin(ctx context.Context, email string, password []byte) (*models.Session, error) {
	if err := s.creds.Verify(ctx, email, password); err != nil {
		if errors.Is(err, common.ErrLocalDataNotAvailable) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	repo := metadata.NewSQLiteRepository(s.store.DB)
	userID, err := repo.Get(ctx, metaUserID)
	if err != nil {
		return nil, fmt.Errorf("read cached user: %w", err)
	}

	// The synthetic token marks the session as locally issued; it is never
	// sent to the server.
	sess := &models.Session{
		UserID:        string(userID),
		Email:         email,
		AccessToken:   "offline-" + uuid.NewString(),
		IssuedAt:      time.Now().UTC(),
		Mode:          models.ModeOffline,
		Authenticated: true,
	}
	s.setSession(sess)
	s.log.Info(ctx, "logged in from cached credentials", "mode", models.ModeOffline)
	return s.Current(), nil
}

// CheckSession restores the session from persisted tokens. The cached data
// is trusted optimistically, then validated against the server in the same
// call: a confirmed-invalid token drops the token material while mirrored
// records, queued writes and cached credentials stay for the next login,
// and an unreachable server only flips the session to offline mode. The
// user is never logged out just because the network is down.
func (s *SessionService) CheckSession(ctx context.Context) (*models.Session, error) {
	repo := metadata.NewSQLiteRepository(s.store.DB)

	values, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read persisted session: %w", err)
	}

	access := string(values[metaAccessToken])
	refresh := string(values[metaRefreshToken])
	if access == "" {
		s.setSession(models.EmptySession())
		return s.Current(), nil
	}

	sess := &models.Session{
		UserID:        string(values[metaUserID]),
		Email:         string(values[metaEmail]),
		AccessToken:   access,
		RefreshToken:  refresh,
		Mode:          models.ModeOnline,
		Authenticated: true,
	}
	if issued := string(values[metaIssuedAt]); issued != "" {
		if t, perr := time.Parse(time.RFC3339Nano, issued); perr == nil {
			sess.IssuedAt = t
		}
	}

	s.api.SetTokens(access, refresh)
	s.setSession(sess)

	info, err := s.api.Me(ctx)
	switch {
	case err == nil && info.Valid:
		s.MarkOnline()
	case err == nil && !info.Valid:
		s.log.Warn(ctx, "server reports session invalid, dropping tokens")
		s.teardownTokens(ctx)
	case errors.Is(err, common.ErrUnavailable):
		s.MarkOffline()
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrRefreshTokenExpired):
		s.log.Warn(ctx, "token rejected during validation, dropping tokens")
		s.teardownTokens(ctx)
	default:
		// Unclassified failure: keep the cached session, stay cautious.
		s.log.Warn(ctx, "session validation failed", "error", err)
		s.MarkOffline()
	}

	return s.Current(), nil
}

// Refresh rotates the token pair. On failure the session becomes
// unauthenticated; queued outbox entries stay on disk, replay just pauses
// until the next login.
func (s *SessionService) Refresh(ctx context.Context) (*models.Session, error) {
	cur := s.Current()
	if cur.RefreshToken == "" {
		return nil, common.ErrRefreshTokenExpired
	}

	tp, err := s.api.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if !errors.Is(err, common.ErrUnavailable) {
			s.teardownTokens(ctx)
		}
		return nil, err
	}

	s.tokensRotated(*tp)
	s.api.SetTokens(tp.AccessToken, tp.RefreshToken)
	return s.Current(), nil
}

// tokensRotated persists a rotated pair and updates the in-memory session.
func (s *SessionService) tokensRotated(tp api.TokenPair) {
	ctx := context.Background()
	err := dbx.WithTx(ctx, s.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metaAccessToken, []byte(tp.AccessToken)); err != nil {
			return err
		}
		return repo.Set(ctx, metaRefreshToken, []byte(tp.RefreshToken))
	})
	if err != nil {
		s.log.Error(ctx, "failed to persist rotated tokens", "error", err)
	}

	s.mu.Lock()
	s.session.AccessToken = tp.AccessToken
	s.session.RefreshToken = tp.RefreshToken
	s.mu.Unlock()
}

// Logout notifies the server on a best-effort basis and then wipes local
// session state unconditionally. The local teardown never fails because of
// the network.
func (s *SessionService) Logout(ctx context.Context) {
	if s.Current().Mode == models.ModeOnline {
		if err := s.api.Logout(ctx); err != nil {
			s.log.Warn(ctx, "server logout failed, clearing local state anyway", "error", err)
		}
	}

	err := dbx.WithTx(ctx, s.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM outbox`)
		return err
	})
	if err != nil {
		s.log.Error(ctx, "failed to clear local state on logout", "error", err)
	}

	s.api.SetTokens("", "")
	s.setSession(models.EmptySession())
	s.log.Info(ctx, "logged out")
}

// teardownTokens drops only the token material, leaving mirrored records,
// outbox entries and the offline credential cache in place for the next
// login.
func (s *SessionService) teardownTokens(ctx context.Context) {
	err := dbx.WithTx(ctx, s.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).DeleteMany(ctx, metaAccessToken, metaRefreshToken, metaIssuedAt)
	})
	if err != nil {
		s.log.Error(ctx, "failed to drop tokens", "error", err)
	}

	s.api.SetTokens("", "")
	s.setSession(models.EmptySession())
}

// persistSession writes the session snapshot atomically.
func (s *SessionService) persistSession(ctx context.Context, sess *models.Session) error {
	return dbx.WithTx(ctx, s.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).SetMany(ctx, map[string][]byte{
			metaUserID:       []byte(sess.UserID),
			metaEmail:        []byte(sess.Email),
			metaAccessToken:  []byte(sess.AccessToken),
			metaRefreshToken: []byte(sess.RefreshToken),
			metaIssuedAt:     []byte(sess.IssuedAt.Format(time.RFC3339Nano)),
		})
	})
}
