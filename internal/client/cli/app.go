package cli

import (
	"bufio"
	"context"
	"log"
	"os"
	"time"

	"github.com/medguard/medguard-client/internal/client/api"
	"github.com/medguard/medguard-client/internal/client/config"
	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/client/services"
	"github.com/medguard/medguard-client/internal/client/storage"
	"github.com/medguard/medguard-client/internal/filex"
	"github.com/medguard/medguard-client/internal/logging"
)

// App wires the client services together behind the interactive loop.
type App struct {
	config   *config.Config
	session  *services.SessionService
	sync     *services.SyncService
	resolver *services.ResolveService
	outbox   *services.OutboxService
	api      api.Client
	store    *storage.Repositories
	reader   *bufio.Reader
}

func NewApp(c *config.Config, logger logging.Logger) (*App, error) {
	ctx := context.Background()

	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}

	repos, err := storage.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	apiClient := api.NewHTTPClient(c.ServerBaseURL, c.RequestTimeout, logger)

	creds := services.NewOfflineProvider(repos.DB)
	session := services.NewSessionService(apiClient, repos, creds, logger)
	syncSvc := services.NewSyncService(apiClient, repos, session, logger)
	resolver := services.NewResolveService(syncSvc, logger)
	outboxSvc := services.NewOutboxService(apiClient, repos, session, syncSvc, c.MaxReplayAttempts, logger)

	return &App{
		config:   c,
		session:  session,
		sync:     syncSvc,
		resolver: resolver,
		outbox:   outboxSvc,
		api:      apiClient,
		store:    repos,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.session.Current().Authenticated
}

// Run restores any persisted session, starts the reachability watcher, and
// hands control to the interactive loop until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.api.Close()

	if sess, err := a.session.CheckSession(ctx); err != nil {
		log.Printf("session restore failed: %v", err)
	} else if sess.Authenticated {
		log.Printf("Welcome back, %s (%s mode)", sess.Email, sess.Mode)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	log.Println("Welcome to MedGuard CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}

func (a *App) getStatus() string {
	sess := a.session.Current()
	if !sess.Authenticated {
		return ""
	}
	return "(" + sess.Email + " " + string(sess.Mode) + ")"
}

// StartOnlineStatusWatcher periodically probes server reachability and flips
// the session between online and offline mode. A transition back to online
// also triggers an outbox drain so queued writes catch up without waiting
// for user action.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sess := a.session.Current()
			if !sess.Authenticated {
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.api.Ping(pingCtx)
			cancel()

			if err != nil {
				a.session.MarkOffline()
				continue
			}

			wasOffline := sess.Mode == models.ModeOffline
			a.session.MarkOnline()

			if wasOffline {
				if n, cntErr := a.outbox.PendingCount(ctx); cntErr == nil && n > 0 {
					if _, drainErr := a.outbox.Drain(ctx); drainErr != nil {
						log.Printf("background replay failed: %v", drainErr)
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
