package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts the user for credentials and tries to authenticate.
//
// The session service attempts an online login first and falls back to the
// cached credential record when the server is unreachable, so a dead network
// still yields a usable offline session. The password byte slice is securely
// wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.session.Login(ctx, email, password)
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	if sess.Mode == models.ModeOffline {
		log.Printf("Server unavailable, logged in from cached credentials")
	} else {
		log.Printf("Login successful")
	}
	return nil
}

// Logout notifies the server on a best-effort basis, wipes the local mirror,
// token material, and queued writes, and returns to the logged-out prompt.
func (a *App) Logout(ctx context.Context) error {
	a.session.Logout(ctx)
	fmt.Println("Logged out")
	return nil
}

// Status prints the session identity, connectivity mode, and pending work.
func (a *App) Status(ctx context.Context) error {
	sess := a.session.Current()
	if !sess.Authenticated {
		fmt.Println("Not logged in")
		return nil
	}

	fmt.Printf("User: %s\nMode: %s\n", sess.Email, sess.Mode)

	if n, err := a.outbox.PendingCount(ctx); err == nil && n > 0 {
		fmt.Printf("Queued writes awaiting replay: %d\n", n)
	}

	for _, entityID := range knownEntities {
		if conflicts, ok := a.sync.PendingConflicts(entityID); ok {
			fmt.Printf("Unresolved conflicts on %s: %d field(s)\n", models.EntityTitle(entityID), len(conflicts))
		}
	}
	return nil
}
