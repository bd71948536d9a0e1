package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the interactive loop needs.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Show(ctx context.Context) error
	Edit(ctx context.Context) error
	Sync(ctx context.Context) error
	Resolve(ctx context.Context) error
	Outbox(ctx context.Context) error
	Drain(ctx context.Context) error
}

// runREPL starts the read-eval-print loop for the MedGuard CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           show available commands
//	  - login          authenticate (falls back to offline login)
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - help           show available commands
//	  - status         session mode and pending work
//	  - show           display a mirrored record
//	  - edit           change fields on a record
//	  - sync           reconcile with the server
//	  - resolve        settle conflicts from the last sync
//	  - outbox         list writes queued while offline
//	  - drain          replay queued writes now
//	  - logout         log out and wipe local data
//	  - exit | quit    leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("mg> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, show, edit, sync, resolve, outbox, drain, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "status":
			_ = a.Status(ctx)

		case "show":
			_ = a.Show(ctx)

		case "edit":
			_ = a.Edit(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "resolve":
			_ = a.Resolve(ctx)

		case "outbox":
			_ = a.Outbox(ctx)

		case "drain":
			_ = a.Drain(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
