package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/medguard/medguard-client/internal/client/models"
	"github.com/medguard/medguard-client/internal/common"
)

// knownEntities lists the server entities this client mirrors, in display
// order.
var knownEntities = []string{
	common.EntityUserProfile,
	common.EntityMedicalProfile,
	common.EntityEmergencyContacts,
}

// promptEntity asks the user which entity to operate on. Both the bare id
// and its list number are accepted.
func (a *App) promptEntity() (string, error) {
	fmt.Println("Entities:")
	for i, id := range knownEntities {
		fmt.Printf("  %d. %s (%s)\n", i+1, models.EntityTitle(id), id)
	}

	answer, err := getSimpleText(a.reader, "Enter entity", os.Stdout)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)

	for i, id := range knownEntities {
		if answer == id || answer == fmt.Sprintf("%d", i+1) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown entity %q", answer)
}

// Show displays the locally mirrored copy of one entity.
func (a *App) Show(ctx context.Context) error {
	entityID, err := a.promptEntity()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	rec, err := a.store.Records.Get(ctx, entityID)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Println("No local copy yet; run 'sync' first")
		return nil
	}
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("%s (origin: %s, server version: %s)\n",
		models.EntityTitle(entityID), rec.Origin, rec.ServerUpdatedAt.Format("2006-01-02 15:04:05"))
	for _, name := range models.SortedFieldNames(rec.Fields) {
		fmt.Printf("  %s: %s\n", name, rec.Fields[name])
	}

	if conflicts, ok := a.sync.PendingConflicts(entityID); ok {
		fmt.Printf("Unresolved conflicts (%d), run 'resolve':\n", len(conflicts))
		printConflicts(conflicts)
	}
	return nil
}

// Edit prompts for field changes and applies them through the sync service.
// Online the change is pushed immediately; offline it is queued for replay.
func (a *App) Edit(ctx context.Context) error {
	entityID, err := a.promptEntity()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	changes, err := GetFieldEdits(a.reader, os.Stdout)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(changes) == 0 {
		fmt.Println("Nothing to change")
		return nil
	}

	if _, err := a.sync.Update(ctx, entityID, changes); err != nil {
		if errors.Is(err, common.ErrResolutionPending) {
			fmt.Println("This record has unresolved conflicts; run 'resolve' first")
			return err
		}
		log.Printf("error: %v", err)
		return err
	}

	if a.session.Current().Mode == models.ModeOffline {
		fmt.Println("Saved locally; the change will reach the server when you are back online")
	} else {
		fmt.Println("Saved")
	}
	return nil
}

// Sync reconciles one entity (or all of them) with the server copy.
func (a *App) Sync(ctx context.Context) error {
	answer, err := getSimpleText(a.reader, "Enter entity id, or 'all'", os.Stdout)
	if err != nil {
		return err
	}

	targets := knownEntities
	if answer != "all" && answer != "" {
		targets = []string{answer}
	}

	for _, entityID := range targets {
		res, err := a.sync.Sync(ctx, entityID)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrResolutionPending):
				fmt.Printf("%s: unresolved conflicts, run 'resolve' first\n", models.EntityTitle(entityID))
			case errors.Is(err, common.ErrUnavailable):
				fmt.Println("Server unreachable; local data stays as is")
				return err
			default:
				log.Printf("sync %s: %v", entityID, err)
			}
			continue
		}

		if res.Status == models.SyncConflicts {
			fmt.Printf("%s: %d field(s) need your decision\n", models.EntityTitle(entityID), len(res.Conflicts))
			printConflicts(res.Conflicts)
		} else {
			fmt.Printf("%s: up to date\n", models.EntityTitle(entityID))
		}
	}
	return nil
}

// Resolve walks the user through settling the conflicts left by the last
// sync pass of one entity.
func (a *App) Resolve(ctx context.Context) error {
	entityID, err := a.promptEntity()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	conflicts, ok := a.sync.PendingConflicts(entityID)
	if !ok {
		fmt.Println("No pending conflicts for this record")
		return nil
	}
	printConflicts(conflicts)

	answer, err := getSimpleText(a.reader, "Strategy: (l)ocal, (s)erver, or (m)anual per field", os.Stdout)
	if err != nil {
		return err
	}

	resolution := models.Resolution{}
	switch strings.ToLower(answer) {
	case "l", "local":
		resolution.Strategy = models.ResolutionLocal
	case "s", "server":
		resolution.Strategy = models.ResolutionServer
	case "m", "manual":
		resolution.Strategy = models.ResolutionManual
		resolution.Selections = make(map[string]models.Side, len(conflicts))
		for _, c := range conflicts {
			prompt := fmt.Sprintf("%s: keep (l)ocal %q or (s)erver %q", c.Field, c.LocalValue, c.ServerValue)
			if c.Suggested != "" {
				prompt += fmt.Sprintf(" [suggested: %s]", c.Suggested)
			}
			pick, err := getSimpleText(a.reader, prompt, os.Stdout)
			if err != nil {
				return err
			}
			switch strings.ToLower(pick) {
			case "l", "local":
				resolution.Selections[c.Field] = models.SideLocal
			case "s", "server":
				resolution.Selections[c.Field] = models.SideServer
			case "":
				if c.Suggested != "" {
					resolution.Selections[c.Field] = c.Suggested
				}
			}
		}
	default:
		fmt.Println("Unknown strategy, nothing resolved")
		return nil
	}

	merged, err := a.resolver.Resolve(ctx, entityID, resolution)
	if err != nil {
		if errors.Is(err, common.ErrIncompleteResolution) {
			fmt.Println("Every conflicting field needs a choice; nothing was applied")
			return err
		}
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Resolved. %s now reads:\n", models.EntityTitle(entityID))
	for _, name := range models.SortedFieldNames(merged.Fields) {
		fmt.Printf("  %s: %s\n", name, merged.Fields[name])
	}
	return nil
}

// Outbox lists the writes queued while offline, oldest first.
func (a *App) Outbox(ctx context.Context) error {
	entries, err := a.outbox.Pending(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Outbox is empty")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("#%d %s queued %s, attempts %d\n",
			e.Seq, models.EntityTitle(e.EntityID), e.CreatedAt.Format("2006-01-02 15:04:05"), e.Attempts)
		for _, name := range models.SortedFieldNames(e.Payload) {
			fmt.Printf("  %s: %s\n", name, e.Payload[name])
		}
	}
	return nil
}

// Drain replays the queued writes now and reports what happened to each.
func (a *App) Drain(ctx context.Context) error {
	report, err := a.outbox.Drain(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	acked, conflicted, exhausted, skipped := report.Counts()
	fmt.Printf("Replayed: %d ok, %d conflicted, %d gave up, %d deferred\n",
		acked, conflicted, exhausted, skipped)

	if conflicted > 0 {
		fmt.Println("Conflicted entries were rerouted through sync; run 'resolve'")
	}
	return nil
}

func printConflicts(conflicts []models.Conflict) {
	for _, c := range conflicts {
		suffix := ""
		if c.Suggested != "" {
			suffix = fmt.Sprintf(" (suggested: %s)", c.Suggested)
		}
		fmt.Printf("  %s: local %q vs server %q%s\n", c.Field, c.LocalValue, c.ServerValue, suffix)
	}
}
