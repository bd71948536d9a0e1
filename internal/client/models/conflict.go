package models

import "time"

// Side names one of the two copies of a record.
type Side string

const (
	SideLocal  Side = "local"
	SideServer Side = "server"
)

// Conflict is a single field where the local and server copies diverged
// independently since the last common baseline. Conflicts are transient:
// they are produced by a sync pass, handed to the resolver, and discarded.
type Conflict struct {
	Field           string
	LocalValue      string
	ServerValue     string
	LocalUpdatedAt  time.Time
	ServerUpdatedAt time.Time

	// Suggested is set when a default winner exists by convention
	// (equal timestamps suggest the server copy). The suggestion still
	// requires explicit confirmation through a resolution.
	Suggested Side
}

// ResolutionStrategy selects how a conflict set collapses into one record.
type ResolutionStrategy string

const (
	ResolutionLocal  ResolutionStrategy = "local"
	ResolutionServer ResolutionStrategy = "server"
	ResolutionManual ResolutionStrategy = "manual"
)

// Resolution is the chosen policy for a conflict set. For ResolutionManual,
// Selections must cover every conflicting field; partial selections are
// rejected outright.
type Resolution struct {
	Strategy   ResolutionStrategy
	Selections map[string]Side
}
