package models

// SyncStatus is the outcome class of one sync pass.
type SyncStatus string

const (
	// SyncClean means the merged record was persisted with no divergence
	// needing user input.
	SyncClean SyncStatus = "clean"

	// SyncConflicts means at least one field diverged on both sides; the
	// local store was left untouched and a resolution is required.
	SyncConflicts SyncStatus = "conflicts"
)

// SyncResult is returned by a successful sync pass. Transport and store
// failures are returned as errors instead.
type SyncResult struct {
	Status    SyncStatus
	Record    *Record
	Conflicts []Conflict
}
