package models

import "time"

// OutboxEntry is one write captured while the session was offline, awaiting
// replay against the server. Seq is assigned by the store and gives strict
// creation order; replay never reorders entries for an entity.
type OutboxEntry struct {
	ID        string
	Seq       int64
	EntityID  string
	Payload   map[string]string
	CreatedAt time.Time
	Attempts  int
}
