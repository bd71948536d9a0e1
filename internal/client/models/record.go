package models

import (
	"time"
)

// Origin tags where a record's current field values came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginServer Origin = "server"
	OriginMerged Origin = "merged"
)

// Record is the client-side snapshot of one server-owned entity.
//
// Fields holds the current values; Base holds the values as of the last
// successful sync and is the common baseline for three-way comparison.
// LocalUpdatedAt advances on any local write; ServerUpdatedAt advances only
// from a successful server fetch or acknowledged push and never moves
// backwards for a given entity.
type Record struct {
	EntityID        string
	Fields          map[string]string
	Base            map[string]string
	LocalUpdatedAt  time.Time
	ServerUpdatedAt time.Time
	Origin          Origin
}

// Clone returns a deep copy. Repositories and services hand out clones so
// callers can mutate freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = CopyFields(r.Fields)
	c.Base = CopyFields(r.Base)
	return &c
}

// CopyFields returns a shallow copy of a field map. A nil map copies to an
// empty, non-nil map so callers can assign into it.
func CopyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
