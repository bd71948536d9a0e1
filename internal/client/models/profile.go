package models

import (
	"sort"

	"github.com/medguard/medguard-client/internal/common"
)

// EntityTitle maps a server entity id to a human-readable name for display.
func EntityTitle(entityID string) string {
	switch entityID {
	case common.EntityUserProfile:
		return "User profile"
	case common.EntityMedicalProfile:
		return "Medical profile"
	case common.EntityEmergencyContacts:
		return "Emergency contacts"
	default:
		return entityID
	}
}

// SortedFieldNames returns the field names of a record in stable order for
// display and deterministic iteration.
func SortedFieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
