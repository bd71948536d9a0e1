package common

// AccessTokenHeaderName is the HTTP header used to carry the access token
// on outbound requests.
const AccessTokenHeaderName = "Authorization"

// Well-known entity identifiers mirrored from the server.
const (
	EntityUserProfile       = "user_profile"
	EntityMedicalProfile    = "medical_profile"
	EntityEmergencyContacts = "emergency_contacts"
)
