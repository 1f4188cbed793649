package auth

// Prefix constants for Casbin identifiers
const (
	PrefixRole  = "role:"
	PrefixLevel = "level:"
)

// ActionAccess is the single action granted by privilege-level policies.
const ActionAccess = "access"

// RoleID creates a Casbin role identifier with the standard prefix
// Example: RoleID("elevated") → "role:elevated"
func RoleID(name string) string {
	return PrefixRole + name
}

// LevelID creates a Casbin object identifier for a required privilege level
// Example: LevelID("standard") → "level:standard"
func LevelID(name string) string {
	return PrefixLevel + name
}
