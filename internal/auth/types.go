package auth

import "errors"

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleOperator can command the door (unlock, lock, status) and read
	// the event log. This is the tier for reception desks, intercom
	// integrations, and panel devices.
	RoleOperator Role = "operator"

	// RoleAdmin has everything operator can do plus relay identity
	// management (inspect and rebind the gateway address). Installer or
	// maintenance credentials.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles an operator entry may carry.
var ValidRoles = []Role{RoleOperator, RoleAdmin}

// IsValidRole returns true if the role is a recognised authorisation tier.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
