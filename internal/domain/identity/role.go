package identity

import (
	"strings"

	"github.com/propledger/backend/internal/domain/shared"
)

// Role is the role carried by an authenticated principal
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleCaretaker Role = "caretaker"
	RoleTenant    Role = "tenant"
	// RoleSystem is used by scheduled jobs and the gateway callback.
	RoleSystem Role = "system"
)

// AllRoles returns all known roles
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleDeveloper, RoleCaretaker, RoleTenant, RoleSystem}
}

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleCaretaker, RoleTenant, RoleSystem:
		return true
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsPrivileged reports whether the role may record non-gateway payments
func (r Role) IsPrivileged() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleCaretaker, RoleSystem:
		return true
	}
	return false
}

// CanEditServiceCharges reports whether the role may edit invoice service charges
func (r Role) CanEditServiceCharges() bool {
	return r == RoleDeveloper || r == RoleCaretaker
}

// ParseRole parses a role name
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", shared.NewDomainError("INVALID_ROLE", "Unknown role: "+s)
	}
	return r, nil
}
