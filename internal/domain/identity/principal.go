package identity

import (
	"slices"

	"github.com/google/uuid"
)

// Principal is the authenticated caller as asserted by the session layer
type Principal struct {
	UserID uuid.UUID
	Name   string
	Role   Role
	// PropertyIDs are the properties the caller owns (developer) or is
	// assigned to (caretaker).
	PropertyIDs []uuid.UUID
}

// SystemPrincipal is the actor used by scheduled jobs and webhooks
func SystemPrincipal() Principal {
	return Principal{UserID: uuid.Nil, Name: "system", Role: RoleSystem}
}

// IsAdmin reports whether the caller has unrestricted scope
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}

// HasProperty reports whether the caller owns or is assigned to a property
func (p Principal) HasProperty(propertyID uuid.UUID) bool {
	return slices.Contains(p.PropertyIDs, propertyID)
}

// Actor returns a pointer to the caller's ID for audit fields, or nil for system
func (p Principal) Actor() *uuid.UUID {
	if p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}
