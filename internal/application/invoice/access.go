package invoice

import (
	"context"
	"slices"

	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
)

// AuthorizeProperty checks that the principal may act on a property.
// Developers must own it and caretakers must be assigned to it.
func AuthorizeProperty(p identity.Principal, prop *property.Property) error {
	switch p.Role {
	case identity.RoleAdmin, identity.RoleSystem:
		return nil
	case identity.RoleDeveloper:
		if prop.OwnedBy == p.UserID || p.HasProperty(prop.ID) {
			return nil
		}
	case identity.RoleCaretaker:
		if p.HasProperty(prop.ID) || slices.Contains(prop.CaretakerIDs, p.UserID) {
			return nil
		}
	}
	return shared.ErrForbidden.WithMessage("You do not have access to this property")
}

// AuthorizeTenant checks that a tenant principal acts only for themselves
func AuthorizeTenant(p identity.Principal, tenant *property.Tenant) error {
	if p.Role != identity.RoleTenant {
		return nil
	}
	if tenant.UserID == nil || *tenant.UserID != p.UserID {
		return shared.ErrForbidden.WithMessage("You can only pay for your own unit")
	}
	return nil
}

// AuthorizeInvoice checks that the principal may see or act on an invoice
func AuthorizeInvoice(ctx context.Context, reader property.Reader, p identity.Principal, inv *invoice.Invoice) error {
	if p.IsAdmin() {
		return nil
	}
	if p.Role == identity.RoleTenant {
		tenant, err := reader.TenantByID(ctx, inv.TenantID)
		if err != nil {
			return err
		}
		return AuthorizeTenant(p, tenant)
	}
	prop, err := reader.PropertyByID(ctx, inv.PropertyID)
	if err != nil {
		return err
	}
	return AuthorizeProperty(p, prop)
}
