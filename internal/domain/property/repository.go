package property

import (
	"context"

	"github.com/google/uuid"
)

// Reader gives read access to the property, unit and tenant model.
// Lookups return shared.ErrNotFound when a record is absent.
type Reader interface {
	// PropertyByID finds a property by ID
	PropertyByID(ctx context.Context, id uuid.UUID) (*Property, error)

	// UnitByID finds a unit by ID
	UnitByID(ctx context.Context, id uuid.UUID) (*Unit, error)

	// FloorByID finds a floor by ID
	FloorByID(ctx context.Context, id uuid.UUID) (*Floor, error)

	// TenantByID finds a tenant by ID
	TenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// ActiveTenantForUnit finds the active tenant occupying a unit
	ActiveTenantForUnit(ctx context.Context, unitID uuid.UUID) (*Tenant, error)

	// OccupiedUnits lists every unit flagged as occupied
	OccupiedUnits(ctx context.Context) ([]Unit, error)

	// MandatoryServices lists the active mandatory services of a property
	MandatoryServices(ctx context.Context, propertyID uuid.UUID) ([]Service, error)

	// ActivePropertiesByDeveloper lists the active properties a developer owns
	ActivePropertiesByDeveloper(ctx context.Context, developerID uuid.UUID) ([]Property, error)

	// DevelopersWithActiveProperties lists developers owning at least one active property
	DevelopersWithActiveProperties(ctx context.Context) ([]Developer, error)

	// ContactByID finds a platform user by ID
	ContactByID(ctx context.Context, id uuid.UUID) (*Contact, error)
}
