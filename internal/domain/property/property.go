// Package property holds the read model of properties, units and tenants that
// the billing engine consumes. Records are owned by the property management
// side of the platform; this package never mutates them.
package property

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a property
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Property is a building or estate owned by a developer
type Property struct {
	ID           uuid.UUID
	Name         string
	Status       Status
	OwnedBy      uuid.UUID // developer user ID
	CaretakerIDs []uuid.UUID
	CreatedAt    time.Time
}

// IsActive reports whether the property is billable
func (p *Property) IsActive() bool {
	return p.Status == StatusActive
}

// Floor is a level inside a property
type Floor struct {
	ID          uuid.UUID
	PropertyID  uuid.UUID
	FloorNumber int
}

// UnitStatus is the occupancy state of a unit
type UnitStatus string

const (
	UnitStatusVacant        UnitStatus = "vacant"
	UnitStatusRented        UnitStatus = "rented"
	UnitStatusOwnerOccupied UnitStatus = "owner_occupied"
	UnitStatusMaintenance   UnitStatus = "maintenance"
)

// IsInvoiceable reports whether the generator may bill a unit in this state
func (s UnitStatus) IsInvoiceable() bool {
	return s == UnitStatusRented || s == UnitStatusOwnerOccupied
}

// Unit is a rentable space on a floor
type Unit struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	FloorID    uuid.UUID
	UnitNumber string
	Type       string // e.g. 1BR, 2BR, studio; keys the service fee
	RentAmount decimal.Decimal
	IsOccupied bool
	Status     UnitStatus
	OwnerID    *uuid.UUID
}

// RentalType classifies how a tenant pays for a unit
type RentalType string

const (
	RentalTypeMonthly       RentalType = "monthly"
	RentalTypeFixed         RentalType = "fixed"
	RentalTypeOwnerOccupied RentalType = "owner_occupied"
)

// Tenant is the occupant of a unit
type Tenant struct {
	ID             uuid.UUID
	UserID         *uuid.UUID
	PropertyID     uuid.UUID
	UnitID         uuid.UUID
	Name           string
	Email          string
	PhoneNumber    string
	RentalType     RentalType
	LeaseStartDate *time.Time
	LeaseEndDate   *time.Time
	RentAmount     decimal.Decimal
	IsActive       bool
}

// IsFixed reports whether the tenant is pre-billed for a whole lease
func (t *Tenant) IsFixed() bool {
	return t.RentalType == RentalTypeFixed
}

// IsOwnerOccupied reports whether the unit owner lives in the unit
func (t *Tenant) IsOwnerOccupied() bool {
	return t.RentalType == RentalTypeOwnerOccupied
}

// Rent returns the tenant's rent, falling back to the unit rent
func (t *Tenant) Rent(unit *Unit) decimal.Decimal {
	if t.RentAmount.IsPositive() {
		return t.RentAmount
	}
	if unit == nil {
		return decimal.Zero
	}
	return unit.RentAmount
}

// Service is an add-on service offered at a property
type Service struct {
	ID          uuid.UUID
	PropertyID  uuid.UUID
	Name        string
	Amount      decimal.Decimal
	IsMandatory bool
	IsActive    bool
}

// Contact is a platform user who receives notifications or owns properties
type Contact struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}

// Developer is a property owner billed by the platform
type Developer struct {
	Contact
	ActivePropertyIDs []uuid.UUID
}
