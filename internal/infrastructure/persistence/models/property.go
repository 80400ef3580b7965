package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/shopspring/decimal"
)

// UserModel is the slice of the platform users table the billing engine reads.
type UserModel struct {
	BaseModel
	Name  string `gorm:"type:varchar(200);not null"`
	Email string `gorm:"type:varchar(200);index"`
	Phone string `gorm:"type:varchar(20)"`
	Role  string `gorm:"type:varchar(20);not null;index"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToContact converts the user row to a domain Contact
func (m *UserModel) ToContact() *property.Contact {
	return &property.Contact{ID: m.ID, Name: m.Name, Email: m.Email, Phone: m.Phone}
}

// PropertyModel is the persistence model for a property.
type PropertyModel struct {
	BaseModel
	Name    string    `gorm:"type:varchar(200);not null"`
	Status  string    `gorm:"type:varchar(20);not null;default:'active';index"`
	OwnedBy uuid.UUID `gorm:"type:uuid;not null;index"`
	// Associations
	Caretakers []PropertyCaretakerModel `gorm:"foreignKey:PropertyID;references:ID"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "properties"
}

// ToDomain converts the persistence model to a domain Property
func (m *PropertyModel) ToDomain() *property.Property {
	p := &property.Property{
		ID:           m.ID,
		Name:         m.Name,
		Status:       property.Status(m.Status),
		OwnedBy:      m.OwnedBy,
		CaretakerIDs: make([]uuid.UUID, 0, len(m.Caretakers)),
		CreatedAt:    m.CreatedAt,
	}
	for _, c := range m.Caretakers {
		p.CaretakerIDs = append(p.CaretakerIDs, c.UserID)
	}
	return p
}

// PropertyCaretakerModel assigns a caretaker to a property.
type PropertyCaretakerModel struct {
	PropertyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

// TableName returns the table name for GORM
func (PropertyCaretakerModel) TableName() string {
	return "property_caretakers"
}

// FloorModel is the persistence model for a floor.
type FloorModel struct {
	BaseModel
	PropertyID  uuid.UUID `gorm:"type:uuid;not null;index"`
	FloorNumber int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FloorModel) TableName() string {
	return "floors"
}

// ToDomain converts the persistence model to a domain Floor
func (m *FloorModel) ToDomain() *property.Floor {
	return &property.Floor{ID: m.ID, PropertyID: m.PropertyID, FloorNumber: m.FloorNumber}
}

// UnitModel is the persistence model for a unit.
type UnitModel struct {
	BaseModel
	PropertyID uuid.UUID       `gorm:"type:uuid;not null;index"`
	FloorID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	UnitNumber string          `gorm:"type:varchar(20);not null"`
	UnitType   string          `gorm:"type:varchar(20);not null"`
	RentAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	IsOccupied bool            `gorm:"not null;default:false;index"`
	Status     string          `gorm:"type:varchar(20);not null;default:'vacant'"`
	OwnerID    *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string {
	return "units"
}

// ToDomain converts the persistence model to a domain Unit
func (m *UnitModel) ToDomain() *property.Unit {
	return &property.Unit{
		ID:         m.ID,
		PropertyID: m.PropertyID,
		FloorID:    m.FloorID,
		UnitNumber: m.UnitNumber,
		Type:       m.UnitType,
		RentAmount: m.RentAmount,
		IsOccupied: m.IsOccupied,
		Status:     property.UnitStatus(m.Status),
		OwnerID:    m.OwnerID,
	}
}

// TenantModel is the persistence model for a unit occupant.
type TenantModel struct {
	BaseModel
	UserID         *uuid.UUID      `gorm:"type:uuid;index"`
	PropertyID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	UnitID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name           string          `gorm:"type:varchar(200);not null"`
	Email          string          `gorm:"type:varchar(200)"`
	PhoneNumber    string          `gorm:"type:varchar(20)"`
	RentalType     string          `gorm:"type:varchar(20);not null;default:'monthly'"`
	LeaseStartDate *time.Time      `gorm:"type:date"`
	LeaseEndDate   *time.Time      `gorm:"type:date"`
	RentAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	IsActive       bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant
func (m *TenantModel) ToDomain() *property.Tenant {
	return &property.Tenant{
		ID:             m.ID,
		UserID:         m.UserID,
		PropertyID:     m.PropertyID,
		UnitID:         m.UnitID,
		Name:           m.Name,
		Email:          m.Email,
		PhoneNumber:    m.PhoneNumber,
		RentalType:     property.RentalType(m.RentalType),
		LeaseStartDate: m.LeaseStartDate,
		LeaseEndDate:   m.LeaseEndDate,
		RentAmount:     m.RentAmount,
		IsActive:       m.IsActive,
	}
}

// ServiceModel is the persistence model for a property add-on service.
type ServiceModel struct {
	BaseModel
	PropertyID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name        string          `gorm:"type:varchar(100);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	IsMandatory bool            `gorm:"not null;default:false"`
	IsActive    bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ServiceModel) TableName() string {
	return "property_services"
}

// ToDomain converts the persistence model to a domain Service
func (m *ServiceModel) ToDomain() property.Service {
	return property.Service{
		ID:          m.ID,
		PropertyID:  m.PropertyID,
		Name:        m.Name,
		Amount:      m.Amount,
		IsMandatory: m.IsMandatory,
		IsActive:    m.IsActive,
	}
}
