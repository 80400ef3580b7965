package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// BillingRateModel records each platform rate change. The row with the
// latest effective date not in the future is the active rate.
type BillingRateModel struct {
	BaseModel
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	EffectiveFrom time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (BillingRateModel) TableName() string {
	return "billing_rates"
}

// ToDomain converts the persistence model to a domain Rate
func (m *BillingRateModel) ToDomain() pricing.Rate {
	return pricing.Rate{Amount: m.Amount, EffectiveFrom: m.EffectiveFrom}
}

// ServiceFeeModel is the monthly management fee of a unit type at a property.
type ServiceFeeModel struct {
	BaseModel
	PropertyID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_service_fee_property_type,priority:1"`
	UnitType   string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_service_fee_property_type,priority:2"`
	MonthlyFee decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (ServiceFeeModel) TableName() string {
	return "service_fees"
}

// ToDomain converts the persistence model to a domain ServiceFee
func (m *ServiceFeeModel) ToDomain() pricing.ServiceFee {
	return pricing.ServiceFee{ID: m.ID, PropertyID: m.PropertyID, UnitType: m.UnitType, MonthlyFee: m.MonthlyFee}
}
