package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormRateRegistry resolves the platform rate from the billing_rates
// history and service fees from the service_fees table.
type GormRateRegistry struct {
	db          *gorm.DB
	defaultRate decimal.Decimal
	now         func() time.Time
}

// NewGormRateRegistry creates a registry that falls back to defaultRate
// when no rate has taken effect yet
func NewGormRateRegistry(db *gorm.DB, defaultRate decimal.Decimal) *GormRateRegistry {
	if !defaultRate.IsPositive() {
		defaultRate = pricing.DefaultMonthlyRate
	}
	return &GormRateRegistry{db: db, defaultRate: defaultRate, now: time.Now}
}

// WithClock overrides the clock used to decide which rate is in effect
func (r *GormRateRegistry) WithClock(now func() time.Time) *GormRateRegistry {
	r.now = now
	return r
}

// ActiveRate returns the latest rate whose effective date has passed
func (r *GormRateRegistry) ActiveRate(ctx context.Context) (decimal.Decimal, error) {
	var model models.BillingRateModel
	err := r.db.WithContext(ctx).
		Where("effective_from <= ?", r.now()).
		Order("effective_from DESC, created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.defaultRate, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return model.Amount, nil
}

// ServiceFee returns the fee for a unit type at a property, zero when unset
func (r *GormRateRegistry) ServiceFee(ctx context.Context, propertyID uuid.UUID, unitType string) (decimal.Decimal, error) {
	var model models.ServiceFeeModel
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND LOWER(unit_type) = ?", propertyID, strings.ToLower(strings.TrimSpace(unitType))).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return model.MonthlyFee, nil
}

// SetActiveRate appends a rate to the history
func (r *GormRateRegistry) SetActiveRate(ctx context.Context, rate pricing.Rate) error {
	if err := pricing.ValidateRate(rate.Amount); err != nil {
		return err
	}
	now := r.now()
	model := &models.BillingRateModel{
		BaseModel: models.BaseModel{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Amount:        rate.Amount,
		EffectiveFrom: rate.EffectiveFrom,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

var (
	_ pricing.Registry   = (*GormRateRegistry)(nil)
	_ pricing.RateWriter = (*GormRateRegistry)(nil)
)
