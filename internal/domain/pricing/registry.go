// Package pricing defines the platform billing rate and per unit type
// service fees. Jobs and handlers receive a Registry rather than reading
// global configuration.
package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultMonthlyRate is the per property platform rate in KES
var DefaultMonthlyRate = decimal.NewFromInt(5000)

// ErrInvalidRate is returned for non-positive rates
var ErrInvalidRate = shared.NewDomainError("INVALID_RATE", "Billing rate must be positive")

// ServiceFee is the monthly management fee for one unit type at a property
type ServiceFee struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	UnitType   string
	MonthlyFee decimal.Decimal
}

// Rate is a platform billing rate with the date it took effect
type Rate struct {
	Amount        decimal.Decimal
	EffectiveFrom time.Time
}

// Registry resolves the active platform rate and service fees.
// A missing service fee resolves to zero.
type Registry interface {
	ActiveRate(ctx context.Context) (decimal.Decimal, error)
	ServiceFee(ctx context.Context, propertyID uuid.UUID, unitType string) (decimal.Decimal, error)
}

// RateWriter records a new platform rate
type RateWriter interface {
	SetActiveRate(ctx context.Context, rate Rate) error
}

// ValidateRate checks a candidate rate
func ValidateRate(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidRate
	}
	return nil
}

type feeKey struct {
	propertyID uuid.UUID
	unitType   string
}

// FixedRegistry is an in-memory registry with fixed values
type FixedRegistry struct {
	mu   sync.RWMutex
	rate decimal.Decimal
	fees map[feeKey]decimal.Decimal
}

// NewFixedRegistry creates a registry returning the given rate
func NewFixedRegistry(rate decimal.Decimal) *FixedRegistry {
	return &FixedRegistry{rate: rate, fees: make(map[feeKey]decimal.Decimal)}
}

// WithFee registers a service fee and returns the registry
func (r *FixedRegistry) WithFee(propertyID uuid.UUID, unitType string, fee decimal.Decimal) *FixedRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[feeKey{propertyID, normalizeUnitType(unitType)}] = fee
	return r
}

// ActiveRate returns the configured rate
func (r *FixedRegistry) ActiveRate(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate, nil
}

// ServiceFee returns the registered fee or zero
func (r *FixedRegistry) ServiceFee(_ context.Context, propertyID uuid.UUID, unitType string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fee, ok := r.fees[feeKey{propertyID, normalizeUnitType(unitType)}]; ok {
		return fee, nil
	}
	return decimal.Zero, nil
}

// SetActiveRate replaces the rate
func (r *FixedRegistry) SetActiveRate(_ context.Context, rate Rate) error {
	if err := ValidateRate(rate.Amount); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate.Amount
	return nil
}

func normalizeUnitType(unitType string) string {
	return strings.ToLower(strings.TrimSpace(unitType))
}

var (
	_ Registry   = (*FixedRegistry)(nil)
	_ RateWriter = (*FixedRegistry)(nil)
)
