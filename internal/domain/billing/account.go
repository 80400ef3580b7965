package billing

import (
	"strings"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency is the billing currency
const Currency = "KES"

// Account is a developer's platform billing account
type Account struct {
	shared.BaseAggregateRoot
	DeveloperID      uuid.UUID
	DeveloperName    string
	DeveloperEmail   string
	DeveloperPhone   string
	FixedMonthlyRate decimal.Decimal
	AccountReference string // paybill account number used for STK pushes
	Currency         string
	IsActive         bool
}

// NewAccount creates an account for a developer at the given rate
func NewAccount(dev property.Contact, rate decimal.Decimal) (*Account, error) {
	if dev.ID == uuid.Nil {
		return nil, shared.ErrInvalidInput.WithMessage("Developer ID is required")
	}
	if rate.IsZero() {
		rate = pricing.DefaultMonthlyRate
	}
	if err := pricing.ValidateRate(rate); err != nil {
		return nil, err
	}

	a := &Account{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DeveloperID:       dev.ID,
		FixedMonthlyRate:  rate,
		AccountReference:  AccountReferenceFor(dev.ID),
		Currency:          Currency,
		IsActive:          true,
	}
	a.UpdateSnapshot(dev)
	return a, nil
}

// AccountReferenceFor derives a stable paybill reference from a developer ID
func AccountReferenceFor(developerID uuid.UUID) string {
	hex := strings.ReplaceAll(developerID.String(), "-", "")
	return "PB" + strings.ToUpper(hex[len(hex)-8:])
}

// UpdateSnapshot refreshes the developer identity copied onto the account
func (a *Account) UpdateSnapshot(dev property.Contact) {
	a.DeveloperName = dev.Name
	a.DeveloperEmail = strings.ToLower(strings.TrimSpace(dev.Email))
	a.DeveloperPhone = dev.Phone
}

// SetRate changes the account's monthly per property rate
func (a *Account) SetRate(rate decimal.Decimal) error {
	if err := pricing.ValidateRate(rate); err != nil {
		return err
	}
	a.FixedMonthlyRate = rate
	return nil
}
