package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AccountRepository defines persistence for billing accounts
type AccountRepository interface {
	// FindByDeveloper finds the account of a developer
	FindByDeveloper(ctx context.Context, developerID uuid.UUID) (*Account, error)

	// Save creates or updates an account
	Save(ctx context.Context, account *Account) error

	// UpdateAllRates sets the monthly rate of every account
	UpdateAllRates(ctx context.Context, rate decimal.Decimal) (int64, error)
}

// InvoiceFilter defines filtering options for billing invoice queries
type InvoiceFilter struct {
	shared.Filter
	DeveloperID *uuid.UUID
	Year        *int
	Month       *int
	IsPaid      *bool
}

// InvoiceRepository defines persistence for billing invoices
type InvoiceRepository interface {
	// FindByID finds a billing invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindForPeriod finds a developer's invoice for a month
	FindForPeriod(ctx context.Context, developerID uuid.UUID, year, month int) (*Invoice, error)

	// FindByDeveloperYear lists a developer's invoices for a year
	FindByDeveloperYear(ctx context.Context, developerID uuid.UUID, year int) ([]Invoice, error)

	// FindAll lists invoices matching the filter with the total count
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)

	// FindUnpaidFrom lists unpaid invoices for the given month and later
	FindUnpaidFrom(ctx context.Context, year, month int) ([]Invoice, error)

	// CountForPeriod counts invoices across developers for a month
	CountForPeriod(ctx context.Context, year, month int) (int64, error)

	// Create inserts a new invoice
	Create(ctx context.Context, inv *Invoice) error

	// SaveWithLock updates an invoice if its version is unchanged, then advances it
	SaveWithLock(ctx context.Context, inv *Invoice) error

	// DeleteUnpaidForYear removes a developer's unpaid invoices of a year.
	// Invoices referenced by a gateway transaction are kept.
	DeleteUnpaidForYear(ctx context.Context, developerID uuid.UUID, year int) (int64, error)
}
