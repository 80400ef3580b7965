package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Filter defines filtering options for invoice queries
type Filter struct {
	shared.Filter
	PropertyID  *uuid.UUID
	PropertyIDs []uuid.UUID // restricts results to a caller's properties
	UnitID      *uuid.UUID
	TenantID    *uuid.UUID
	Period      *Period
	Status      *Status
	IsPaid      *bool
}

// Summary aggregates an invoice listing
type Summary struct {
	Count            int64
	TotalBilled      decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
}

// Repository defines persistence for invoices
type Repository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindActiveForUnitPeriod finds the non-cancelled invoice of a unit for a period
	FindActiveForUnitPeriod(ctx context.Context, unitID uuid.UUID, period Period) (*Invoice, error)

	// FindLeaseInvoice finds the non-cancelled month 0 invoice of a tenant's
	// lease starting on leaseStart
	FindLeaseInvoice(ctx context.Context, tenantID uuid.UUID, leaseStart time.Time) (*Invoice, error)

	// FindAll lists invoices matching the filter with the total count
	FindAll(ctx context.Context, filter Filter) ([]Invoice, int64, error)

	// Summarize totals the invoices matching the filter, ignoring pagination
	Summarize(ctx context.Context, filter Filter) (Summary, error)

	// InvoicedUnitIDs lists units holding a non-cancelled invoice for the period
	InvoicedUnitIDs(ctx context.Context, period Period) ([]uuid.UUID, error)

	// CountForPropertyPeriod counts invoices of a property for a period
	CountForPropertyPeriod(ctx context.Context, propertyID uuid.UUID, period Period) (int64, error)

	// FindUnpaidIssued lists issued, unpaid invoices of a period
	FindUnpaidIssued(ctx context.Context, period Period) ([]Invoice, error)

	// DisbursementRows joins a property's invoices for a period with the read model
	DisbursementRows(ctx context.Context, propertyID uuid.UUID, period Period) ([]ReportRow, error)

	// Create inserts a new invoice
	Create(ctx context.Context, inv *Invoice) error

	// SaveWithLock updates an invoice if its version is unchanged, then advances it
	SaveWithLock(ctx context.Context, inv *Invoice) error

	// MarkReminded flags invoices late and stamps the reminder date
	MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
}
