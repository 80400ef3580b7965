package invoice

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// RecordPaymentCommand creates or updates the invoice of a unit and period
type RecordPaymentCommand struct {
	UnitID        uuid.UUID             `validate:"required"`
	TenantID      uuid.UUID             `validate:"required"`
	Month         int                   `validate:"min=0,max=12"`
	Year          int                   `validate:"required,min=2000,max=2100"`
	PaymentMethod invoice.PaymentMethod `validate:"required"`
	// Amount is the submitted amount. Developers and caretakers submit the
	// base amount; every other role submits a total that already includes
	// the service charges.
	Amount           *decimal.Decimal
	ServiceCharges   invoice.ServiceCharges
	PaymentReference string `validate:"max=100"`
	PhoneNumber      string `validate:"max=20"`
	PaymentDate      *time.Time
}

// MarkDisbursedCommand records an owner payout
type MarkDisbursedCommand struct {
	InvoiceID   uuid.UUID `validate:"required"`
	PaymentDate time.Time
	Method      string `validate:"required,max=50"`
	Reference   string `validate:"max=100"`
	Notes       string `validate:"max=500"`
}

// ListInvoicesQuery filters an invoice listing
type ListInvoicesQuery struct {
	PropertyID *uuid.UUID
	TenantID   *uuid.UUID
	UnitID     *uuid.UUID
	Month      *int
	Year       *int
	Status     *invoice.Status
	IsPaid     *bool
	Page       int
	PageSize   int
}

// InvoiceListResult is a page of invoices with the listing summary
type InvoiceListResult struct {
	Items    []invoice.Invoice
	Total    int64
	Page     int
	PageSize int
	Summary  invoice.Summary
}
