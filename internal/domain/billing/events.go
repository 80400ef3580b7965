package billing

import (
	"time"

	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EventTypeBillingInvoicePaid is raised when a developer pays a billing invoice
const EventTypeBillingInvoicePaid = "BillingInvoicePaid"

// BillingInvoicePaidEvent is raised when a billing invoice is paid
type BillingInvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber    string          `json:"invoice_number"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaymentReference string          `json:"payment_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

// NewBillingInvoicePaidEvent creates a new BillingInvoicePaidEvent
func NewBillingInvoicePaidEvent(i *Invoice) *BillingInvoicePaidEvent {
	e := &BillingInvoicePaidEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeBillingInvoicePaid, "BillingInvoice", i.ID, i.DeveloperID),
		InvoiceNumber:    i.InvoiceNumber,
		Year:             i.Year,
		Month:            i.Month,
		TotalAmount:      i.TotalAmount,
		PaymentReference: i.PaymentReference,
	}
	if i.PaidAt != nil {
		e.PaidAt = *i.PaidAt
	}
	return e
}
