package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateType is the aggregate type name for invoice events
const AggregateType = "Invoice"

// Event type names
const (
	EventTypeInvoiceCreated   = "InvoiceCreated"
	EventTypeInvoicePaid      = "InvoicePaid"
	EventTypeInvoiceCancelled = "InvoiceCancelled"
	EventTypeInvoiceDisbursed = "InvoiceDisbursed"
)

// InvoiceCreatedEvent is raised when an invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	UnitID        uuid.UUID       `json:"unit_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Period        Period          `json:"period"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        Status          `json:"status"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(i *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateType, i.ID, i.PropertyID),
		InvoiceNumber:   i.InvoiceNumber,
		UnitID:          i.UnitID,
		TenantID:        i.TenantID,
		Period:          i.Period,
		TotalAmount:     i.TotalAmount,
		Status:          i.Status,
	}
}

// InvoicePaidEvent is raised when a payment settles an invoice
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	ReceiptNumber string          `json:"receipt_number"`
	UnitID        uuid.UUID       `json:"unit_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Period        Period          `json:"period"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Method        PaymentMethod   `json:"method"`
	PaidAt        time.Time       `json:"paid_at"`
	IsLate        bool            `json:"is_late"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(i *Invoice) *InvoicePaidEvent {
	e := &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateType, i.ID, i.PropertyID),
		InvoiceNumber:   i.InvoiceNumber,
		ReceiptNumber:   i.ReceiptNumber,
		UnitID:          i.UnitID,
		TenantID:        i.TenantID,
		Period:          i.Period,
		TotalAmount:     i.TotalAmount,
		Method:          i.PaymentMethod,
		IsLate:          i.IsLate,
	}
	if i.PaymentDate != nil {
		e.PaidAt = *i.PaymentDate
	}
	return e
}

// InvoiceCancelledEvent is raised when a paid invoice is invalidated
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	TenantID      uuid.UUID `json:"tenant_id"`
	CancelledBy   uuid.UUID `json:"cancelled_by"`
	WasDisbursed  bool      `json:"was_disbursed"`
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(i *Invoice) *InvoiceCancelledEvent {
	e := &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCancelled, AggregateType, i.ID, i.PropertyID),
		InvoiceNumber:   i.InvoiceNumber,
		TenantID:        i.TenantID,
		WasDisbursed:    i.Disbursement.IsDisbursed,
	}
	if i.CancelledBy != nil {
		e.CancelledBy = *i.CancelledBy
	}
	return e
}

// InvoiceDisbursedEvent is raised when an owner payout is recorded
type InvoiceDisbursedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber      string          `json:"invoice_number"`
	UnitID             uuid.UUID       `json:"unit_id"`
	ServiceFeeAmount   decimal.Decimal `json:"service_fee_amount"`
	NetDisbursedAmount decimal.Decimal `json:"net_disbursed_amount"`
}

// NewInvoiceDisbursedEvent creates a new InvoiceDisbursedEvent
func NewInvoiceDisbursedEvent(i *Invoice) *InvoiceDisbursedEvent {
	return &InvoiceDisbursedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeInvoiceDisbursed, AggregateType, i.ID, i.PropertyID),
		InvoiceNumber:      i.InvoiceNumber,
		UnitID:             i.UnitID,
		ServiceFeeAmount:   i.Disbursement.ServiceFeeAmount,
		NetDisbursedAmount: i.Disbursement.NetDisbursedAmount,
	}
}
