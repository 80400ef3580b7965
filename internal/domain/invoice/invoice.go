package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Domain errors raised by the invoice aggregate
var (
	ErrFixedLeasePeriod = shared.NewDomainError("FIXED_LEASE_PERIOD", "this month falls within your fixed lease period")
	ErrAlreadyDisbursed = shared.NewDomainError("ALREADY_DISBURSED", "Invoice has already been disbursed")
	ErrAlreadyPaid      = shared.NewDomainError("ALREADY_EXISTS", "Invoice has already been paid for this period")
	ErrNotPaid          = shared.NewDomainError("INVALID_STATE", "Invoice is not paid")
)

// ServiceCharge is a mandatory add-on service billed with the rent
type ServiceCharge struct {
	ServiceID   uuid.UUID       `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Amount      decimal.Decimal `json:"amount"`
}

// ServiceCharges implements GORM Scanner/Valuer for JSON storage
type ServiceCharges []ServiceCharge

// Value implements driver.Valuer
func (c ServiceCharges) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *ServiceCharges) Scan(value interface{}) error {
	if value == nil {
		*c = ServiceCharges{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan ServiceCharges: unsupported type")
	}

	if len(bytes) == 0 {
		*c = ServiceCharges{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// Total sums the charges
func (c ServiceCharges) Total() decimal.Decimal {
	total := decimal.Zero
	for _, sc := range c {
		total = total.Add(sc.Amount)
	}
	return total
}

// Composition is the breakdown an invoice amount is built from
type Composition struct {
	Rent           decimal.Decimal
	ServiceFee     decimal.Decimal
	OwnerOccupied  bool
	ServiceCharges ServiceCharges
}

// BaseAmount is rent plus fee, or the fee alone when the owner occupies the unit
func (c Composition) BaseAmount() decimal.Decimal {
	if c.OwnerOccupied {
		return c.ServiceFee
	}
	return c.Rent.Add(c.ServiceFee)
}

// Disbursement records the payout of a paid invoice to the unit owner
type Disbursement struct {
	IsDisbursed        bool
	DisbursedAmount    decimal.Decimal
	DisbursedBy        *uuid.UUID
	DisbursedDate      *time.Time
	Method             string
	Reference          string
	Notes              string
	ServiceFeeAmount   decimal.Decimal
	NetDisbursedAmount decimal.Decimal
}

// Payment carries the details of a settled payment
type Payment struct {
	Method        PaymentMethod
	Reference     string
	PhoneNumber   string
	ReceiptNumber string
	PaidAt        time.Time
}

// DisbursementDetails carries the details of an owner payout
type DisbursementDetails struct {
	PaymentDate time.Time
	Method      string
	Reference   string
	Notes       string
	ActorID     *uuid.UUID
}

// Invoice is a tenant rent invoice for one unit and period
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber         string
	ReceiptNumber         string
	Type                  Type
	PropertyID            uuid.UUID
	UnitID                uuid.UUID
	TenantID              uuid.UUID
	Period                Period
	LeaseStart            *time.Time
	Amount                decimal.Decimal
	ServiceCharges        ServiceCharges
	TotalServiceCharges   decimal.Decimal
	TotalAmount           decimal.Decimal
	PaymentMethod         PaymentMethod
	PaymentReference      string
	PhoneNumber           string
	IsPaid                bool
	PaymentDate           *time.Time
	DueDate               time.Time
	IsLate                bool
	LastReminderDate      *time.Time
	Status                Status
	Disbursement          Disbursement
	IsOwnerOccupied       bool
	OwnerServiceFeeAmount decimal.Decimal
	RentOnlyAmount        decimal.Decimal
	CancelledBy           *uuid.UUID
	CancelledAt           *time.Time
	CreatedBy             *uuid.UUID
}

// NewInvoiceParams holds the inputs for NewInvoice
type NewInvoiceParams struct {
	Number      string
	PropertyID  uuid.UUID
	UnitID      uuid.UUID
	TenantID    uuid.UUID
	Period      Period
	LeaseStart  *time.Time
	Composition Composition
	Status      Status
	CreatedBy   *uuid.UUID
	Now         time.Time
}

// NewInvoice creates an invoice in draft or issued state
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if p.Number == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if p.PropertyID == uuid.Nil || p.UnitID == uuid.Nil || p.TenantID == uuid.Nil {
		return nil, shared.ErrInvalidInput.WithMessage("Property, unit and tenant are required")
	}
	if _, err := NewPeriod(p.Period.Month, p.Period.Year); err != nil {
		return nil, err
	}
	if p.Status != StatusDraft && p.Status != StatusIssued {
		return nil, shared.ErrInvalidState.WithMessage("New invoices start as draft or issued")
	}
	if p.Period.IsLease() != (p.LeaseStart != nil) {
		return nil, shared.ErrInvalidInput.WithMessage("A lease start is required for, and only for, month 0 invoices")
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     p.Number,
		Type:              TypeTenantRent,
		PropertyID:        p.PropertyID,
		UnitID:            p.UnitID,
		TenantID:          p.TenantID,
		Period:            p.Period,
		LeaseStart:        normalizeLeaseStart(p.LeaseStart),
		Status:            p.Status,
		DueDate:           p.Period.DueDate(p.Now),
		CreatedBy:         p.CreatedBy,
	}
	if err := inv.applyComposition(p.Composition); err != nil {
		return nil, err
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

func (i *Invoice) applyComposition(c Composition) error {
	amount := c.BaseAmount()
	if amount.IsNegative() {
		return shared.ErrInvalidInput.WithMessage("Invoice amount cannot be negative")
	}
	for _, sc := range c.ServiceCharges {
		if sc.Amount.IsNegative() {
			return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("Service charge %s cannot be negative", sc.ServiceName))
		}
	}

	i.Amount = amount
	i.IsOwnerOccupied = c.OwnerOccupied
	if c.OwnerOccupied {
		i.OwnerServiceFeeAmount = c.ServiceFee
		i.RentOnlyAmount = decimal.Zero
	} else {
		i.OwnerServiceFeeAmount = decimal.Zero
		i.RentOnlyAmount = c.Rent
	}
	i.ServiceCharges = c.ServiceCharges
	if i.ServiceCharges == nil {
		i.ServiceCharges = ServiceCharges{}
	}
	i.recalculate()
	return nil
}

func (i *Invoice) recalculate() {
	i.TotalServiceCharges = i.ServiceCharges.Total()
	i.TotalAmount = i.Amount.Add(i.TotalServiceCharges)
}

// Recompose replaces the amounts of an unpaid invoice
func (i *Invoice) Recompose(c Composition) error {
	if i.IsPaid || (i.Status != StatusDraft && i.Status != StatusIssued) {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Cannot change amounts of a %s invoice", i.Status))
	}
	if err := i.applyComposition(c); err != nil {
		return err
	}
	i.touch()
	return nil
}

// SetServiceCharges replaces the service charges and recomputes totals
func (i *Invoice) SetServiceCharges(charges ServiceCharges) error {
	if i.IsPaid {
		return shared.ErrInvalidState.WithMessage("Cannot edit service charges of a paid invoice")
	}
	for _, sc := range charges {
		if sc.Amount.IsNegative() {
			return shared.ErrInvalidInput.WithMessage("Service charges cannot be negative")
		}
	}
	i.ServiceCharges = charges
	i.recalculate()
	i.touch()
	return nil
}

// AwaitGateway stamps a pending gateway payment. A draft invoice stays draft
// and an issued invoice stays issued until the callback confirms.
func (i *Invoice) AwaitGateway(method PaymentMethod, phone string) error {
	if i.Status != StatusDraft && i.Status != StatusIssued {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Cannot start a payment on a %s invoice", i.Status))
	}
	i.PaymentMethod = method
	i.PhoneNumber = phone
	i.touch()
	return nil
}

// MarkPaid settles the invoice
func (i *Invoice) MarkPaid(p Payment) error {
	if !i.Status.CanTransitionTo(StatusPaid) {
		if i.Status == StatusPaid {
			return ErrAlreadyPaid
		}
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Cannot pay a %s invoice", i.Status))
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}

	paidAt := p.PaidAt
	i.Status = StatusPaid
	i.IsPaid = true
	i.PaymentDate = &paidAt
	i.PaymentMethod = p.Method
	i.PaymentReference = p.Reference
	if p.PhoneNumber != "" {
		i.PhoneNumber = p.PhoneNumber
	}
	if p.ReceiptNumber != "" {
		i.ReceiptNumber = p.ReceiptNumber
	}
	i.IsLate = i.Period.IsLatePayment(paidAt)
	i.touch()

	i.AddDomainEvent(NewInvoicePaidEvent(i))
	return nil
}

// Cancel invalidates a paid invoice. Any disbursement stays as recorded.
func (i *Invoice) Cancel(actor uuid.UUID, at time.Time) error {
	if i.Status != StatusPaid {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Only paid invoices can be cancelled, invoice is %s", i.Status))
	}
	i.Status = StatusCancelled
	i.CancelledBy = &actor
	i.CancelledAt = &at
	i.touch()

	i.AddDomainEvent(NewInvoiceCancelledEvent(i))
	return nil
}

// MarkReminded flags an overdue invoice after a reminder run
func (i *Invoice) MarkReminded(at time.Time) {
	i.IsLate = true
	i.LastReminderDate = &at
	i.UpdatedAt = at
}

// IsActive reports whether the invoice counts towards the one per period rule
func (i *Invoice) IsActive() bool {
	return i.Status != StatusCancelled
}

// Outstanding returns the unpaid balance
func (i *Invoice) Outstanding() decimal.Decimal {
	if i.IsPaid || i.Status == StatusCancelled {
		return decimal.Zero
	}
	return i.TotalAmount
}

// touch stamps the update time. The version is advanced by SaveWithLock.
func (i *Invoice) touch() {
	i.UpdatedAt = time.Now()
}
