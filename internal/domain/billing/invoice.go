package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DueDay is the day of month billing invoices fall due
const DueDay = 5

// Status is the state of a billing invoice
type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue" // derived for display, never stored
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Billing invoice errors
var (
	ErrInvoicePaid   = shared.NewDomainError("INVALID_STATE", "Billing invoice is already paid")
	ErrAlreadyExists = shared.NewDomainError("ALREADY_EXISTS", "Billing invoice already exists for this month")
)

// PropertyLine is one property billed on a consolidated invoice
type PropertyLine struct {
	PropertyID   uuid.UUID       `json:"property_id"`
	PropertyName string          `json:"property_name"`
	Amount       decimal.Decimal `json:"amount"`
}

// PropertyLines implements GORM Scanner/Valuer for JSON storage
type PropertyLines []PropertyLine

// Value implements driver.Valuer
func (l PropertyLines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *PropertyLines) Scan(value interface{}) error {
	if value == nil {
		*l = PropertyLines{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PropertyLines: unsupported type")
	}
	if len(bytes) == 0 {
		*l = PropertyLines{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Invoice is the consolidated platform invoice of a developer for one month
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber    string
	AccountID        uuid.UUID
	DeveloperID      uuid.UUID
	DeveloperName    string
	Year             int
	Month            int
	Properties       PropertyLines
	TotalAmount      decimal.Decimal
	IsPaid           bool
	Status           Status
	DueDate          time.Time
	PaidAt           *time.Time
	PaymentReference string
	PaymentMethod    string
}

// NewInvoice creates an issued invoice covering the given properties at rate
func NewInvoice(number string, account *Account, year, month int, properties []property.Property, rate decimal.Decimal) (*Invoice, error) {
	if number == "" {
		return nil, shared.ErrInvalidInput.WithMessage("Billing invoice number is required")
	}
	if month < 1 || month > 12 {
		return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("Invalid billing month %d", month))
	}
	if err := pricing.ValidateRate(rate); err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     number,
		AccountID:         account.ID,
		DeveloperID:       account.DeveloperID,
		DeveloperName:     account.DeveloperName,
		Year:              year,
		Month:             month,
		Properties:        make(PropertyLines, 0, len(properties)),
		Status:            StatusIssued,
		DueDate:           time.Date(year, time.Month(month), DueDay, 0, 0, 0, 0, time.UTC),
	}
	for _, p := range properties {
		inv.Properties = append(inv.Properties, PropertyLine{PropertyID: p.ID, PropertyName: p.Name, Amount: rate})
	}
	inv.recalculate()
	return inv, nil
}

func (i *Invoice) recalculate() {
	total := decimal.Zero
	for _, line := range i.Properties {
		total = total.Add(line.Amount)
	}
	i.TotalAmount = total
}

// HasProperty reports whether the property is already billed on this invoice
func (i *Invoice) HasProperty(propertyID uuid.UUID) bool {
	for _, line := range i.Properties {
		if line.PropertyID == propertyID {
			return true
		}
	}
	return false
}

// AppendProperty adds a property line to an unpaid invoice. It returns false
// when the property is already billed.
func (i *Invoice) AppendProperty(propertyID uuid.UUID, propertyName string, rate decimal.Decimal) (bool, error) {
	if i.IsPaid {
		return false, ErrInvoicePaid
	}
	if i.HasProperty(propertyID) {
		return false, nil
	}
	if err := pricing.ValidateRate(rate); err != nil {
		return false, err
	}
	i.Properties = append(i.Properties, PropertyLine{PropertyID: propertyID, PropertyName: propertyName, Amount: rate})
	i.recalculate()
	i.UpdatedAt = time.Now()
	return true, nil
}

// ApplyRate re-prices every line of an unpaid invoice
func (i *Invoice) ApplyRate(rate decimal.Decimal) error {
	if i.IsPaid {
		return ErrInvoicePaid
	}
	if err := pricing.ValidateRate(rate); err != nil {
		return err
	}
	for idx := range i.Properties {
		i.Properties[idx].Amount = rate
	}
	i.recalculate()
	i.UpdatedAt = time.Now()
	return nil
}

// Rebuild replaces the lines of an unpaid invoice with properties billed at rate
func (i *Invoice) Rebuild(properties []property.Property, rate decimal.Decimal) error {
	if i.IsPaid {
		return ErrInvoicePaid
	}
	if err := pricing.ValidateRate(rate); err != nil {
		return err
	}
	lines := make(PropertyLines, 0, len(properties))
	for _, p := range properties {
		lines = append(lines, PropertyLine{PropertyID: p.ID, PropertyName: p.Name, Amount: rate})
	}
	i.Properties = lines
	i.recalculate()
	i.UpdatedAt = time.Now()
	return nil
}

// MarkPaid settles the invoice through the gateway
func (i *Invoice) MarkPaid(reference, method string, at time.Time) error {
	if i.IsPaid {
		return ErrInvoicePaid
	}
	if i.Status != StatusIssued && i.Status != StatusDraft {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Cannot pay a %s billing invoice", i.Status))
	}
	i.IsPaid = true
	i.Status = StatusPaid
	i.PaidAt = &at
	i.PaymentReference = reference
	i.PaymentMethod = method
	i.UpdatedAt = at

	i.AddDomainEvent(NewBillingInvoicePaidEvent(i))
	return nil
}

// DisplayStatus derives overdue for issued invoices past their due date
func (i *Invoice) DisplayStatus(now time.Time) Status {
	if i.Status == StatusIssued && !i.IsPaid && now.After(i.DueDate.AddDate(0, 0, 1)) {
		return StatusOverdue
	}
	return i.Status
}

// IsCurrentOrFuture reports whether the invoice month is not before now's month
func (i *Invoice) IsCurrentOrFuture(now time.Time) bool {
	return i.Year*12+i.Month >= now.Year()*12+int(now.Month())
}
