package reminder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultStartDay is the first day of the month reminders are generated
const DefaultStartDay = 2

// Severity escalates with the number of days an invoice is overdue
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps days overdue to a severity
func SeverityFor(daysOverdue int) Severity {
	switch {
	case daysOverdue > 60:
		return SeverityCritical
	case daysOverdue > 30:
		return SeverityHigh
	case daysOverdue > 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Status of a reminder
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Reminder nags a tenant about one unpaid invoice
type Reminder struct {
	shared.BaseEntity
	InvoiceID     uuid.UUID
	InvoiceNumber string
	PropertyID    uuid.UUID
	UnitID        uuid.UUID
	TenantID      uuid.UUID
	Period        invoice.Period
	AmountDue     decimal.Decimal
	DaysOverdue   int
	Severity      Severity
	Status        Status
	Message       string
	LastSentAt    time.Time
}

// New creates a reminder for an unpaid invoice
func New(inv *invoice.Invoice, daysOverdue int, now time.Time) *Reminder {
	r := &Reminder{
		BaseEntity:    shared.NewBaseEntity(),
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		PropertyID:    inv.PropertyID,
		UnitID:        inv.UnitID,
		TenantID:      inv.TenantID,
		Period:        inv.Period,
	}
	r.Refresh(inv, daysOverdue, now)
	return r
}

// Refresh recomputes the overdue count, severity and message
func (r *Reminder) Refresh(inv *invoice.Invoice, daysOverdue int, now time.Time) {
	r.AmountDue = inv.Outstanding()
	r.DaysOverdue = daysOverdue
	r.Severity = SeverityFor(daysOverdue)
	r.Status = StatusActive
	r.Message = fmt.Sprintf("Invoice %s for %s %d is %d days overdue. Amount due: KES %s.",
		inv.InvoiceNumber, inv.Period.MonthName(), inv.Period.Year, daysOverdue, r.AmountDue.StringFixed(2))
	r.LastSentAt = now
	r.UpdatedAt = now
}

// ShouldRun applies the day of month gate
func ShouldRun(now time.Time, startDay int) bool {
	return now.Day() >= startDay
}

// DaysOverdue counts whole days from the last day of the month before now
func DaysOverdue(now time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	lastOfPrevious := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return int(today.Sub(lastOfPrevious).Hours() / 24)
}

// Filter defines filtering options for reminder queries
type Filter struct {
	shared.Filter
	PropertyID  *uuid.UUID
	PropertyIDs []uuid.UUID
	Period      *invoice.Period
	Severity    *Severity
}
