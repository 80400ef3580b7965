package invoice

import (
	"fmt"
	"time"

	"github.com/propledger/backend/internal/domain/shared"
)

// DueDay is the day of month every invoice falls due
const DueDay = 5

// LeaseMonth is the month value of a one-shot fixed lease invoice
const LeaseMonth = 0

// ErrInvalidPeriod is returned for out of range months or years
var ErrInvalidPeriod = shared.NewDomainError("INVALID_PERIOD", "Period month must be 0-12 and year 2000-2100")

// Period is the month an invoice pays for. Month 0 marks a fixed lease
// invoice covering the whole lease.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewPeriod validates and builds a period
func NewPeriod(month, year int) (Period, error) {
	if month < LeaseMonth || month > 12 || year < 2000 || year > 2100 {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Month: month, Year: year}, nil
}

// PeriodOf returns the calendar period containing t
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// IsLease reports whether this is the fixed lease sentinel
func (p Period) IsLease() bool {
	return p.Month == LeaseMonth
}

// MonthName returns the English month name
func (p Period) MonthName() string {
	if p.IsLease() {
		return "Fixed Lease"
	}
	return time.Month(p.Month).String()
}

// String formats the period as YYYY-MM
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Previous returns the calendar month before p
func (p Period) Previous() Period {
	if p.Month <= 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// Index orders periods on a single monthly axis
func (p Period) Index() int {
	return p.Year*12 + p.Month - 1
}

// FirstDay returns midnight of the first day of the period
func (p Period) FirstDay(loc *time.Location) time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
}

// LastDay returns midnight of the last day of the period
func (p Period) LastDay(loc *time.Location) time.Time {
	return p.FirstDay(loc).AddDate(0, 1, -1)
}

// DueDate returns the 5th of the period's own month. Lease invoices fall due
// on the 5th of the month they were raised in.
func (p Period) DueDate(raisedAt time.Time) time.Time {
	if p.IsLease() {
		return time.Date(raisedAt.Year(), raisedAt.Month(), DueDay, 0, 0, 0, 0, raisedAt.Location())
	}
	return time.Date(p.Year, time.Month(p.Month), DueDay, 0, 0, 0, 0, raisedAt.Location())
}

// IsLatePayment reports whether paidAt falls after the grace end, the 5th of
// the following month. Lease invoices are never late.
func (p Period) IsLatePayment(paidAt time.Time) bool {
	if p.IsLease() {
		return false
	}
	graceEnd := time.Date(p.Year, time.Month(p.Month)+1, DueDay+1, 0, 0, 0, 0, paidAt.Location())
	return !paidAt.Before(graceEnd)
}

// WithinLease reports whether the period falls inside [start, end] at month
// granularity. A nil bound leaves that side open.
func (p Period) WithinLease(start, end *time.Time) bool {
	if p.IsLease() {
		return false
	}
	idx := p.Index()
	if start != nil && idx < PeriodOf(*start).Index() {
		return false
	}
	if end != nil && idx > PeriodOf(*end).Index() {
		return false
	}
	return true
}

// LeaseKey truncates a lease start to its UTC calendar day, the key a
// fixed lease invoice is unique on.
func LeaseKey(start time.Time) time.Time {
	start = start.UTC()
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeLeaseStart(start *time.Time) *time.Time {
	if start == nil {
		return nil
	}
	key := LeaseKey(*start)
	return &key
}
