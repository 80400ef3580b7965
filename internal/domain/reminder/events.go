package reminder

import (
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EventTypeReminderIssued is raised for every reminder written by a run
const EventTypeReminderIssued = "ReminderIssued"

// IssuedEvent carries a reminder to the notification handlers
type IssuedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	DaysOverdue   int             `json:"days_overdue"`
	Severity      Severity        `json:"severity"`
	Message       string          `json:"message"`
}

// NewIssuedEvent creates a new IssuedEvent
func NewIssuedEvent(r *Reminder) *IssuedEvent {
	return &IssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReminderIssued, "Reminder", r.ID, r.PropertyID),
		InvoiceID:       r.InvoiceID,
		InvoiceNumber:   r.InvoiceNumber,
		TenantID:        r.TenantID,
		AmountDue:       r.AmountDue,
		DaysOverdue:     r.DaysOverdue,
		Severity:        r.Severity,
		Message:         r.Message,
	}
}
