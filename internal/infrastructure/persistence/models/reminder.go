package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/shopspring/decimal"
)

// ReminderModel is the persistence model for a payment reminder. There is
// at most one reminder per invoice.
type ReminderModel struct {
	BaseModel
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	InvoiceNumber string          `gorm:"type:varchar(50);not null"`
	PropertyID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	UnitID        uuid.UUID       `gorm:"type:uuid;not null"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Month         int             `gorm:"not null"`
	Year          int             `gorm:"not null"`
	AmountDue     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DaysOverdue   int             `gorm:"not null"`
	Severity      string          `gorm:"type:varchar(20);not null;index"`
	Status        string          `gorm:"type:varchar(20);not null"`
	Message       string          `gorm:"type:text"`
	LastSentAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReminderModel) TableName() string {
	return "payment_reminders"
}

// ToDomain converts the persistence model to a domain Reminder
func (m *ReminderModel) ToDomain() *reminder.Reminder {
	return &reminder.Reminder{
		BaseEntity:    m.Entity(),
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: m.InvoiceNumber,
		PropertyID:    m.PropertyID,
		UnitID:        m.UnitID,
		TenantID:      m.TenantID,
		Period:        invoice.Period{Month: m.Month, Year: m.Year},
		AmountDue:     m.AmountDue,
		DaysOverdue:   m.DaysOverdue,
		Severity:      reminder.Severity(m.Severity),
		Status:        reminder.Status(m.Status),
		Message:       m.Message,
		LastSentAt:    m.LastSentAt,
	}
}

// ReminderModelFromDomain creates a new persistence model from a domain Reminder
func ReminderModelFromDomain(r *reminder.Reminder) *ReminderModel {
	m := &ReminderModel{
		InvoiceID:     r.InvoiceID,
		InvoiceNumber: r.InvoiceNumber,
		PropertyID:    r.PropertyID,
		UnitID:        r.UnitID,
		TenantID:      r.TenantID,
		Month:         r.Period.Month,
		Year:          r.Period.Year,
		AmountDue:     r.AmountDue,
		DaysOverdue:   r.DaysOverdue,
		Severity:      string(r.Severity),
		Status:        string(r.Status),
		Message:       r.Message,
		LastSentAt:    r.LastSentAt,
	}
	m.SetEntity(r.BaseEntity)
	return m
}
