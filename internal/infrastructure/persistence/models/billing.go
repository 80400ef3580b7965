package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// BillingAccountModel is the persistence model for a developer billing account.
type BillingAccountModel struct {
	AggregateModel
	DeveloperID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	DeveloperName    string          `gorm:"type:varchar(200)"`
	DeveloperEmail   string          `gorm:"type:varchar(200)"`
	DeveloperPhone   string          `gorm:"type:varchar(20)"`
	FixedMonthlyRate decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AccountReference string          `gorm:"type:varchar(20);not null;uniqueIndex"`
	Currency         string          `gorm:"type:varchar(3);not null;default:'KES'"`
	IsActive         bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BillingAccountModel) TableName() string {
	return "billing_accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *BillingAccountModel) ToDomain() *billing.Account {
	return &billing.Account{
		BaseAggregateRoot: m.Aggregate(),
		DeveloperID:       m.DeveloperID,
		DeveloperName:     m.DeveloperName,
		DeveloperEmail:    m.DeveloperEmail,
		DeveloperPhone:    m.DeveloperPhone,
		FixedMonthlyRate:  m.FixedMonthlyRate,
		AccountReference:  m.AccountReference,
		Currency:          m.Currency,
		IsActive:          m.IsActive,
	}
}

// BillingAccountModelFromDomain creates a new persistence model from a domain Account
func BillingAccountModelFromDomain(a *billing.Account) *BillingAccountModel {
	m := &BillingAccountModel{
		DeveloperID:      a.DeveloperID,
		DeveloperName:    a.DeveloperName,
		DeveloperEmail:   a.DeveloperEmail,
		DeveloperPhone:   a.DeveloperPhone,
		FixedMonthlyRate: a.FixedMonthlyRate,
		AccountReference: a.AccountReference,
		Currency:         a.Currency,
		IsActive:         a.IsActive,
	}
	m.SetAggregate(a.BaseAggregateRoot)
	return m
}

// BillingInvoiceModel is the persistence model for a developer's monthly
// billing invoice.
type BillingInvoiceModel struct {
	AggregateModel
	InvoiceNumber    string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	AccountID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	DeveloperID      uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_billing_invoice_dev_month,priority:1"`
	DeveloperName    string                `gorm:"type:varchar(200)"`
	Year             int                   `gorm:"not null;uniqueIndex:idx_billing_invoice_dev_month,priority:2"`
	Month            int                   `gorm:"not null;uniqueIndex:idx_billing_invoice_dev_month,priority:3"`
	Properties       billing.PropertyLines `gorm:"type:jsonb;not null;default:'[]'"`
	TotalAmount      decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	IsPaid           bool                  `gorm:"not null;default:false"`
	Status           string                `gorm:"type:varchar(20);not null"`
	DueDate          time.Time             `gorm:"not null"`
	PaidAt           *time.Time            `gorm:"column:paid_at"`
	PaymentReference string                `gorm:"type:varchar(100)"`
	PaymentMethod    string                `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (BillingInvoiceModel) TableName() string {
	return "billing_invoices"
}

// ToDomain converts the persistence model to a domain billing Invoice
func (m *BillingInvoiceModel) ToDomain() *billing.Invoice {
	lines := m.Properties
	if lines == nil {
		lines = billing.PropertyLines{}
	}
	return &billing.Invoice{
		BaseAggregateRoot: m.Aggregate(),
		InvoiceNumber:     m.InvoiceNumber,
		AccountID:         m.AccountID,
		DeveloperID:       m.DeveloperID,
		DeveloperName:     m.DeveloperName,
		Year:              m.Year,
		Month:             m.Month,
		Properties:        lines,
		TotalAmount:       m.TotalAmount,
		IsPaid:            m.IsPaid,
		Status:            billing.Status(m.Status),
		DueDate:           m.DueDate,
		PaidAt:            m.PaidAt,
		PaymentReference:  m.PaymentReference,
		PaymentMethod:     m.PaymentMethod,
	}
}

// BillingInvoiceModelFromDomain creates a new persistence model from a domain billing Invoice
func BillingInvoiceModelFromDomain(i *billing.Invoice) *BillingInvoiceModel {
	m := &BillingInvoiceModel{
		InvoiceNumber:    i.InvoiceNumber,
		AccountID:        i.AccountID,
		DeveloperID:      i.DeveloperID,
		DeveloperName:    i.DeveloperName,
		Year:             i.Year,
		Month:            i.Month,
		Properties:       i.Properties,
		TotalAmount:      i.TotalAmount,
		IsPaid:           i.IsPaid,
		Status:           string(i.Status),
		DueDate:          i.DueDate,
		PaidAt:           i.PaidAt,
		PaymentReference: i.PaymentReference,
		PaymentMethod:    i.PaymentMethod,
	}
	m.SetAggregate(i.BaseAggregateRoot)
	return m
}
