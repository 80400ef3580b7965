package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the rent Invoice aggregate root.
// The partial unique indexes keep at most one non-cancelled monthly invoice
// per unit and period, and one non-cancelled lease invoice per tenant lease.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber         string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	ReceiptNumber         string                 `gorm:"type:varchar(80)"`
	InvoiceType           string                 `gorm:"type:varchar(20);not null;default:'tenant_rent'"`
	PropertyID            uuid.UUID              `gorm:"type:uuid;not null;index:idx_invoice_property_period,priority:1"`
	UnitID                uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_unit_period_active,priority:1,where:status <> 'cancelled' AND month <> 0"`
	TenantID              uuid.UUID              `gorm:"type:uuid;not null;index;uniqueIndex:idx_invoice_tenant_lease_active,priority:1,where:status <> 'cancelled' AND month = 0"`
	Month                 int                    `gorm:"not null;uniqueIndex:idx_invoice_unit_period_active,priority:2,where:status <> 'cancelled' AND month <> 0;index:idx_invoice_property_period,priority:3"`
	Year                  int                    `gorm:"not null;uniqueIndex:idx_invoice_unit_period_active,priority:3,where:status <> 'cancelled' AND month <> 0;index:idx_invoice_property_period,priority:2"`
	LeaseStart            *time.Time             `gorm:"column:lease_start;uniqueIndex:idx_invoice_tenant_lease_active,priority:2,where:status <> 'cancelled' AND month = 0"`
	Amount                decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	ServiceCharges        invoice.ServiceCharges `gorm:"type:jsonb;not null;default:'[]'"`
	TotalServiceCharges   decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount           decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentMethod         string                 `gorm:"type:varchar(20)"`
	PaymentReference      string                 `gorm:"type:varchar(100)"`
	PhoneNumber           string                 `gorm:"type:varchar(20)"`
	IsPaid                bool                   `gorm:"not null;default:false"`
	PaymentDate           *time.Time             `gorm:"column:payment_date"`
	DueDate               time.Time              `gorm:"not null"`
	IsLate                bool                   `gorm:"not null;default:false"`
	LastReminderDate      *time.Time             `gorm:"column:last_reminder_date"`
	Status                string                 `gorm:"type:varchar(20);not null;index"`
	IsDisbursed           bool                   `gorm:"not null;default:false"`
	DisbursedAmount       decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	DisbursedBy           *uuid.UUID             `gorm:"type:uuid"`
	DisbursedDate         *time.Time             `gorm:"column:disbursed_date"`
	DisbursementMethod    string                 `gorm:"type:varchar(30)"`
	DisbursementReference string                 `gorm:"type:varchar(100)"`
	DisbursementNotes     string                 `gorm:"type:text"`
	ServiceFeeAmount      decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	NetDisbursedAmount    decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	IsOwnerOccupied       bool                   `gorm:"not null;default:false"`
	OwnerServiceFeeAmount decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	RentOnlyAmount        decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	CancelledBy           *uuid.UUID             `gorm:"type:uuid"`
	CancelledAt           *time.Time             `gorm:"column:cancelled_at"`
	CreatedBy             *uuid.UUID             `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *invoice.Invoice {
	charges := m.ServiceCharges
	if charges == nil {
		charges = invoice.ServiceCharges{}
	}
	return &invoice.Invoice{
		BaseAggregateRoot:   m.Aggregate(),
		InvoiceNumber:       m.InvoiceNumber,
		ReceiptNumber:       m.ReceiptNumber,
		Type:                invoice.Type(m.InvoiceType),
		PropertyID:          m.PropertyID,
		UnitID:              m.UnitID,
		TenantID:            m.TenantID,
		Period:              invoice.Period{Month: m.Month, Year: m.Year},
		LeaseStart:          m.LeaseStart,
		Amount:              m.Amount,
		ServiceCharges:      charges,
		TotalServiceCharges: m.TotalServiceCharges,
		TotalAmount:         m.TotalAmount,
		PaymentMethod:       invoice.PaymentMethod(m.PaymentMethod),
		PaymentReference:    m.PaymentReference,
		PhoneNumber:         m.PhoneNumber,
		IsPaid:              m.IsPaid,
		PaymentDate:         m.PaymentDate,
		DueDate:             m.DueDate,
		IsLate:              m.IsLate,
		LastReminderDate:    m.LastReminderDate,
		Status:              invoice.Status(m.Status),
		Disbursement: invoice.Disbursement{
			IsDisbursed:        m.IsDisbursed,
			DisbursedAmount:    m.DisbursedAmount,
			DisbursedBy:        m.DisbursedBy,
			DisbursedDate:      m.DisbursedDate,
			Method:             m.DisbursementMethod,
			Reference:          m.DisbursementReference,
			Notes:              m.DisbursementNotes,
			ServiceFeeAmount:   m.ServiceFeeAmount,
			NetDisbursedAmount: m.NetDisbursedAmount,
		},
		IsOwnerOccupied:       m.IsOwnerOccupied,
		OwnerServiceFeeAmount: m.OwnerServiceFeeAmount,
		RentOnlyAmount:        m.RentOnlyAmount,
		CancelledBy:           m.CancelledBy,
		CancelledAt:           m.CancelledAt,
		CreatedBy:             m.CreatedBy,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(i *invoice.Invoice) {
	m.SetAggregate(i.BaseAggregateRoot)
	m.InvoiceNumber = i.InvoiceNumber
	m.ReceiptNumber = i.ReceiptNumber
	m.InvoiceType = string(i.Type)
	m.PropertyID = i.PropertyID
	m.UnitID = i.UnitID
	m.TenantID = i.TenantID
	m.Month = i.Period.Month
	m.Year = i.Period.Year
	m.LeaseStart = i.LeaseStart
	m.Amount = i.Amount
	m.ServiceCharges = i.ServiceCharges
	m.TotalServiceCharges = i.TotalServiceCharges
	m.TotalAmount = i.TotalAmount
	m.PaymentMethod = string(i.PaymentMethod)
	m.PaymentReference = i.PaymentReference
	m.PhoneNumber = i.PhoneNumber
	m.IsPaid = i.IsPaid
	m.PaymentDate = i.PaymentDate
	m.DueDate = i.DueDate
	m.IsLate = i.IsLate
	m.LastReminderDate = i.LastReminderDate
	m.Status = string(i.Status)
	m.IsDisbursed = i.Disbursement.IsDisbursed
	m.DisbursedAmount = i.Disbursement.DisbursedAmount
	m.DisbursedBy = i.Disbursement.DisbursedBy
	m.DisbursedDate = i.Disbursement.DisbursedDate
	m.DisbursementMethod = i.Disbursement.Method
	m.DisbursementReference = i.Disbursement.Reference
	m.DisbursementNotes = i.Disbursement.Notes
	m.ServiceFeeAmount = i.Disbursement.ServiceFeeAmount
	m.NetDisbursedAmount = i.Disbursement.NetDisbursedAmount
	m.IsOwnerOccupied = i.IsOwnerOccupied
	m.OwnerServiceFeeAmount = i.OwnerServiceFeeAmount
	m.RentOnlyAmount = i.RentOnlyAmount
	m.CancelledBy = i.CancelledBy
	m.CancelledAt = i.CancelledAt
	m.CreatedBy = i.CreatedBy
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(i *invoice.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(i)
	return m
}
