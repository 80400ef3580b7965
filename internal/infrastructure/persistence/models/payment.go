package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// MpesaTransactionModel is the persistence model for an STK push transaction.
type MpesaTransactionModel struct {
	AggregateModel
	CheckoutRequestID string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	MerchantRequestID string          `gorm:"type:varchar(100)"`
	TransactionType   string          `gorm:"type:varchar(20);not null"`
	InvoiceID         *uuid.UUID      `gorm:"type:uuid;index"`
	BillingInvoiceID  *uuid.UUID      `gorm:"type:uuid;index"`
	PropertyID        *uuid.UUID      `gorm:"type:uuid"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PhoneNumber       string          `gorm:"type:varchar(20);not null"`
	AccountReference  string          `gorm:"type:varchar(50);not null"`
	Description       string          `gorm:"type:varchar(200)"`
	Status            string          `gorm:"type:varchar(20);not null;index"`
	ResultCode        *int            `gorm:"column:result_code"`
	ResultDesc        *string         `gorm:"type:text"`
	ReceiptNumber     string          `gorm:"type:varchar(50)"`
	TransactionDate   *time.Time      `gorm:"column:transaction_date"`
	InitiatedBy       *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (MpesaTransactionModel) TableName() string {
	return "mpesa_transactions"
}

// ToDomain converts the persistence model to a domain Transaction
func (m *MpesaTransactionModel) ToDomain() *payment.Transaction {
	return &payment.Transaction{
		BaseAggregateRoot: m.Aggregate(),
		CheckoutRequestID: m.CheckoutRequestID,
		MerchantRequestID: m.MerchantRequestID,
		TransactionType:   payment.TransactionType(m.TransactionType),
		InvoiceID:         m.InvoiceID,
		BillingInvoiceID:  m.BillingInvoiceID,
		PropertyID:        m.PropertyID,
		Amount:            m.Amount,
		PhoneNumber:       m.PhoneNumber,
		AccountReference:  m.AccountReference,
		Description:       m.Description,
		Status:            payment.Status(m.Status),
		ResultCode:        m.ResultCode,
		ResultDesc:        m.ResultDesc,
		ReceiptNumber:     m.ReceiptNumber,
		TransactionDate:   m.TransactionDate,
		InitiatedBy:       m.InitiatedBy,
	}
}

// MpesaTransactionModelFromDomain creates a new persistence model from a domain Transaction
func MpesaTransactionModelFromDomain(t *payment.Transaction) *MpesaTransactionModel {
	m := &MpesaTransactionModel{
		CheckoutRequestID: t.CheckoutRequestID,
		MerchantRequestID: t.MerchantRequestID,
		TransactionType:   string(t.TransactionType),
		InvoiceID:         t.InvoiceID,
		BillingInvoiceID:  t.BillingInvoiceID,
		PropertyID:        t.PropertyID,
		Amount:            t.Amount,
		PhoneNumber:       t.PhoneNumber,
		AccountReference:  t.AccountReference,
		Description:       t.Description,
		Status:            string(t.Status),
		ResultCode:        t.ResultCode,
		ResultDesc:        t.ResultDesc,
		ReceiptNumber:     t.ReceiptNumber,
		TransactionDate:   t.TransactionDate,
		InitiatedBy:       t.InitiatedBy,
	}
	m.SetAggregate(t.BaseAggregateRoot)
	return m
}
