package handler

import (
	"time"

	"github.com/google/uuid"
	billingapp "github.com/propledger/backend/internal/application/billing"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// EnsurePropertyRequest is the body of POST /billing/properties
type EnsurePropertyRequest struct {
	DeveloperID  uuid.UUID `json:"developer_id" binding:"required"`
	PropertyID   uuid.UUID `json:"property_id" binding:"required"`
	PropertyName string    `json:"property_name" binding:"required,max=200"`
}

// RegenerateRequest is the body of POST /billing/regenerate. A zero year
// means the current year.
type RegenerateRequest struct {
	Year  int  `json:"year" binding:"omitempty,min=2000,max=2100"`
	Force bool `json:"force"`
}

// ChangeRateRequest is the body of PUT /billing/rate
type ChangeRateRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	EffectiveFrom *time.Time      `json:"effective_from"`
}

// ListBillingInvoicesRequest holds the query of GET /billing/invoices
type ListBillingInvoicesRequest struct {
	DeveloperID string `form:"developer_id" binding:"omitempty,uuid"`
	IsPaid      *bool  `form:"is_paid"`
	dto.PeriodQuery
	dto.PageRequest
}

// AccountResponse is the API view of a developer billing account
type AccountResponse struct {
	ID               uuid.UUID       `json:"id"`
	DeveloperID      uuid.UUID       `json:"developer_id"`
	DeveloperName    string          `json:"developer_name"`
	DeveloperEmail   string          `json:"developer_email,omitempty"`
	DeveloperPhone   string          `json:"developer_phone,omitempty"`
	FixedMonthlyRate decimal.Decimal `json:"fixed_monthly_rate"`
	AccountReference string          `json:"account_reference"`
	Currency         string          `json:"currency"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toAccountResponse(a *billing.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		DeveloperID:      a.DeveloperID,
		DeveloperName:    a.DeveloperName,
		DeveloperEmail:   a.DeveloperEmail,
		DeveloperPhone:   a.DeveloperPhone,
		FixedMonthlyRate: a.FixedMonthlyRate,
		AccountReference: a.AccountReference,
		Currency:         a.Currency,
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// BillingInvoiceResponse is the API view of a developer billing invoice.
// DisplayStatus reads overdue for unpaid invoices past their due date.
type BillingInvoiceResponse struct {
	ID               uuid.UUID             `json:"id"`
	InvoiceNumber    string                `json:"invoice_number"`
	AccountID        uuid.UUID             `json:"account_id"`
	DeveloperID      uuid.UUID             `json:"developer_id"`
	DeveloperName    string                `json:"developer_name"`
	Year             int                   `json:"year"`
	Month            int                   `json:"month"`
	Properties       billing.PropertyLines `json:"properties"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	IsPaid           bool                  `json:"is_paid"`
	Status           billing.Status        `json:"status"`
	DisplayStatus    billing.Status        `json:"display_status"`
	DueDate          time.Time             `json:"due_date"`
	PaidAt           *time.Time            `json:"paid_at,omitempty"`
	PaymentReference string                `json:"payment_reference,omitempty"`
	PaymentMethod    string                `json:"payment_method,omitempty"`
}

func toBillingInvoiceResponses(items []billingapp.InvoiceView) []BillingInvoiceResponse {
	out := make([]BillingInvoiceResponse, 0, len(items))
	for _, v := range items {
		out = append(out, BillingInvoiceResponse{
			ID:               v.ID,
			InvoiceNumber:    v.InvoiceNumber,
			AccountID:        v.AccountID,
			DeveloperID:      v.DeveloperID,
			DeveloperName:    v.DeveloperName,
			Year:             v.Year,
			Month:            v.Month,
			Properties:       v.Properties,
			TotalAmount:      v.TotalAmount,
			IsPaid:           v.IsPaid,
			Status:           v.Status,
			DisplayStatus:    v.DisplayStatus,
			DueDate:          v.DueDate,
			PaidAt:           v.PaidAt,
			PaymentReference: v.PaymentReference,
			PaymentMethod:    v.PaymentMethod,
		})
	}
	return out
}
