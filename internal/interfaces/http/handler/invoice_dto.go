package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest is the body of POST /invoices/payments
type RecordPaymentRequest struct {
	UnitID           uuid.UUID              `json:"unit_id" binding:"required"`
	TenantID         uuid.UUID              `json:"tenant_id" binding:"required"`
	Month            int                    `json:"month" binding:"min=0,max=12"`
	Year             int                    `json:"year" binding:"required,min=2000,max=2100"`
	PaymentMethod    invoice.PaymentMethod  `json:"payment_method" binding:"required,oneof=mpesa cash cheque bank_transfer"`
	Amount           *decimal.Decimal       `json:"amount"`
	ServiceCharges   invoice.ServiceCharges `json:"service_charges"`
	PaymentReference string                 `json:"payment_reference" binding:"max=100"`
	PhoneNumber      string                 `json:"phone_number" binding:"max=20"`
	PaymentDate      *time.Time             `json:"payment_date"`
}

// ListInvoicesRequest holds the query of GET /invoices
type ListInvoicesRequest struct {
	PropertyID string          `form:"property_id" binding:"omitempty,uuid"`
	TenantID   string          `form:"tenant_id" binding:"omitempty,uuid"`
	UnitID     string          `form:"unit_id" binding:"omitempty,uuid"`
	Month      *int            `form:"month" binding:"omitempty,min=0,max=12"`
	Year       *int            `form:"year" binding:"omitempty,min=2000,max=2100"`
	Status     *invoice.Status `form:"status" binding:"omitempty,oneof=draft issued paid cancelled refunded"`
	IsPaid     *bool           `form:"is_paid"`
	dto.PageRequest
}

// DisbursementResponse is the payout block of an invoice
type DisbursementResponse struct {
	IsDisbursed        bool            `json:"is_disbursed"`
	DisbursedAmount    decimal.Decimal `json:"disbursed_amount"`
	DisbursedBy        *uuid.UUID      `json:"disbursed_by,omitempty"`
	DisbursedDate      *time.Time      `json:"disbursed_date,omitempty"`
	Method             string          `json:"method,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	ServiceFeeAmount   decimal.Decimal `json:"service_fee_amount"`
	NetDisbursedAmount decimal.Decimal `json:"net_disbursed_amount"`
}

// InvoiceResponse is the API view of a rent invoice
type InvoiceResponse struct {
	ID                    uuid.UUID              `json:"id"`
	InvoiceNumber         string                 `json:"invoice_number"`
	ReceiptNumber         string                 `json:"receipt_number,omitempty"`
	Type                  invoice.Type           `json:"type"`
	PropertyID            uuid.UUID              `json:"property_id"`
	UnitID                uuid.UUID              `json:"unit_id"`
	TenantID              uuid.UUID              `json:"tenant_id"`
	Month                 int                    `json:"month"`
	Year                  int                    `json:"year"`
	LeaseStart            *time.Time             `json:"lease_start,omitempty"`
	Amount                decimal.Decimal        `json:"amount"`
	ServiceCharges        invoice.ServiceCharges `json:"service_charges"`
	TotalServiceCharges   decimal.Decimal        `json:"total_service_charges"`
	TotalAmount           decimal.Decimal        `json:"total_amount"`
	PaymentMethod         invoice.PaymentMethod  `json:"payment_method,omitempty"`
	PaymentReference      string                 `json:"payment_reference,omitempty"`
	PhoneNumber           string                 `json:"phone_number,omitempty"`
	IsPaid                bool                   `json:"is_paid"`
	PaymentDate           *time.Time             `json:"payment_date,omitempty"`
	DueDate               time.Time              `json:"due_date"`
	IsLate                bool                   `json:"is_late"`
	LastReminderDate      *time.Time             `json:"last_reminder_date,omitempty"`
	Status                invoice.Status         `json:"status"`
	Disbursement          DisbursementResponse   `json:"disbursement"`
	IsOwnerOccupied       bool                   `json:"is_owner_occupied"`
	OwnerServiceFeeAmount decimal.Decimal        `json:"owner_service_fee_amount"`
	RentOnlyAmount        decimal.Decimal        `json:"rent_only_amount"`
	CancelledBy           *uuid.UUID             `json:"cancelled_by,omitempty"`
	CancelledAt           *time.Time             `json:"cancelled_at,omitempty"`
	Version               int                    `json:"version"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// optionalUUID parses an already validated query value
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func toInvoiceResponse(inv *invoice.Invoice) InvoiceResponse {
	d := inv.Disbursement
	return InvoiceResponse{
		ID:                  inv.ID,
		InvoiceNumber:       inv.InvoiceNumber,
		ReceiptNumber:       inv.ReceiptNumber,
		Type:                inv.Type,
		PropertyID:          inv.PropertyID,
		UnitID:              inv.UnitID,
		TenantID:            inv.TenantID,
		Month:               inv.Period.Month,
		Year:                inv.Period.Year,
		LeaseStart:          inv.LeaseStart,
		Amount:              inv.Amount,
		ServiceCharges:      inv.ServiceCharges,
		TotalServiceCharges: inv.TotalServiceCharges,
		TotalAmount:         inv.TotalAmount,
		PaymentMethod:       inv.PaymentMethod,
		PaymentReference:    inv.PaymentReference,
		PhoneNumber:         inv.PhoneNumber,
		IsPaid:              inv.IsPaid,
		PaymentDate:         inv.PaymentDate,
		DueDate:             inv.DueDate,
		IsLate:              inv.IsLate,
		LastReminderDate:    inv.LastReminderDate,
		Status:              inv.Status,
		Disbursement: DisbursementResponse{
			IsDisbursed:        d.IsDisbursed,
			DisbursedAmount:    d.DisbursedAmount,
			DisbursedBy:        d.DisbursedBy,
			DisbursedDate:      d.DisbursedDate,
			Method:             d.Method,
			Reference:          d.Reference,
			Notes:              d.Notes,
			ServiceFeeAmount:   d.ServiceFeeAmount,
			NetDisbursedAmount: d.NetDisbursedAmount,
		},
		IsOwnerOccupied:       inv.IsOwnerOccupied,
		OwnerServiceFeeAmount: inv.OwnerServiceFeeAmount,
		RentOnlyAmount:        inv.RentOnlyAmount,
		CancelledBy:           inv.CancelledBy,
		CancelledAt:           inv.CancelledAt,
		Version:               inv.Version,
		CreatedAt:             inv.CreatedAt,
		UpdatedAt:             inv.UpdatedAt,
	}
}

func toInvoiceResponses(items []invoice.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(items))
	for i := range items {
		out = append(out, toInvoiceResponse(&items[i]))
	}
	return out
}

// SummaryResponse aggregates an invoice listing
type SummaryResponse struct {
	Count            int64           `json:"count"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

// InvoiceListResponse is a page of invoices with its summary
type InvoiceListResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Summary  SummaryResponse   `json:"summary"`
}

// MarkDisbursedRequest is the body of POST /disbursements/:invoiceId
type MarkDisbursedRequest struct {
	PaymentDate *time.Time `json:"payment_date"`
	Method      string     `json:"method" binding:"required,max=50"`
	Reference   string     `json:"reference" binding:"max=100"`
	Notes       string     `json:"notes" binding:"max=500"`
}

// ReportRequest holds the query of the disbursement report endpoints
type ReportRequest struct {
	PropertyID string `form:"property_id" binding:"required,uuid"`
	Month      int    `form:"month" binding:"min=0,max=12"`
	Year       int    `form:"year" binding:"required,min=2000,max=2100"`
}

// ReportLineResponse is one row of a disbursement report
type ReportLineResponse struct {
	InvoiceID                    uuid.UUID       `json:"invoice_id"`
	InvoiceNumber                string          `json:"invoice_number"`
	UnitNumber                   string          `json:"unit_number"`
	UnitType                     string          `json:"unit_type"`
	FloorNumber                  int             `json:"floor_number"`
	TenantName                   string          `json:"tenant_name"`
	OwnerID                      *uuid.UUID      `json:"owner_id,omitempty"`
	OwnerName                    string          `json:"owner_name"`
	Status                       invoice.Status  `json:"status"`
	IsPaid                       bool            `json:"is_paid"`
	IsOwnerOccupied              bool            `json:"is_owner_occupied"`
	RentOnlyAmount               decimal.Decimal `json:"rent_only_amount"`
	TotalServiceCharges          decimal.Decimal `json:"total_service_charges"`
	TotalAmount                  decimal.Decimal `json:"total_amount"`
	ServiceFeePerMonth           decimal.Decimal `json:"service_fee_per_month"`
	DisbursableAmount            decimal.Decimal `json:"disbursable_amount"`
	UndisbursedDisbursableAmount decimal.Decimal `json:"undisbursed_disbursable_amount"`
	IsDisbursed                  bool            `json:"is_disbursed"`
	DisbursedAmount              decimal.Decimal `json:"disbursed_amount"`
	DisbursedDate                *time.Time      `json:"disbursed_date,omitempty"`
}

// ReportTotalsResponse sums a disbursement report
type ReportTotalsResponse struct {
	CollectedRent           decimal.Decimal `json:"collected_rent"`
	CollectedServiceCharges decimal.Decimal `json:"collected_service_charges"`
	TotalDisbursed          decimal.Decimal `json:"total_disbursed"`
	TotalUndisbursed        decimal.Decimal `json:"total_undisbursed"`
}

// ReportResponse is the disbursement report of a property and period
type ReportResponse struct {
	PropertyID uuid.UUID            `json:"property_id"`
	Month      int                  `json:"month"`
	Year       int                  `json:"year"`
	Lines      []ReportLineResponse `json:"lines"`
	Totals     ReportTotalsResponse `json:"totals"`
}

func toReportResponse(r *invoice.Report) ReportResponse {
	lines := make([]ReportLineResponse, 0, len(r.Lines))
	for _, l := range r.Lines {
		inv := l.Invoice
		lines = append(lines, ReportLineResponse{
			InvoiceID:                    inv.ID,
			InvoiceNumber:                inv.InvoiceNumber,
			UnitNumber:                   l.UnitNumber,
			UnitType:                     l.UnitType,
			FloorNumber:                  l.FloorNumber,
			TenantName:                   l.TenantName,
			OwnerID:                      l.OwnerID,
			OwnerName:                    l.OwnerName,
			Status:                       inv.Status,
			IsPaid:                       inv.IsPaid,
			IsOwnerOccupied:              inv.IsOwnerOccupied,
			RentOnlyAmount:               inv.RentOnlyAmount,
			TotalServiceCharges:          inv.TotalServiceCharges,
			TotalAmount:                  inv.TotalAmount,
			ServiceFeePerMonth:           l.ServiceFeePerMonth,
			DisbursableAmount:            l.DisbursableAmount,
			UndisbursedDisbursableAmount: l.UndisbursedDisbursableAmount,
			IsDisbursed:                  inv.Disbursement.IsDisbursed,
			DisbursedAmount:              inv.Disbursement.DisbursedAmount,
			DisbursedDate:                inv.Disbursement.DisbursedDate,
		})
	}
	return ReportResponse{
		PropertyID: r.PropertyID,
		Month:      r.Period.Month,
		Year:       r.Period.Year,
		Lines:      lines,
		Totals: ReportTotalsResponse{
			CollectedRent:           r.Totals.CollectedRent,
			CollectedServiceCharges: r.Totals.CollectedServiceCharges,
			TotalDisbursed:          r.Totals.TotalDisbursed,
			TotalUndisbursed:        r.Totals.TotalUndisbursed,
		},
	}
}

// ListRemindersRequest holds the query of GET /reminders
type ListRemindersRequest struct {
	PropertyID string             `form:"property_id" binding:"omitempty,uuid"`
	Month      *int               `form:"month" binding:"omitempty,min=0,max=12"`
	Year       *int               `form:"year" binding:"omitempty,min=2000,max=2100"`
	Severity   *reminder.Severity `form:"severity" binding:"omitempty,oneof=low medium high critical"`
	dto.PageRequest
}

// ReminderResponse is the API view of a payment reminder
type ReminderResponse struct {
	ID            uuid.UUID         `json:"id"`
	InvoiceID     uuid.UUID         `json:"invoice_id"`
	InvoiceNumber string            `json:"invoice_number"`
	PropertyID    uuid.UUID         `json:"property_id"`
	UnitID        uuid.UUID         `json:"unit_id"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	Month         int               `json:"month"`
	Year          int               `json:"year"`
	AmountDue     decimal.Decimal   `json:"amount_due"`
	DaysOverdue   int               `json:"days_overdue"`
	Severity      reminder.Severity `json:"severity"`
	Status        reminder.Status   `json:"status"`
	Message       string            `json:"message"`
	LastSentAt    time.Time         `json:"last_sent_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toReminderResponses(items []reminder.Reminder) []ReminderResponse {
	out := make([]ReminderResponse, 0, len(items))
	for _, r := range items {
		out = append(out, ReminderResponse{
			ID:            r.ID,
			InvoiceID:     r.InvoiceID,
			InvoiceNumber: r.InvoiceNumber,
			PropertyID:    r.PropertyID,
			UnitID:        r.UnitID,
			TenantID:      r.TenantID,
			Month:         r.Period.Month,
			Year:          r.Period.Year,
			AmountDue:     r.AmountDue,
			DaysOverdue:   r.DaysOverdue,
			Severity:      r.Severity,
			Status:        r.Status,
			Message:       r.Message,
			LastSentAt:    r.LastSentAt,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out
}
