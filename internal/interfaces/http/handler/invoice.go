package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
)

// InvoiceService is the part of the payment service the invoice routes use
type InvoiceService interface {
	RecordPayment(ctx context.Context, p identity.Principal, cmd invoiceapp.RecordPaymentCommand) (*invoice.Invoice, error)
	Cancel(ctx context.Context, p identity.Principal, invoiceID uuid.UUID) (*invoice.Invoice, error)
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*invoice.Invoice, error)
	List(ctx context.Context, p identity.Principal, q invoiceapp.ListInvoicesQuery) (*invoiceapp.InvoiceListResult, error)
}

// InvoiceHandler handles the tenant invoice ledger endpoints
type InvoiceHandler struct {
	BaseHandler
	service InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// RecordPayment creates or settles the invoice of a unit and period.
// POST /invoices/payments
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	inv, err := h.service.RecordPayment(c.Request.Context(), p, invoiceapp.RecordPaymentCommand{
		UnitID:           req.UnitID,
		TenantID:         req.TenantID,
		Month:            req.Month,
		Year:             req.Year,
		PaymentMethod:    req.PaymentMethod,
		Amount:           req.Amount,
		ServiceCharges:   req.ServiceCharges,
		PaymentReference: req.PaymentReference,
		PhoneNumber:      req.PhoneNumber,
		PaymentDate:      req.PaymentDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toInvoiceResponse(inv))
}

// Cancel invalidates a paid invoice.
// POST /invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Cancel(c.Request.Context(), p, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInvoiceResponse(inv))
}

// Get returns one invoice
func (h *InvoiceHandler) Get(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Get(c.Request.Context(), p, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInvoiceResponse(inv))
}

// List returns a filtered page of invoices with the listing summary
func (h *InvoiceHandler) List(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req ListInvoicesRequest
	if !h.bindQuery(c, &req) {
		return
	}

	result, err := h.service.List(c.Request.Context(), p, invoiceapp.ListInvoicesQuery{
		PropertyID: optionalUUID(req.PropertyID),
		TenantID:   optionalUUID(req.TenantID),
		UnitID:     optionalUUID(req.UnitID),
		Month:      req.Month,
		Year:       req.Year,
		Status:     req.Status,
		IsPaid:     req.IsPaid,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, InvoiceListResponse{
		Invoices: toInvoiceResponses(result.Items),
		Summary: SummaryResponse{
			Count:            result.Summary.Count,
			TotalBilled:      result.Summary.TotalBilled,
			TotalPaid:        result.Summary.TotalPaid,
			TotalOutstanding: result.Summary.TotalOutstanding,
		},
	}, result.Total, result.Page, result.PageSize)
}
