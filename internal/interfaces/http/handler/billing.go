package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/propledger/backend/internal/application/billing"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/shared"
)

// BillingService is the developer billing engine used by the billing routes
type BillingService interface {
	EnsureForNewProperty(ctx context.Context, p identity.Principal, cmd billingapp.EnsurePropertyCommand) (*billingapp.EnsureResult, error)
	RegenerateYear(ctx context.Context, year int, force bool, triggeredBy string) *billingapp.RegenerateResult
	ChangeRate(ctx context.Context, p identity.Principal, cmd billingapp.ChangeRateCommand) (*billingapp.ChangeRateResult, error)
	GetAccount(ctx context.Context, p identity.Principal, developerID uuid.UUID) (*billing.Account, error)
	ListInvoices(ctx context.Context, p identity.Principal, q billingapp.ListInvoicesQuery) (shared.Paginated[billingapp.InvoiceView], error)
}

// BillingHandler handles developer platform billing endpoints
type BillingHandler struct {
	BaseHandler
	service BillingService
	now     func() time.Time
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(service BillingService) *BillingHandler {
	return &BillingHandler{service: service, now: time.Now}
}

// GetAccount returns a developer's billing account
func (h *BillingHandler) GetAccount(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "developerId")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(c.Request.Context(), p, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAccountResponse(account))
}

// ListInvoices returns a page of billing invoices
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req ListBillingInvoicesRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.service.ListInvoices(c.Request.Context(), p, billingapp.ListInvoicesQuery{
		DeveloperID: optionalUUID(req.DeveloperID),
		Year:        req.Year,
		Month:       req.Month,
		IsPaid:      req.IsPaid,
		Page:        req.Page,
		PageSize:    req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toBillingInvoiceResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// EnsureProperty bills a newly activated property for the rest of the year
func (h *BillingHandler) EnsureProperty(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req EnsurePropertyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.EnsureForNewProperty(c.Request.Context(), p, billingapp.EnsurePropertyCommand{
		DeveloperID:  req.DeveloperID,
		PropertyID:   req.PropertyID,
		PropertyName: req.PropertyName,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Regenerate rebuilds the billing invoices of a year. Outside January the
// run only proceeds with force.
func (h *BillingHandler) Regenerate(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req RegenerateRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	if req.Year == 0 {
		req.Year = h.now().Year()
	}

	result := h.service.RegenerateYear(c.Request.Context(), req.Year, req.Force, manualTrigger(p))
	h.Success(c, result)
}

// ChangeRate sets a new platform rate.
// PUT /billing/rate
func (h *BillingHandler) ChangeRate(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req ChangeRateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.ChangeRate(c.Request.Context(), p, billingapp.ChangeRateCommand{
		Amount:        req.Amount,
		EffectiveFrom: req.EffectiveFrom,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
