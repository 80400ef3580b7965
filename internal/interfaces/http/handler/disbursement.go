package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/infrastructure/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DisbursementService is the owner payout service used by the disbursement routes
type DisbursementService interface {
	MarkDisbursed(ctx context.Context, p identity.Principal, cmd invoiceapp.MarkDisbursedCommand) (*invoice.Invoice, error)
	Report(ctx context.Context, p identity.Principal, propertyID uuid.UUID, month, year int) (*invoice.Report, error)
}

// PropertyLookup resolves a property for naming exports
type PropertyLookup interface {
	PropertyByID(ctx context.Context, id uuid.UUID) (*property.Property, error)
}

// DisbursementHandler handles owner payout endpoints
type DisbursementHandler struct {
	BaseHandler
	service    DisbursementService
	properties PropertyLookup
}

// NewDisbursementHandler creates a new DisbursementHandler
func NewDisbursementHandler(service DisbursementService, properties PropertyLookup) *DisbursementHandler {
	return &DisbursementHandler{service: service, properties: properties}
}

// Report returns the disbursement report of a property and period.
// GET /disbursements?property_id=&month=&year=
func (h *DisbursementHandler) Report(c *gin.Context) {
	report, ok := h.report(c)
	if !ok {
		return
	}
	h.Success(c, toReportResponse(report))
}

// Export streams the disbursement report as an XLSX workbook
func (h *DisbursementHandler) Export(c *gin.Context) {
	report, ok := h.report(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteDisbursementReport(&buf, report); err != nil {
		h.HandleError(c, fmt.Errorf("write disbursement workbook: %w", err))
		return
	}

	name := report.PropertyID.String()
	if prop, err := h.properties.PropertyByID(c.Request.Context(), report.PropertyID); err == nil {
		name = prop.Name
	}
	filename := export.DisbursementFilename(name, report.Period)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *DisbursementHandler) report(c *gin.Context) (*invoice.Report, bool) {
	p, ok := h.principal(c)
	if !ok {
		return nil, false
	}
	var req ReportRequest
	if !h.bindQuery(c, &req) {
		return nil, false
	}
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		h.BadRequest(c, "Invalid property_id")
		return nil, false
	}

	report, err := h.service.Report(c.Request.Context(), p, propertyID, req.Month, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return report, true
}

// MarkDisbursed records the payout of a paid invoice.
// POST /disbursements/:invoiceId
func (h *DisbursementHandler) MarkDisbursed(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "invoiceId")
	if !ok {
		return
	}
	var req MarkDisbursedRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := invoiceapp.MarkDisbursedCommand{
		InvoiceID: id,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if req.PaymentDate != nil {
		cmd.PaymentDate = *req.PaymentDate
	}

	inv, err := h.service.MarkDisbursed(c.Request.Context(), p, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInvoiceResponse(inv))
}
