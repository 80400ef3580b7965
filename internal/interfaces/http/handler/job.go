package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
)

// InvoiceGenerator runs the monthly invoice generation
type InvoiceGenerator interface {
	RunCurrent(ctx context.Context, triggeredBy string) *invoiceapp.GenerateResult
}

// ReminderService runs and lists payment reminders
type ReminderService interface {
	Run(ctx context.Context, triggeredBy string) *invoiceapp.ReminderResult
	List(ctx context.Context, p identity.Principal, q invoiceapp.ListRemindersQuery) (shared.Paginated[reminder.Reminder], error)
}

// manualTrigger tags a batch run started over HTTP
func manualTrigger(p identity.Principal) string {
	return "manual:" + p.UserID.String()
}

// JobHandler exposes manual triggers for the batch jobs and the reminder listing
type JobHandler struct {
	BaseHandler
	generator InvoiceGenerator
	reminders ReminderService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(generator InvoiceGenerator, reminders ReminderService) *JobHandler {
	return &JobHandler{generator: generator, reminders: reminders}
}

// GenerateMonthlyInvoices runs the generator for the current month.
// Per-unit failures are reported in the result, not as an HTTP error.
func (h *JobHandler) GenerateMonthlyInvoices(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	h.Success(c, h.generator.RunCurrent(c.Request.Context(), manualTrigger(p)))
}

// SendReminders runs the reminder generator
func (h *JobHandler) SendReminders(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	h.Success(c, h.reminders.Run(c.Request.Context(), manualTrigger(p)))
}

// ListReminders returns a filtered page of reminders
func (h *JobHandler) ListReminders(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req ListRemindersRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.reminders.List(c.Request.Context(), p, invoiceapp.ListRemindersQuery{
		PropertyID: optionalUUID(req.PropertyID),
		Month:      req.Month,
		Year:       req.Year,
		Severity:   req.Severity,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toReminderResponses(page.Items), page.Total, page.Page, page.PageSize)
}
