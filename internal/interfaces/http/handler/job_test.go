package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupJobRouter(gen *mockGenerator, rem *mockReminderService) http.Handler {
	h := NewJobHandler(gen, rem)
	r := newTestRouter(&adminPrincipal)
	r.POST("/jobs/generate-invoices", h.GenerateMonthlyInvoices)
	r.POST("/jobs/send-reminders", h.SendReminders)
	r.GET("/reminders", h.ListReminders)
	return r
}

func TestJobHandler_GenerateMonthlyInvoices(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("RunCurrent", mock.Anything, "manual:"+adminPrincipal.UserID.String()).Return(&invoiceapp.GenerateResult{
		Period:     invoice.Period{Month: 3, Year: 2025},
		Candidates: 12,
		Created:    10,
		Errors:     1,
		Skipped:    map[string]int{"already_exists": 1},
		Success:    true,
	})

	w := doRequest(setupJobRouter(gen, new(mockReminderService)), http.MethodPost, "/jobs/generate-invoices", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, decodeResponse(t, w))
	assert.Equal(t, float64(10), data["created"])
	assert.Equal(t, float64(1), data["errors"])
	assert.Equal(t, true, data["success"])
	gen.AssertExpectations(t)
}

func TestJobHandler_GenerateReportsFailureInBody(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("RunCurrent", mock.Anything, mock.Anything).Return(&invoiceapp.GenerateResult{
		Period: invoice.Period{Month: 3, Year: 2025},
		Error:  "database unavailable",
	})

	w := doRequest(setupJobRouter(gen, new(mockReminderService)), http.MethodPost, "/jobs/generate-invoices", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decodeResponse(t, w))
	assert.Equal(t, false, data["success"])
	assert.Equal(t, "database unavailable", data["error"])
}

func TestJobHandler_SendReminders(t *testing.T) {
	rem := new(mockReminderService)
	rem.On("Run", mock.Anything, "manual:"+adminPrincipal.UserID.String()).Return(&invoiceapp.ReminderResult{
		Period:      invoice.Period{Month: 2, Year: 2025},
		Ran:         true,
		DaysOverdue: 5,
		Candidates:  4,
		Created:     3,
		Updated:     1,
		Success:     true,
	})

	w := doRequest(setupJobRouter(new(mockGenerator), rem), http.MethodPost, "/jobs/send-reminders", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decodeResponse(t, w))
	assert.Equal(t, float64(3), data["created"])
	assert.Equal(t, float64(5), data["days_overdue"])
	rem.AssertExpectations(t)
}

func TestJobHandler_ListReminders(t *testing.T) {
	rem := new(mockReminderService)
	propertyID := uuid.New()
	high := reminder.SeverityHigh
	item := reminder.Reminder{
		BaseEntity:    shared.NewBaseEntity(),
		InvoiceID:     uuid.New(),
		InvoiceNumber: "SUN-2502-001-1234",
		PropertyID:    propertyID,
		Period:        invoice.Period{Month: 2, Year: 2025},
		AmountDue:     decimal.NewFromInt(22000),
		DaysOverdue:   35,
		Severity:      reminder.SeverityHigh,
		Status:        reminder.StatusActive,
		LastSentAt:    time.Date(2025, 4, 4, 0, 0, 0, 0, time.UTC),
	}
	rem.On("List", mock.Anything, adminPrincipal, invoiceapp.ListRemindersQuery{
		PropertyID: &propertyID,
		Severity:   &high,
	}).Return(shared.NewPaginated([]reminder.Reminder{item}, 1, 1, 20), nil)

	w := doRequest(setupJobRouter(new(mockGenerator), rem), http.MethodGet,
		"/reminders?property_id="+propertyID.String()+"&severity=high", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	got := items[0].(map[string]any)
	assert.Equal(t, "high", got["severity"])
	assert.Equal(t, "22000", got["amount_due"])
	assert.Equal(t, float64(2), got["month"])
	rem.AssertExpectations(t)
}

func TestJobHandler_ListRemindersRejectsSeverity(t *testing.T) {
	rem := new(mockReminderService)

	w := doRequest(setupJobRouter(new(mockGenerator), rem), http.MethodGet, "/reminders?severity=urgent", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rem.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}
