// Package notification turns ledger events into user notifications.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/notification"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Handler records and dispatches notifications for settled payments,
// cancellations, payouts and reminders. Delivery is best effort: failures
// are logged and never returned to the publisher.
type Handler struct {
	repo       notification.Repository
	dispatcher notification.Dispatcher
	reader     property.Reader
	logger     *zap.Logger
}

// NewHandler creates a new notification Handler
func NewHandler(repo notification.Repository, dispatcher notification.Dispatcher, reader property.Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:       repo,
		dispatcher: dispatcher,
		reader:     reader,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *Handler) EventTypes() []string {
	return []string{
		invoice.EventTypeInvoicePaid,
		invoice.EventTypeInvoiceCancelled,
		invoice.EventTypeInvoiceDisbursed,
		billing.EventTypeBillingInvoicePaid,
		reminder.EventTypeReminderIssued,
	}
}

// Handle builds the notifications for an event and hands them out
func (h *Handler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var (
		out []*notification.Notification
		err error
	)
	switch e := event.(type) {
	case *invoice.InvoicePaidEvent:
		out, err = h.paymentReceived(ctx, e)
	case *invoice.InvoiceCancelledEvent:
		out, err = h.invoiceCancelled(ctx, e)
	case *invoice.InvoiceDisbursedEvent:
		out, err = h.disbursementMade(ctx, e)
	case *billing.BillingInvoicePaidEvent:
		out = h.billingInvoicePaid(e)
	case *reminder.IssuedEvent:
		out, err = h.paymentReminder(ctx, e)
	default:
		return nil
	}
	if err != nil {
		h.logger.Warn("failed to resolve notification recipients",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Error(err),
		)
		return nil
	}

	for _, n := range out {
		h.deliver(ctx, n)
	}
	return nil
}

func (h *Handler) deliver(ctx context.Context, n *notification.Notification) {
	if err := h.repo.Create(ctx, n); err != nil {
		h.logger.Warn("failed to store notification",
			zap.String("kind", string(n.Kind)),
			zap.String("recipient_id", n.RecipientID.String()),
			zap.Error(err),
		)
		return
	}
	if h.dispatcher == nil {
		return
	}
	if err := h.dispatcher.Dispatch(ctx, n); err != nil {
		h.logger.Warn("failed to dispatch notification",
			zap.String("notification_id", n.ID.String()),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
}

// paymentReceived notifies the tenant, the developer and every caretaker
func (h *Handler) paymentReceived(ctx context.Context, e *invoice.InvoicePaidEvent) ([]*notification.Notification, error) {
	prop, err := h.reader.PropertyByID(ctx, e.ScopeID())
	if err != nil {
		return nil, fmt.Errorf("load property: %w", err)
	}
	tenant, err := h.reader.TenantByID(ctx, e.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}

	period := fmt.Sprintf("%s %d", e.Period.MonthName(), e.Period.Year)
	var out []*notification.Notification
	if tenant.UserID != nil {
		out = append(out, h.build(*tenant.UserID, notification.KindPaymentReceived, e,
			"Payment received",
			fmt.Sprintf("Your payment of KES %s for %s was received. Receipt %s.", e.TotalAmount.StringFixed(2), period, e.ReceiptNumber)))
	}

	staff := fmt.Sprintf("%s paid KES %s for %s at %s.", tenant.Name, e.TotalAmount.StringFixed(2), period, prop.Name)
	if e.IsLate {
		staff += " The payment was late."
	}
	for _, id := range recipients(prop.OwnedBy, prop.CaretakerIDs...) {
		out = append(out, h.build(id, notification.KindPaymentReceived, e, "Tenant payment received", staff))
	}
	return out, nil
}

func (h *Handler) invoiceCancelled(ctx context.Context, e *invoice.InvoiceCancelledEvent) ([]*notification.Notification, error) {
	prop, err := h.reader.PropertyByID(ctx, e.ScopeID())
	if err != nil {
		return nil, fmt.Errorf("load property: %w", err)
	}
	tenant, err := h.reader.TenantByID(ctx, e.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}

	var out []*notification.Notification
	if tenant.UserID != nil {
		out = append(out, h.build(*tenant.UserID, notification.KindInvoiceCancelled, e,
			"Invoice cancelled",
			fmt.Sprintf("Invoice %s has been cancelled.", e.InvoiceNumber)))
	}
	msg := fmt.Sprintf("Invoice %s for %s was cancelled.", e.InvoiceNumber, tenant.Name)
	if e.WasDisbursed {
		msg += " It had already been disbursed."
	}
	out = append(out, h.build(prop.OwnedBy, notification.KindInvoiceCancelled, e, "Invoice cancelled", msg))
	return out, nil
}

func (h *Handler) disbursementMade(ctx context.Context, e *invoice.InvoiceDisbursedEvent) ([]*notification.Notification, error) {
	prop, err := h.reader.PropertyByID(ctx, e.ScopeID())
	if err != nil {
		return nil, fmt.Errorf("load property: %w", err)
	}
	return []*notification.Notification{
		h.build(prop.OwnedBy, notification.KindDisbursementMade, e,
			"Disbursement made",
			fmt.Sprintf("KES %s for invoice %s at %s has been disbursed. Service fee KES %s.",
				e.NetDisbursedAmount.StringFixed(2), e.InvoiceNumber, prop.Name, e.ServiceFeeAmount.StringFixed(2))),
	}, nil
}

func (h *Handler) billingInvoicePaid(e *billing.BillingInvoicePaidEvent) []*notification.Notification {
	n := notification.New(e.ScopeID(), notification.KindBillingInvoicePaid,
		"Billing invoice paid",
		fmt.Sprintf("Billing invoice %s of KES %s was paid. Reference %s.", e.InvoiceNumber, e.TotalAmount.StringFixed(2), e.PaymentReference))
	n.Data["invoice_number"] = e.InvoiceNumber
	return []*notification.Notification{n}
}

func (h *Handler) paymentReminder(ctx context.Context, e *reminder.IssuedEvent) ([]*notification.Notification, error) {
	tenant, err := h.reader.TenantByID(ctx, e.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.UserID == nil {
		return nil, nil
	}
	n := h.build(*tenant.UserID, notification.KindPaymentReminder, nil, "Payment reminder", e.Message)
	invoiceID := e.InvoiceID
	n.InvoiceID = &invoiceID
	n.Data["invoice_number"] = e.InvoiceNumber
	n.Data["severity"] = string(e.Severity)
	n.Data["days_overdue"] = fmt.Sprint(e.DaysOverdue)
	propertyID := e.ScopeID()
	n.PropertyID = &propertyID
	return []*notification.Notification{n}, nil
}

// build creates a notification linked to the invoice and property of an
// invoice event. A nil event leaves the links empty.
func (h *Handler) build(recipient uuid.UUID, kind notification.Kind, e shared.DomainEvent, title, message string) *notification.Notification {
	n := notification.New(recipient, kind, title, message)
	if e == nil {
		return n
	}
	invoiceID := e.AggregateID()
	propertyID := e.ScopeID()
	n.InvoiceID = &invoiceID
	n.PropertyID = &propertyID
	return n
}

// recipients returns the distinct non-nil IDs in order
func recipients(first uuid.UUID, rest ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(rest)+1)
	out := make([]uuid.UUID, 0, len(rest)+1)
	for _, id := range append([]uuid.UUID{first}, rest...) {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
