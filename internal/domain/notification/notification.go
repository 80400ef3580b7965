package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names what a notification is about
type Kind string

const (
	KindPaymentReceived    Kind = "payment_received"
	KindInvoiceCancelled   Kind = "invoice_cancelled"
	KindDisbursementMade   Kind = "disbursement_made"
	KindBillingInvoicePaid Kind = "billing_invoice_paid"
	KindPaymentReminder    Kind = "payment_reminder"
)

// Notification is a message queued for a platform user. Delivery over SMS or
// email happens elsewhere.
type Notification struct {
	ID          uuid.UUID         `json:"id"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	Kind        Kind              `json:"kind"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	PropertyID  *uuid.UUID        `json:"property_id,omitempty"`
	InvoiceID   *uuid.UUID        `json:"invoice_id,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	IsRead      bool              `json:"is_read"`
	CreatedAt   time.Time         `json:"created_at"`
}

// New creates an unread notification
func New(recipient uuid.UUID, kind Kind, title, message string) *Notification {
	return &Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		Kind:        kind,
		Title:       title,
		Message:     message,
		Data:        map[string]string{},
		CreatedAt:   time.Now(),
	}
}

// Repository stores notification records
type Repository interface {
	Create(ctx context.Context, n *Notification) error
}

// Dispatcher hands a notification to the delivery channel
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}
