package reminder

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for reminders
type Repository interface {
	// FindByInvoice finds the reminder of an invoice
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) (*Reminder, error)

	// Save creates or updates a reminder keyed by invoice
	Save(ctx context.Context, r *Reminder) error

	// FindAll lists reminders matching the filter with the total count
	FindAll(ctx context.Context, filter Filter) ([]Reminder, int64, error)
}
