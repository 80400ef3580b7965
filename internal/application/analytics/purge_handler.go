// Package analytics invalidates cached property dashboards when the ledger
// changes.
package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Purger drops every cached analytics entry of a property
type Purger interface {
	PurgeProperty(ctx context.Context, propertyID uuid.UUID) error
}

// PurgeHandler purges the analytics cache of the property an invoice event
// belongs to
type PurgeHandler struct {
	purger Purger
	logger *zap.Logger
}

// NewPurgeHandler creates a new PurgeHandler
func NewPurgeHandler(purger Purger, logger *zap.Logger) *PurgeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurgeHandler{purger: purger, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *PurgeHandler) EventTypes() []string {
	return []string{
		invoice.EventTypeInvoicePaid,
		invoice.EventTypeInvoiceCancelled,
		invoice.EventTypeInvoiceDisbursed,
	}
}

// Handle purges the property cache. Failures are logged only.
func (h *PurgeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	propertyID := event.ScopeID()
	if propertyID == uuid.Nil {
		return nil
	}
	if err := h.purger.PurgeProperty(ctx, propertyID); err != nil {
		h.logger.Warn("analytics purge failed",
			zap.String("property_id", propertyID.String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return nil
	}
	h.logger.Debug("analytics cache purged",
		zap.String("property_id", propertyID.String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}
