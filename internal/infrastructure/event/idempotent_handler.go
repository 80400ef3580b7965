package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/shared"
)

// DefaultIdempotencyTTL is how long a consumed event ID is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotentHandler lets each event through to the wrapped handler once.
// A failed delivery releases its claim so a redelivery is retried.
type IdempotentHandler struct {
	next   shared.EventHandler
	store  shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentHandler wraps next. A zero ttl uses DefaultIdempotencyTTL.
func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentHandler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotentHandler{next: next, store: store, ttl: ttl, logger: logger}
}

// EventTypes forwards the wrapped handler's subscription
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle claims the event ID before delivery. If the store is unreachable
// the event is delivered anyway; a duplicate receipt beats a lost one.
func (h *IdempotentHandler) Handle(ctx context.Context, e shared.DomainEvent) error {
	key := e.EventType() + ":" + e.EventID().String()

	claimed, err := h.store.Claim(ctx, key, h.ttl)
	switch {
	case err != nil:
		h.logger.Warn("Idempotency store unavailable, delivering unchecked",
			zap.String("key", key), zap.Error(err))
		return h.next.Handle(ctx, e)
	case !claimed:
		h.logger.Debug("Skipping already consumed event", zap.String("key", key))
		return nil
	}

	if err := h.next.Handle(ctx, e); err != nil {
		if rerr := h.store.Release(ctx, key); rerr != nil {
			h.logger.Warn("Failed to release idempotency claim", zap.String("key", key), zap.Error(rerr))
		}
		return err
	}
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
