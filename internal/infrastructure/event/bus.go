// Package event delivers committed domain events to the in-process
// consumers: notifications and the analytics cache purge.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/shared"
)

// DefaultHandlerTimeout bounds one handler call
const DefaultHandlerTimeout = 10 * time.Second

// Bus fans events out to subscribed handlers after the publishing
// transaction has committed. Delivery is best effort: handler failures are
// logged and never reach the publisher, whose state change already stands.
type Bus struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler

	running  bool
	inflight sync.WaitGroup
	timeout  time.Duration
	logger   *zap.Logger
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithHandlerTimeout overrides DefaultHandlerTimeout
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus creates a stopped bus
func NewBus(logger *zap.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		byType:  make(map[string][]shared.EventHandler),
		timeout: DefaultHandlerTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for the event types it declares. A handler that
// declares none receives every event.
func (b *Bus) Subscribe(h shared.EventHandler) {
	types := h.EventTypes()

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.wildcard = append(b.wildcard, h)
		return
	}
	for _, t := range types {
		b.byType[t] = append(b.byType[t], h)
	}
}

// Start accepts events until Stop
func (b *Bus) Start(context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	return nil
}

// Stop rejects new events and waits for in-flight deliveries or ctx
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish delivers events in order. Handlers run detached from ctx
// cancellation, so a client that disconnects after its payment committed
// still gets its receipt sent.
func (b *Bus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		for _, e := range events {
			b.logger.Warn("Event bus stopped, dropping event",
				zap.String("event_type", e.EventType()),
				zap.String("event_id", e.EventID().String()),
			)
		}
		return nil
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	ctx = context.WithoutCancel(ctx)
	for _, e := range events {
		for _, h := range b.handlersFor(e.EventType()) {
			b.deliver(ctx, h, e)
		}
	}
	return nil
}

func (b *Bus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	typed := b.byType[eventType]
	out := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	out = append(out, typed...)
	return append(out, b.wildcard...)
}

func (b *Bus) deliver(ctx context.Context, h shared.EventHandler, e shared.DomainEvent) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("handler", fmt.Sprintf("%T", h)),
		zap.String("event_type", e.EventType()),
		zap.String("event_id", e.EventID().String()),
		zap.String("aggregate_id", e.AggregateID().String()),
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", append(fields, zap.Any("panic", r))...)
		}
	}()

	if err := h.Handle(ctx, e); err != nil {
		b.logger.Error("Event handler failed", append(fields, zap.Error(err))...)
	}
}

var _ shared.EventPublisher = (*Bus)(nil)
