package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Invoice", uuid.New(), uuid.New())}
}

// recorder collects the events it receives
type recorder struct {
	mu     sync.Mutex
	types  []string
	seen   []string
	err    error
	panics bool
	ctxErr error
}

func (r *recorder) EventTypes() []string { return r.types }

func (r *recorder) Handle(ctx context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	r.seen = append(r.seen, e.EventType())
	r.ctxErr = ctx.Err()
	r.mu.Unlock()
	if r.panics {
		panic("boom")
	}
	return r.err
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func startedBus(t *testing.T, opts ...BusOption) *Bus {
	t.Helper()
	bus := NewBus(zap.NewNop(), opts...)
	require.NoError(t, bus.Start(context.Background()))
	return bus
}

func TestBus_RoutesByEventType(t *testing.T) {
	bus := startedBus(t)
	paid := &recorder{types: []string{"invoice.paid"}}
	all := &recorder{}
	bus.Subscribe(paid)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("invoice.paid"),
		newTestEvent("invoice.cancelled"),
	))

	assert.Equal(t, []string{"invoice.paid"}, paid.received())
	assert.Equal(t, []string{"invoice.paid", "invoice.cancelled"}, all.received())
}

func TestBus_HandlerFailureDoesNotReachPublisher(t *testing.T) {
	bus := startedBus(t)
	failing := &recorder{err: errors.New("smtp down")}
	panicking := &recorder{panics: true}
	after := &recorder{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(after)

	err := bus.Publish(context.Background(), newTestEvent("invoice.paid"))

	assert.NoError(t, err)
	assert.Len(t, after.received(), 1)
}

func TestBus_DetachesFromCallerCancellation(t *testing.T) {
	bus := startedBus(t)
	h := &recorder{}
	bus.Subscribe(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Publish(ctx, newTestEvent("invoice.disbursed")))

	assert.Len(t, h.received(), 1)
	assert.NoError(t, h.ctxErr)
}

func TestBus_DropsEventsWhenStopped(t *testing.T) {
	bus := NewBus(zap.NewNop())
	h := &recorder{}
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("invoice.paid")))
	assert.Empty(t, h.received())

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("invoice.paid")))
	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("invoice.paid")))
	assert.Len(t, h.received(), 1)
}

type slowHandler struct {
	started chan struct{}
	release chan struct{}
}

func newSlowHandler() slowHandler {
	return slowHandler{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (slowHandler) EventTypes() []string { return nil }

func (s slowHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestBus_StopWaitsForInflightDelivery(t *testing.T) {
	bus := startedBus(t, WithHandlerTimeout(time.Minute))
	h := newSlowHandler()
	bus.Subscribe(h)

	go func() { _ = bus.Publish(context.Background(), newTestEvent("reminder.issued")) }()
	<-h.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)

	close(h.release)
	assert.NoError(t, bus.Stop(context.Background()))
}

func TestBus_HandlerTimeout(t *testing.T) {
	bus := startedBus(t, WithHandlerTimeout(10*time.Millisecond))
	bus.Subscribe(newSlowHandler())

	done := make(chan struct{})
	go func() {
		_ = bus.Publish(context.Background(), newTestEvent("invoice.paid"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not return after the handler timeout")
	}
}
