// Package testutil holds in-memory doubles shared by the application
// service tests.
package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
)

// TestEvent is a bare domain event scoped to a property or developer
type TestEvent struct {
	shared.BaseDomainEvent
}

// NewTestEvent creates an event of the given type with a random aggregate
func NewTestEvent(eventType string, scopeID uuid.UUID) *TestEvent {
	return &TestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), scopeID),
	}
}

// RecordingPublisher collects everything published to it
type RecordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

// NewRecordingPublisher creates an empty RecordingPublisher
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records the events
func (p *RecordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// Events returns a copy of the published events
func (p *RecordingPublisher) Events() []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventTypes returns the type of every published event in order
func (p *RecordingPublisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ shared.EventPublisher = (*RecordingPublisher)(nil)
