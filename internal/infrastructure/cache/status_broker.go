package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/propledger/backend/internal/domain/payment"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultStatusChannelPrefix = "payments:status:"

// RedisStatusBroker fans payment updates out over Redis Pub/Sub so a client
// streaming from one instance sees callbacks handled by another
type RedisStatusBroker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStatusBroker creates a broker on an existing client. The caller
// keeps ownership of the client.
func NewRedisStatusBroker(client *redis.Client, logger *zap.Logger) *RedisStatusBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStatusBroker{client: client, prefix: defaultStatusChannelPrefix, logger: logger}
}

func (b *RedisStatusBroker) channel(checkoutRequestID string) string {
	return b.prefix + checkoutRequestID
}

// Publish sends an update to every subscriber of its checkout request
func (b *RedisStatusBroker) Publish(ctx context.Context, u payment.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal payment update: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(u.CheckoutRequestID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish payment update: %w", err)
	}
	return nil
}

// Subscribe listens for updates of one checkout request. The subscription is
// confirmed before returning so a publish that follows cannot be missed.
func (b *RedisStatusBroker) Subscribe(ctx context.Context, checkoutRequestID string) (<-chan payment.Update, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(checkoutRequestID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to payment updates: %w", err)
	}

	out := make(chan payment.Update, 1)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u payment.Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					b.logger.Warn("Dropping malformed payment update",
						zap.String("channel", msg.Channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- u:
				case <-done:
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// InMemoryStatusBroker delivers updates within one process
type InMemoryStatusBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan payment.Update]struct{}
}

// NewInMemoryStatusBroker creates an empty broker
func NewInMemoryStatusBroker() *InMemoryStatusBroker {
	return &InMemoryStatusBroker{subs: make(map[string]map[chan payment.Update]struct{})}
}

// Publish delivers an update to current subscribers without blocking
func (b *InMemoryStatusBroker) Publish(_ context.Context, u payment.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[u.CheckoutRequestID] {
		select {
		case ch <- u:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered channel for one checkout request
func (b *InMemoryStatusBroker) Subscribe(_ context.Context, checkoutRequestID string) (<-chan payment.Update, func(), error) {
	ch := make(chan payment.Update, 1)

	b.mu.Lock()
	if b.subs[checkoutRequestID] == nil {
		b.subs[checkoutRequestID] = make(map[chan payment.Update]struct{})
	}
	b.subs[checkoutRequestID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[checkoutRequestID], ch)
			if len(b.subs[checkoutRequestID]) == 0 {
				delete(b.subs, checkoutRequestID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers returns the number of open subscriptions for a checkout request
func (b *InMemoryStatusBroker) Subscribers(checkoutRequestID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[checkoutRequestID])
}

var (
	_ payment.StatusBroker = (*RedisStatusBroker)(nil)
	_ payment.StatusBroker = (*InMemoryStatusBroker)(nil)
)
