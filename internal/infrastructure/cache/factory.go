package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PropertyPurger drops cached analytics of a property
type PropertyPurger interface {
	PurgeProperty(ctx context.Context, propertyID uuid.UUID) error
}

// Backends bundles the Redis backed adapters. Client is nil when the
// in-process fallbacks are in use.
type Backends struct {
	Client      *redis.Client
	Broker      payment.StatusBroker
	Purger      PropertyPurger
	Idempotency shared.IdempotencyStore
}

// Close releases the Redis connection
func (b *Backends) Close() error {
	if b.Client != nil {
		return b.Client.Close()
	}
	return nil
}

// FactoryOption is a functional option for NewBackends
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger for the backends
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether in-process adapters replace Redis
// when it is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewBackends builds the Redis adapters, falling back to in-process ones
// when Redis is not configured or not reachable
func NewBackends(cfg config.RedisConfig, opts ...FactoryOption) (*Backends, error) {
	f := &factory{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	if cfg.Host != "" {
		var client *redis.Client
		client, err = NewRedisClient(cfg)
		if err == nil {
			f.logger.Info("using Redis for payment status, analytics purge and idempotency",
				zap.String("addr", cfg.Addr()))
			return NewRedisBackends(client, f.logger), nil
		}
	} else {
		err = fmt.Errorf("redis host not configured")
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-process adapters. "+
		"Payment status streams only see callbacks handled by this instance.",
		zap.Error(err),
	)
	return NewInMemoryBackends(), nil
}

// NewRedisBackends builds every adapter on one shared client
func NewRedisBackends(client *redis.Client, logger *zap.Logger) *Backends {
	return &Backends{
		Client:      client,
		Broker:      NewRedisStatusBroker(client, logger),
		Purger:      NewRedisAnalyticsPurger(client, logger),
		Idempotency: NewRedisIdempotencyStore(client),
	}
}

// NewInMemoryBackends builds single-instance adapters
func NewInMemoryBackends() *Backends {
	return &Backends{
		Broker:      NewInMemoryStatusBroker(),
		Purger:      NopAnalyticsPurger{},
		Idempotency: NewInMemoryIdempotencyStore(),
	}
}
