package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultAnalyticsKeyPrefix = "analytics:property:"
	// DefaultAnalyticsInvalidationChannel carries the IDs of purged properties
	DefaultAnalyticsInvalidationChannel = "analytics:invalidate"

	scanBatchSize = 200
)

// RedisAnalyticsPurger drops cached dashboard entries of a property and
// announces the purge so in-process caches on other instances follow
type RedisAnalyticsPurger struct {
	client    *redis.Client
	keyPrefix string
	channel   string
	logger    *zap.Logger
}

// NewRedisAnalyticsPurger creates a purger on an existing client
func NewRedisAnalyticsPurger(client *redis.Client, logger *zap.Logger) *RedisAnalyticsPurger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAnalyticsPurger{
		client:    client,
		keyPrefix: defaultAnalyticsKeyPrefix,
		channel:   DefaultAnalyticsInvalidationChannel,
		logger:    logger,
	}
}

// KeyPattern returns the SCAN pattern matching a property's cache entries
func (p *RedisAnalyticsPurger) KeyPattern(propertyID uuid.UUID) string {
	return p.keyPrefix + propertyID.String() + ":*"
}

// PurgeProperty deletes every cached entry of the property
func (p *RedisAnalyticsPurger) PurgeProperty(ctx context.Context, propertyID uuid.UUID) error {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := p.client.Scan(ctx, cursor, p.KeyPattern(propertyID), scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan analytics keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := p.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete analytics keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := p.client.Publish(ctx, p.channel, propertyID.String()).Err(); err != nil {
		return fmt.Errorf("failed to publish analytics invalidation: %w", err)
	}

	p.logger.Debug("Purged analytics cache",
		zap.String("property_id", propertyID.String()),
		zap.Int64("keys_deleted", deleted))
	return nil
}

// NopAnalyticsPurger is used when no cache is configured
type NopAnalyticsPurger struct{}

// PurgeProperty does nothing
func (NopAnalyticsPurger) PurgeProperty(context.Context, uuid.UUID) error { return nil }
