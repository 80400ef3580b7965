package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propledger/backend/internal/domain/shared"
)

const idempotencyKeyPrefix = "billing:consumed:"

// RedisIdempotencyStore holds event claims in Redis so a redelivered
// event is consumed once across every API instance.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyStore uses a client owned by the caller
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: idempotencyKeyPrefix}
}

// Claim sets the key with SET NX, so only the first delivery wins
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

// InMemoryIdempotencyStore is the single-instance fallback. Expired claims
// are swept lazily once the map passes sweepAt entries.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	claims  map[string]time.Time
	sweepAt int
	now     func() time.Time
}

// NewInMemoryIdempotencyStore creates an empty store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		claims:  make(map[string]time.Time),
		sweepAt: 1024,
		now:     time.Now,
	}
}

func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	if len(s.claims) >= s.sweepAt {
		s.sweep(now)
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.claims, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live and not yet swept claims
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func (s *InMemoryIdempotencyStore) sweep(now time.Time) {
	for key, expires := range s.claims {
		if !now.Before(expires) {
			delete(s.claims, key)
		}
	}
	if len(s.claims) >= s.sweepAt {
		s.sweepAt *= 2
	}
}

var (
	_ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
	_ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
)
