package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// LockKeyPrefix namespaces job locks in Redis
const LockKeyPrefix = "scheduler:lock:"

// Unlock releases a lock obtained from a Locker
type Unlock func(ctx context.Context) error

// Locker serialises job runs. Obtain fails with ErrLockNotObtained while the
// key is held.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// RedisLocker holds job locks in Redis so that only one instance runs a job
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker creates a RedisLocker on top of a Redis client
func NewRedisLocker(client redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

// Obtain takes the lock without retrying
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	lock, err := l.client.Obtain(ctx, LockKeyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired while the job was running
			return nil
		}
		return err
	}, nil
}

// LocalLocker is the in-process Locker used when Redis is not configured
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	next  uint64
	clock func() time.Time
}

type localLock struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]localLock),
		clock: time.Now,
	}
}

// Obtain takes the lock unless it is held and not yet expired
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrLockNotObtained
	}
	l.next++
	token := l.next
	l.held[key] = localLock{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
