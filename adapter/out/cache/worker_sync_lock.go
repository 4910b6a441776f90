// Package cache provides Redis-backed coordination adapters for sync passes.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking_server/core/port/out"
	"booking_server/pkg/cache"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const syncLockKeyPrefix = "sync:lock:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisSyncLocker implements out.SyncLocker across processes.
// The TTL bounds how long a crashed holder can block a business.
type RedisSyncLocker struct {
	cache *cache.RedisCache
	ttl   time.Duration
	retry time.Duration
}

func NewRedisSyncLocker(c *cache.RedisCache, ttl time.Duration) *RedisSyncLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSyncLocker{cache: c, ttl: ttl, retry: 100 * time.Millisecond}
}

// Acquire polls until the lock is taken or ctx ends.
func (l *RedisSyncLocker) Acquire(ctx context.Context, businessID uuid.UUID) (func(), error) {
	key := syncLockKeyPrefix + businessID.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() { l.release(key, token) })
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, out.ErrLockBusy
		case <-ticker.C:
		}
	}
}

func (l *RedisSyncLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("[RedisSyncLocker.release] failed to release %s: %v", key, err)
	}
}

// MemorySyncLocker implements out.SyncLocker for a single process.
type MemorySyncLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func NewMemorySyncLocker() *MemorySyncLocker {
	return &MemorySyncLocker{locks: make(map[uuid.UUID]chan struct{})}
}

func (l *MemorySyncLocker) slot(businessID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[businessID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[businessID] = ch
	}
	return ch
}

func (l *MemorySyncLocker) Acquire(ctx context.Context, businessID uuid.UUID) (func(), error) {
	ch := l.slot(businessID)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, out.ErrLockBusy
	}
}

var (
	_ out.SyncLocker = (*RedisSyncLocker)(nil)
	_ out.SyncLocker = (*MemorySyncLocker)(nil)
)
