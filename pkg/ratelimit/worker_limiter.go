// Package ratelimit guards inbound push traffic before it turns into sync work.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Debouncer - drops redelivered notifications
// =============================================================================

// Debouncer remembers keys for a window. Claim is atomic across processes when Redis is set.
type Debouncer struct {
	redis    *redis.Client
	duration time.Duration
	local    map[string]time.Time // fallback for no redis
	mu       sync.Mutex
	now      func() time.Time
}

// NewDebouncer creates a new debouncer. redisClient may be nil.
func NewDebouncer(redisClient *redis.Client, duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = 10 * time.Minute
	}
	return &Debouncer{
		redis:    redisClient,
		duration: duration,
		local:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Claim reports true the first time key is seen within the window.
func (d *Debouncer) Claim(ctx context.Context, key string) bool {
	if d.redis != nil {
		ok, err := d.redis.SetNX(ctx, fmt.Sprintf("debounce:%s", key), "1", d.duration).Result()
		if err == nil {
			return ok
		}
		// Redis unavailable: fall through to the local map
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, seen := d.local[key]; seen && now.Sub(last) < d.duration {
		return false
	}
	d.local[key] = now
	if len(d.local) > 10000 {
		for k, v := range d.local {
			if now.Sub(v) >= d.duration {
				delete(d.local, k)
			}
		}
	}
	return true
}

// Release forgets key so a redelivery is accepted again.
func (d *Debouncer) Release(ctx context.Context, key string) {
	if d.redis != nil {
		d.redis.Del(ctx, fmt.Sprintf("debounce:%s", key))
	}
	d.mu.Lock()
	delete(d.local, key)
	d.mu.Unlock()
}

// =============================================================================
// SlidingWindowLimiter - Redis sliding window
// =============================================================================

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// SlidingWindowLimiter allows at most limit events per window and key.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration

	mu    sync.Mutex
	local map[string][]time.Time
	now   func() time.Time
}

// NewSlidingWindowLimiter creates a limiter. redisClient may be nil.
func NewSlidingWindowLimiter(redisClient *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		local:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow checks if request is allowed and returns wait duration if not.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	now := l.now()

	if l.redis != nil {
		result, err := slidingWindowScript.Run(ctx, l.redis, []string{"ratelimit:" + key},
			now.UnixMilli(),
			now.Add(-l.window).UnixMilli(),
			l.limit,
			l.window.Milliseconds(),
		).Int64()
		if err == nil {
			switch {
			case result == 1:
				return true, 0
			case result < 0:
				return false, time.Duration(-result) * time.Millisecond
			default:
				return false, l.window
			}
		}
	}

	return l.allowLocal(key, now)
}

func (l *SlidingWindowLimiter) allowLocal(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := now.Add(-l.window)
	hits := l.local[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.local[key] = kept
		return false, kept[0].Add(l.window).Sub(now)
	}
	l.local[key] = append(kept, now)
	return true, 0
}
