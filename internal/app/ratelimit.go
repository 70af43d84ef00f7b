package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is the caller-scoped throttle gating the transfer entry point.
// It is injected into the coordinator so deployments can choose the Redis
// implementation (shared across instances) or the in-process one.
type RateLimiter interface {
	// Allow consumes one slot for key. When the fixed window is exhausted it
	// returns allowed=false and how long the caller should wait.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed fixed-window rate limiting.
// Window state expires in Redis itself, so no eviction pass is needed.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter builds a limiter allowing limit calls per window.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "ledger:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmed, limit: limit, window: window}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}
	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + ":" + key}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	if count > int64(r.limit) {
		retryAfter := time.Duration(math.Ceil(float64(ttlMs)/1000.0)) * time.Second
		return false, retryAfter, nil
	}
	return true, 0, nil
}

type window struct {
	count  int
	resets time.Time
}

// MemoryRateLimiter is the in-process fixed-window limiter used when Redis
// is not configured. Expired windows are reclaimed by Evict, which the cron
// sweeper drives.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewMemoryRateLimiter builds a limiter allowing limit calls per period.
// A nil clock defaults to time.Now.
func NewMemoryRateLimiter(limit int, period time.Duration, now func() time.Time) *MemoryRateLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     now,
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if m.limit <= 0 || m.period <= 0 {
		return true, 0, nil
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resets) {
		m.windows[key] = &window{count: 1, resets: now.Add(m.period)}
		return true, 0, nil
	}
	w.count++
	if w.count > m.limit {
		return false, w.resets.Sub(now), nil
	}
	return true, 0, nil
}

// Evict drops windows that have already reset. Called periodically so idle
// callers do not accumulate state forever.
func (m *MemoryRateLimiter) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, w := range m.windows {
		if !now.Before(w.resets) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}
