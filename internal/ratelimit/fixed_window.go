// Package ratelimit caps request rates per client key with fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether a key is within quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// quota is a request budget per window. Windows are aligned to the epoch so
// every instance agrees on the current slot.
type quota struct {
	limit  int
	window time.Duration
}

func newQuota(limit int, window time.Duration) (quota, error) {
	if limit <= 0 || window < time.Millisecond {
		return quota{}, errors.New("rate limiter requires positive limit and window")
	}
	return quota{limit: limit, window: window}, nil
}

func (q quota) slot(now time.Time) int64 {
	return now.UnixMilli() / q.window.Milliseconds()
}

func clientKey(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return "unknown"
}

// incrWindow counts a hit and arms the expiry on the first one.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// FixedWindowLimiter shares one budget across instances through Redis.
type FixedWindowLimiter struct {
	quota
	client *redis.Client
	prefix string
}

func NewRedisFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	q, err := newQuota(limit, window)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "langgrade:ratelimit"
	}
	return &FixedWindowLimiter{quota: q, client: client, prefix: prefix}, nil
}

// Allow fails closed: a Redis error denies the request.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	redisKey := l.prefix + ":" + clientKey(key) + ":" + strconv.FormatInt(l.slot(time.Now()), 10)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := incrWindow.Run(ctx, l.client, []string{redisKey}, l.window.Milliseconds()).Int64()
	return err == nil && n <= int64(l.limit)
}

// MemoryLimiter keeps counts in process for single-instance deployments.
type MemoryLimiter struct {
	quota
	now func() time.Time

	mu      sync.Mutex
	current int64
	hits    map[string]int
}

func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	q, err := newQuota(limit, window)
	if err != nil {
		return nil, err
	}
	return &MemoryLimiter{quota: q, now: time.Now, hits: make(map[string]int)}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	slot := l.slot(l.now())
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.current {
		l.current = slot
		clear(l.hits)
	}
	key = clientKey(key)
	l.hits[key]++
	return l.hits[key] <= l.limit
}
