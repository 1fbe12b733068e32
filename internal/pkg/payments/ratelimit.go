package payments

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter bounds request volume per key with fixed-window counting. Two key
// spaces are used: per-user for creation endpoints and a global key for the
// webhook intake endpoint.
type Limiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a single-process fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowCounter
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*windowCounter)}
}

func (l *MemoryLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &windowCounter{count: 1, resetAt: now.Add(window)}
		return true, nil
	}
	w.count++
	return w.count <= max, nil
}

// RedisLimiter is a fixed-window limiter shared across processes.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := key
	if l.prefix != "" {
		k = l.prefix + ":" + key
	}
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// First hit in the window owns the expiry.
		if err := l.client.PExpire(ctx, k, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(max), nil
}
