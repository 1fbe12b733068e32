package payments

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store deduplicates processing of identical external events and caches
// responses for identical client-issued requests. Entries expire; a fresh
// process starts empty, so callers must tolerate reprocessing after a restart
// as a rare-case cost. For multi-process deployments use the Redis-backed
// implementation so the check-and-set is shared.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only if the key is absent and reports whether it
	// did. It is the single atomic check-and-set used for webhook dedup.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

const defaultSweepInterval = 10 * time.Minute

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a single-process Store with lazy expiry on read and a
// periodic sweep to bound memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store and starts its sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(defaultSweepInterval)
	return s
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// RedisStore is a Store shared across processes via Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced with the
// given prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
