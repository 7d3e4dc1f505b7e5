// utils/cache.go
package utils

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the short-TTL key/value store used for failed-login windows and
// the pending-discovery backstop. Redis in deployment, in-process map for
// dev and tests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// NewCacheFromEnv returns a Redis-backed cache when REDIS_URL is set,
// otherwise an in-process one.
func NewCacheFromEnv() Cache {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Println("⚠️  REDIS_URL not set, using in-process cache")
		return NewMemoryCache()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️  invalid REDIS_URL (%v), falling back to in-process cache", err)
		return NewMemoryCache()
	}
	log.Println("✅ Using Redis cache at", opts.Addr)
	return &RedisCache{Client: redis.NewClient(opts)}
}

type RedisCache struct {
	Client *redis.Client
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[CACHE] redis get %s failed: %v", key, err)
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[CACHE] redis set %s failed: %v", key, err)
	}
}

func (r *RedisCache) Delete(ctx context.Context, key string) {
	if err := r.Client.Del(ctx, key).Err(); err != nil {
		log.Printf("[CACHE] redis del %s failed: %v", key, err)
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a locked map with lazy expiry. Matches Redis semantics
// closely enough for the TTL windows this app keeps.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	// Now is swappable so tests can drive expiry deterministically.
	Now func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && m.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.Now().Add(ttl)
	}
	m.entries[key] = entry
}

func (m *MemoryCache) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
