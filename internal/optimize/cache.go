package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfuse/quantfuse/internal/metrics"
)

// CacheStats reports hit/miss counters for tuning.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CachedResult is the serialized cache payload: the metric snapshot for one
// evaluated combination.
type CachedResult struct {
	Params  Combination      `json:"params"`
	Metrics metrics.Snapshot `json:"metrics"`
}

// ResultCache memoizes backtest results keyed by (parameter tuple, data
// fingerprint). Implementations must support concurrent-safe
// insert-if-absent.
type ResultCache interface {
	Get(ctx context.Context, key string) (*CachedResult, bool, error)
	PutIfAbsent(ctx context.Context, key string, r *CachedResult) error
	Stats() CacheStats
}

// MemoryCache is the default in-process result cache. It is owned by the
// optimizer instance that created it, never a process-wide singleton, so
// multiple optimizers stay isolated.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedResult
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CachedResult)}
}

// Get looks up a cached result.
func (c *MemoryCache) Get(_ context.Context, key string) (*CachedResult, bool, error) {
	c.mu.RLock()
	r, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return r, true, nil
	}
	c.misses.Add(1)
	return nil, false, nil
}

// PutIfAbsent stores a result unless the key already exists.
func (c *MemoryCache) PutIfAbsent(_ context.Context, key string, r *CachedResult) error {
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists {
		c.entries[key] = r
	}
	c.mu.Unlock()
	return nil
}

// Stats returns the hit/miss counters.
func (c *MemoryCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// RedisCache shares evaluation results across processes through Redis.
// Insert-if-absent maps to SETNX.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache wraps an existing client. Keys are namespaced by prefix; a
// zero TTL keeps entries until evicted.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "quantfuse:opt:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get looks up a cached result.
func (c *RedisCache) Get(ctx context.Context, key string) (*CachedResult, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var r CachedResult
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	c.hits.Add(1)
	return &r, true, nil
}

// PutIfAbsent stores a result via SETNX.
func (c *RedisCache) PutIfAbsent(ctx context.Context, key string, r *CachedResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.SetNX(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Stats returns the client-side hit/miss counters.
func (c *RedisCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
