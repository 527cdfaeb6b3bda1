package provenance

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Cache stores classification results keyed by token address. Only
// successful classifications are written; each key is written at most once
// with an idempotent value, so concurrent access needs no coordination
// beyond the map lock. Lifecycle is process-wide, cleared only by Reset.
type Cache interface {
	// Get returns (value, found). A miss is not an error.
	Get(ctx context.Context, address string) (bool, bool, error)

	// Set records a classification result
	Set(ctx context.Context, address string, isOrigin bool) error

	// Reset clears all entries
	Reset(ctx context.Context) error
}

// MemoryCache is the default in-process classification cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]bool
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]bool)}
}

// Get returns (value, found)
func (c *MemoryCache) Get(ctx context.Context, address string) (bool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, found := c.entries[strings.ToLower(address)]
	return value, found, nil
}

// Set records a classification result
func (c *MemoryCache) Set(ctx context.Context, address string, isOrigin bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[strings.ToLower(address)] = isOrigin
	return nil
}

// Reset clears all entries
func (c *MemoryCache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]bool)
	return nil
}

// Len returns the number of cached classifications
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisKeyPrefix = "coinscan:provenance:"

// RedisCache shares classification results across processes. Values never
// expire: a token's provenance is immutable once conclusively determined.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed classification cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns (value, found)
func (c *RedisCache) Get(ctx context.Context, address string) (bool, bool, error) {
	value, err := c.client.Get(ctx, redisKeyPrefix+strings.ToLower(address)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == "1", true, nil
}

// Set records a classification result
func (c *RedisCache) Set(ctx context.Context, address string, isOrigin bool) error {
	value := "0"
	if isOrigin {
		value = "1"
	}
	return c.client.Set(ctx, redisKeyPrefix+strings.ToLower(address), value, 0).Err()
}

// Reset clears all entries
func (c *RedisCache) Reset(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
