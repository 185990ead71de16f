package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerCache remembers a key for a bounded window. It backs the
// notification dedupe: a key that is already marked means "sent recently,
// skip".
type MarkerCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// RedisMarkerCache stores markers with a TTL so eviction is the server's
// problem, not a sweep loop's.
type RedisMarkerCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisMarkerCache(client *redis.Client, ttl time.Duration) *RedisMarkerCache {
	return &RedisMarkerCache{Client: client, TTL: ttl}
}

func (c *RedisMarkerCache) Seen(ctx context.Context, key string) (bool, error) {
	res, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

func (c *RedisMarkerCache) Mark(ctx context.Context, key string) error {
	return c.Client.Set(ctx, key, "1", c.TTL).Err()
}

var _ MarkerCache = (*RedisMarkerCache)(nil)

// MemoryMarkerCache is the in-process fallback: expiries are checked on
// read and swept on write, so the map stays bounded by the TTL window.
type MemoryMarkerCache struct {
	TTL time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryMarkerCache(ttl time.Duration) *MemoryMarkerCache {
	return &MemoryMarkerCache{TTL: ttl, entries: make(map[string]time.Time)}
}

func (c *MemoryMarkerCache) Seen(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryMarkerCache) Mark(ctx context.Context, key string) error {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = now.Add(c.TTL)
	return nil
}

var _ MarkerCache = (*MemoryMarkerCache)(nil)
