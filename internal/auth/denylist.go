package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist holds revoked token ids until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

type RedisDenylist struct {
	Client *redis.Client
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{Client: client}
}

func (d *RedisDenylist) key(jti string) string { return "auth:revoked:" + jti }

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return d.Client.Set(ctx, d.key(jti), "1", ttl).Err()
}

func (d *RedisDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	res, err := d.Client.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

var _ Denylist = (*RedisDenylist)(nil)

// MemoryDenylist backs tests and single-process runs.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: make(map[string]time.Time)}
}

func (d *MemoryDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = time.Now().Add(ttl)
	return nil
}

func (d *MemoryDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	expiry, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

var _ Denylist = (*MemoryDenylist)(nil)
