// Package cache provides the single-use state consumption set: once a state
// token is redeemed at the callback, its signature is parked here for the
// state TTL so a captured state+code pair cannot be replayed inside the
// window.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

// MemoryConsumed is the in-process implementation on go-cache.
type MemoryConsumed struct{ c *gocache.Cache }

// NewMemoryConsumed builds the in-process set. cleanup sweeps expired keys.
func NewMemoryConsumed() *MemoryConsumed {
	return &MemoryConsumed{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

// MarkConsumed returns false when key was already consumed. go-cache's Add
// is add-if-absent, which gives the atomicity we need in-process.
func (m *MemoryConsumed) MarkConsumed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := m.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// RedisConsumed is the distributed implementation on SETNX.
type RedisConsumed struct {
	client *rdb.Client
	prefix string
}

// NewRedisConsumed builds the redis-backed set.
func NewRedisConsumed(client *rdb.Client, prefix string) *RedisConsumed {
	if prefix == "" {
		prefix = "oauthstate:"
	}
	return &RedisConsumed{client: client, prefix: prefix}
}

// MarkConsumed uses SET NX EX so consumption is atomic across instances.
func (r *RedisConsumed) MarkConsumed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
}
