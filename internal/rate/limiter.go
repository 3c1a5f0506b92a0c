// Package rate provides fixed-window request limiting for the OAuth
// endpoints. Redis backs the shared counters; a process-local limiter
// covers deployments without Redis.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter is a fixed-window counter. Windows are aligned to wall-clock
// boundaries so every instance agrees on the bucket, and the whole
// increment-and-expire sequence rides one pipelined round trip.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	window := time.Now().UTC().Truncate(l.Window)
	bucket := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), window.Unix())

	// EXPIRE NX arms the window on the bucket's first hit only; TTL runs
	// after it in the same pipeline, so the value is always meaningful.
	pipe := l.Client.TxPipeline()
	hits := pipe.Incr(ctx, bucket)
	pipe.ExpireNX(ctx, bucket, l.Window)
	ttl := pipe.TTL(ctx, bucket)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	n := hits.Val()
	res := Result{
		Allowed:     n <= l.Max,
		CurrentHits: n,
		WindowTTL:   ttl.Val(),
	}
	if rem := l.Max - n; rem > 0 {
		res.Remaining = rem
	}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.Window
		}
	}
	return res, nil
}
