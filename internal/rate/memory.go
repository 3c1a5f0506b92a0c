package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter mirrors RedisLimiter's fixed-window semantics in process
// memory. Counters are only meaningful within a single instance, which is
// acceptable for local development and single-replica deployments.
type MemoryLimiter struct {
	max    int64
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	// now is injectable for window-rollover tests.
	now func() time.Time
}

type bucket struct {
	windowStart time.Time
	hits        int64
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     int64(max),
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || !b.windowStart.Equal(winStart) {
		b = &bucket{windowStart: winStart}
		l.buckets[key] = b
	}
	b.hits++

	remaining := l.max - b.hits
	if remaining < 0 {
		remaining = 0
	}
	left := winStart.Add(l.window).Sub(now)
	res := Result{
		Allowed:     b.hits <= l.max,
		Remaining:   remaining,
		CurrentHits: b.hits,
		WindowTTL:   left,
	}
	if !res.Allowed {
		res.RetryAfter = left
	}
	return res, nil
}
