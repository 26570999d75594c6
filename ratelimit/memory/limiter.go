package memorylimiter

import (
	"fmt"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is an in-memory sliding-window rate limiter for grant endpoints.
// It is intended as a single-node fallback when Redis is unavailable.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	history map[string][]int64 // request times in Unix ms, newest last
}

// New constructs an in-memory limiter with the provided per-bucket limits.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{
		limits:  limits,
		history: make(map[string][]int64),
	}
}

func (l *Limiter) limit(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// AllowNamed reports whether one more request fits the bucket's window for
// the given key. Expired timestamps are pruned on each call so idle keys do
// not grow without bound.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	lim := l.limit(bucket)
	nowMs := time.Now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	k := key + ":" + bucket

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.history[k]
	keep := 0
	for keep < len(ts) && ts[keep] < windowStart {
		keep++
	}
	ts = ts[keep:]

	if len(ts) >= lim.Limit {
		l.history[k] = ts
		return false, nil
	}

	ts = append(ts, nowMs)
	l.history[k] = ts
	return true, nil
}
