package coordinator

import (
	"sync"
	"time"
)

// RateLimiter caps how often a single connection may submit votes, using a
// sliding window of recent timestamps per connection handle.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter allows limit calls per window for each key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	recent := rl.history[key][:0]
	for _, ts := range rl.history[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rl.limit {
		rl.history[key] = recent
		return false
	}

	rl.history[key] = append(recent, now)
	return true
}

// Forget drops a connection's history after it disconnects.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, key)
}
