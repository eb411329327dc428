// Package server implements a token bucket rate limiter applied per
// connection so one chatty client cannot starve the hub.
package server

import (
	"sync"
	"time"
)

// rateLimiter grants up to burst events per refill interval. The bucket
// refills in whole-interval steps, so a client that drains its burst
// waits out the remainder of the current interval before any event is
// accepted again.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   int
	burst    int
	interval time.Duration
	refilled time.Time

	now func() time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	rl := &rateLimiter{
		tokens:   burst,
		burst:    burst,
		interval: interval,
		now:      time.Now,
	}
	rl.refilled = rl.now()
	return rl
}

// allow consumes one token if available. Returns false while the bucket
// is empty; the caller discards the event rather than queueing it.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.refilled); elapsed >= rl.interval {
		intervals := elapsed / rl.interval
		rl.tokens = rl.burst
		rl.refilled = rl.refilled.Add(intervals * rl.interval)
	}

	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}
