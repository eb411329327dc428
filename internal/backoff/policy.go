// Package backoff computes exponential reconnect delays for the client
// connection manager.
package backoff

import (
	"math"
	"time"
)

// Policy defines an exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor multiplies the delay on each successive attempt.
	Factor float64
	// MaxAttempts bounds how many retries are made before giving up.
	// Zero means unbounded.
	MaxAttempts int
}

// Reconnect is the schedule the chat client uses between connection
// attempts: 1s, 2s, 4s, 8s, 10s, then stop.
func Reconnect() Policy {
	return Policy{
		Initial:     time.Second,
		Max:         10 * time.Second,
		Factor:      2,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given retry attempt. Attempts are
// numbered from 1; out-of-range attempts return the clamped bounds.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Initial) * math.Pow(p.Factor, float64(attempt-1))
	if max := float64(p.Max); p.Max > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// Exhausted reports whether the given attempt number exceeds the
// policy's retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
