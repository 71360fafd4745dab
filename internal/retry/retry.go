// Package retry computes exponential backoff delays for 5xx reattempts.
package retry

import (
	"math"
	"sync"
	"time"
)

// Policy configures exponential backoff.
type Policy struct {
	BaseDelay time.Duration // delay before the first reattempt
	MaxDelay  time.Duration // cap on any single delay; 0 disables the cap
	// Multiplier grows the delay between attempts.
	Multiplier  float64
	MaxAttempts int // reattempts allowed before the budget is exhausted
}

// Default returns 6 reattempts starting at 100ms and doubling:
// 0.1s, 0.2s, 0.4s, 0.8s, 1.6s, 3.2s.
func Default() Policy {
	return Policy{
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
		MaxAttempts: 6,
	}
}

// Delay returns the wait before reattempt n (zero-based). ok is false once
// the budget is exhausted.
func (p Policy) Delay(n int) (time.Duration, bool) {
	if n < 0 || n >= p.MaxAttempts {
		return 0, false
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	return time.Duration(d), true
}

// Counter tracks consecutive attempts against a Policy.
type Counter struct {
	mu       sync.Mutex
	policy   Policy
	attempts int
}

// NewCounter returns a Counter at zero attempts.
func NewCounter(p Policy) *Counter {
	return &Counter{policy: p}
}

// Next consumes one attempt and returns its delay. When the budget is
// exhausted it returns false and leaves the counter unchanged.
func (c *Counter) Next() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.policy.Delay(c.attempts)
	if ok {
		c.attempts++
	}
	return d, ok
}

// Reset returns the counter to zero.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

// Attempts reports how many delays have been handed out since the last Reset.
func (c *Counter) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
