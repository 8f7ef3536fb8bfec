package channels

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter: a burst of up to capacity
// operations can run back to back, after which callers pay rate
// tokens/second. Used to stay under a chat platform's API quota.
type RateLimiter struct {
	rate     float64
	capacity float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillLocked()
	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.nextTokenIn()):
		}
	}
}

func (r *RateLimiter) nextTokenIn() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillLocked()
	if r.tokens >= 1 || r.rate <= 0 {
		return 0
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second))
}

func (r *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now
	r.tokens += elapsed * r.rate
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
}
