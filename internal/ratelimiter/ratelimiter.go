package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles backend calls with a token bucket.
//
// Each backend operation consumes one token. Tokens are refilled at a
// constant rate and up to burst tokens can be spent at once.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - requestsPerSecond: Sustained rate; 0 disables limiting
//   - burst: Bucket capacity; 0 defaults to requestsPerSecond (at least 1)
//
// Example:
//
//	// 50 backend calls per second, bursts of 100
//	limiter := New(50, 100)
func New(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = max(int(requestsPerSecond), 1)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or ctx is done.
//
// Returns the context error when cancelled, or an error from the limiter
// when the wait would exceed the context deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Rate returns the sustained rate in calls per second, 0 when unlimited.
func (r *RateLimiter) Rate() float64 {
	limit := r.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	return float64(limit)
}

// Set hands out one limiter per key, creating it on first use.
//
// It is used to give every mount its own bucket while sharing the
// configured rate.
type Set struct {
	mu                sync.Mutex
	requestsPerSecond float64
	burst             int
	limiters          map[string]*RateLimiter
}

// NewSet creates a Set whose limiters use the given rate and burst.
func NewSet(requestsPerSecond float64, burst int) *Set {
	return &Set{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		limiters:          make(map[string]*RateLimiter),
	}
}

// Get returns the limiter for key.
func (s *Set) Get(key string) *RateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = New(s.requestsPerSecond, s.burst)
		s.limiters[key] = l
	}
	return l
}
