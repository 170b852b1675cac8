// Package ratelimiter throttles the requests of a single peer.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, which never refills a drained bucket
// after SetLimit.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket over the frames of one peer channel.
//
// Every inbound frame consumes one token. Tokens refill at the sustained
// rate up to the burst capacity, so a peer may briefly send faster (an
// upload's first chunks) while long floods are rejected.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - requestsPerSecond: sustained frames per second; 0 disables limiting
//   - burst: bucket capacity; 0 selects twice the sustained rate
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = requestsPerSecond * 2
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))}
}

// Allow consumes a token if one is available and reports whether it did.
// It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
