package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles data transfer to a sustained number of bytes per
// second using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate:
//   - One token is one byte
//   - Burst is the bucket capacity; transfers larger than the burst are
//     charged in burst-sized steps so they never fail outright
//   - Waiting respects context cancellation
//
// A nil *RateLimiter is valid and never throttles, so callers can hold an
// optional limiter without checking for nil.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing bytesPerSecond sustained throughput.
//
// Parameters:
//   - bytesPerSecond: Sustained rate. 0 disables throttling (returns nil).
//   - burst: Bucket capacity in bytes. 0 defaults to one second of traffic.
//
// Example:
//
//	// 500 MiB/s sustained, bursts of up to 64 MiB
//	limiter := New(500<<20, 64<<20)
func New(bytesPerSecond, burst uint64) *RateLimiter {
	if bytesPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = bytesPerSecond
	}
	if burst > maxBurst {
		burst = maxBurst
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// maxBurst keeps the burst within an int32 on every platform.
const maxBurst = 1<<31 - 1

// WaitN blocks until n bytes may be transferred or ctx is cancelled.
//
// Returns:
//   - nil once the full amount has been granted
//   - the context error if cancelled first
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if r == nil {
		return nil
	}

	burst := r.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := r.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Allow reports whether n bytes may be transferred right now, consuming
// the tokens if so. Amounts above the burst are never allowed.
func (r *RateLimiter) Allow(n int) bool {
	if r == nil {
		return true
	}
	return r.limiter.AllowN(timeNow(), n)
}

// SetLimit changes the sustained rate. 0 removes the limit.
func (r *RateLimiter) SetLimit(bytesPerSecond uint64) {
	if r == nil {
		return
	}
	if bytesPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// Limit returns the sustained rate in bytes per second, 0 when unlimited.
func (r *RateLimiter) Limit() uint64 {
	if r == nil || r.limiter.Limit() == rate.Inf {
		return 0
	}
	return uint64(r.limiter.Limit())
}

// Burst returns the bucket capacity in bytes.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
