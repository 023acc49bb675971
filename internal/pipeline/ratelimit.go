package pipeline

import (
	"context"

	"golang.org/x/time/rate"
)

// Caller is the shape of the innermost "call the provider" step the
// RateLimit middleware wraps.
type Caller func(ctx context.Context) error

// RateLimit wraps a Caller with a per-model token-bucket limiter; the demo
// applies it around the provider request inside its model caller. Wait
// blocks the caller, not the loop's turn-accounting.
type RateLimit struct {
	limiter *rate.Limiter
}

// NewRateLimit builds a RateLimit middleware allowing requestsPerSecond
// sustained calls with the given burst. A nil *RateLimit, or one built with
// requestsPerSecond <= 0 (such as NewRateLimit(0, 0)), acts as the no-op
// identity transformer.
func NewRateLimit(requestsPerSecond float64, burst int) *RateLimit {
	if requestsPerSecond <= 0 {
		return &RateLimit{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimit{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wrap returns a Caller that waits for limiter capacity before invoking next.
func (r *RateLimit) Wrap(next Caller) Caller {
	if r == nil || r.limiter == nil {
		return next
	}
	return func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}
