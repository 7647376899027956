// Package ratelimit provides the process-wide outbound quota shared by the
// search and generation clients.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter hands out permission for one outbound call.
type Limiter interface {
	// Wait blocks until a token is available or ctx ends. A token reserved for a
	// context that ends before the call may proceed is returned to the bucket.
	Wait(ctx context.Context) error
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate. It is safe for
// concurrent use and meant to be shared by every pipeline in the process.
type TokenBucket struct {
	limiter *rate.Limiter
}

// New creates a bucket refilled at rps tokens per second holding at most burst tokens.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, burst)}
}

// Wait implements Limiter.
func (b *TokenBucket) Wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Unlimited never blocks unless ctx is already done.
type Unlimited struct{}

// Wait implements Limiter.
func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
