package comparator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited spaces out batches sent to the wrapped comparator.
type RateLimited struct {
	next    Comparator
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond batches per second with a burst of one.
func NewRateLimited(next Comparator, perSecond float64) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Name implements Comparator.
func (r *RateLimited) Name() string {
	return r.next.Name()
}

// Compare implements Comparator. Waiting honors ctx.
func (r *RateLimited) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for comparator rate limit: %w", err)
	}
	return r.next.Compare(ctx, reqs)
}

// Ensure RateLimited implements Comparator interface.
var _ Comparator = (*RateLimited)(nil)
