package websearch

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// RateLimited throttles calls to another provider with a token bucket.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond requests with the given burst (minimum 1).
func NewRateLimited(next Provider, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Search waits for a token, then delegates. A context that ends while
// waiting is a search failure.
func (r *RateLimited) Search(ctx context.Context, query string, num int) ([]types.SearchHit, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, searchError("rate limit", err)
	}
	return r.next.Search(ctx, query, num)
}
