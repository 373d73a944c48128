package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited wraps a Provider with a token bucket so bulk ingestion stays under
// a provider's request quota.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited allows perMinute requests per minute with a burst of one.
// A non-positive perMinute returns p unchanged.
func NewLimited(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &Limited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Execute waits for a token, then delegates to the wrapped provider.
func (l *Limited) Execute(ctx context.Context, req Request) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.Execute(ctx, req)
}
