package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/bar"
)

// GuardedPort wraps any Port with the three contract wrappers every venue
// gets uniformly: retry with backoff+jitter, a circuit breaker, and
// token-bucket rate limiting. The inner adapter never needs to know about
// any of this.
type GuardedPort struct {
	inner   Port
	venue   string
	retry   RetryConfig
	breaker *CircuitBreaker
	limits  *RateLimiters
}

// NewGuardedPort builds the guarded wrapper around an adapter.
func NewGuardedPort(inner Port, venue string, retry RetryConfig, breaker *CircuitBreaker, limits *RateLimiters) *GuardedPort {
	return &GuardedPort{inner: inner, venue: venue, retry: retry, breaker: breaker, limits: limits}
}

func (g *GuardedPort) guard(ctx context.Context, op string, rateWait func(context.Context) error, fn func() error) error {
	if err := g.breaker.Allow(); err != nil {
		return err
	}
	if rateWait != nil {
		if err := rateWait(ctx); err != nil {
			return err
		}
	}
	err := WithRetry(ctx, g.retry, op, fn)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case IsTransient(err):
		g.breaker.RecordFailure()
	default:
		// Permanent errors and context cancellation don't count against
		// the breaker's transient-failure streak.
	}
	return err
}

func (g *GuardedPort) FetchBars(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]bar.Bar, error) {
	var out []bar.Bar
	err := g.guard(ctx, "fetch_bars", g.limits.WaitGeneral, func() error {
		var innerErr error
		out, innerErr = g.inner.FetchBars(ctx, symbol, timeframe, limit)
		return innerErr
	})
	return out, err
}

func (g *GuardedPort) SubmitMarketOrder(ctx context.Context, intent OrderIntent) (Fill, error) {
	var out Fill
	err := g.guard(ctx, "submit_market_order", g.limits.WaitOrder, func() error {
		var innerErr error
		out, innerErr = g.inner.SubmitMarketOrder(ctx, intent)
		return innerErr
	})
	return out, err
}

func (g *GuardedPort) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := g.guard(ctx, "current_price", g.limits.WaitGeneral, func() error {
		var innerErr error
		out, innerErr = g.inner.CurrentPrice(ctx, symbol)
		return innerErr
	})
	return out, err
}

func (g *GuardedPort) GetRemotePosition(ctx context.Context, symbol string) (*RemotePosition, error) {
	var out *RemotePosition
	err := g.guard(ctx, "get_remote_position", g.limits.WaitGeneral, func() error {
		var innerErr error
		out, innerErr = g.inner.GetRemotePosition(ctx, symbol)
		return innerErr
	})
	return out, err
}

func (g *GuardedPort) Close() error { return g.inner.Close() }
