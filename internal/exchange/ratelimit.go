package exchange

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiters bundles the two token buckets a venue needs: one sized from
// requests_per_minute for general calls (bar fetch, price, position), and a
// separate one for order submission per the venue's order rate limit.
type RateLimiters struct {
	General *rate.Limiter
	Orders  *rate.Limiter
}

// NewRateLimiters builds token buckets from requests-per-minute figures.
// Burst is capped at the per-second rate, floored at 1.
func NewRateLimiters(requestsPerMinute, orderRateLimit int) *RateLimiters {
	return &RateLimiters{
		General: rate.NewLimiter(perMinuteToPerSecond(requestsPerMinute), burstFor(requestsPerMinute)),
		Orders:  rate.NewLimiter(perMinuteToPerSecond(orderRateLimit), burstFor(orderRateLimit)),
	}
}

func perMinuteToPerSecond(perMinute int) rate.Limit {
	if perMinute <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(perMinute) / 60.0)
}

func burstFor(perMinute int) int {
	b := perMinute / 60
	if b < 1 {
		b = 1
	}
	return b
}

// WaitGeneral blocks until a general-call token is available or ctx is done.
func (r *RateLimiters) WaitGeneral(ctx context.Context) error {
	return r.General.Wait(ctx)
}

// WaitOrder blocks until an order-call token is available or ctx is done.
func (r *RateLimiters) WaitOrder(ctx context.Context) error {
	return r.Orders.Wait(ctx)
}

// ReserveGeneralTimeout blocks up to `timeout` for a general-call token.
func (r *RateLimiters) ReserveGeneralTimeout(ctx context.Context, timeout time.Duration) error {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.WaitGeneral(c)
}
