package exchange

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig controls the exponential-backoff-with-jitter retry wrapper.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is N=3 attempts with a 250ms base delay, doubling up
// to a 5s ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// WithRetry runs fn, retrying up to cfg.MaxAttempts-1 additional times on a
// TransientError with exponential backoff and full jitter. A PermanentError
// or any non-exchange error is returned immediately without retry. The last
// error observed is returned if every attempt fails.
func WithRetry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(cfg, attempt)
		log.Warn().Str("op", op).Int("attempt", attempt+1).Dur("delay", delay).Err(lastErr).Msg("exchange: retrying after transient error")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = 5 * time.Second
	}
	exp := base << attempt
	if exp <= 0 || exp > max {
		exp = max
	}
	// Full jitter: uniform random in [0, exp].
	return time.Duration(rand.Int63n(int64(exp) + 1))
}
