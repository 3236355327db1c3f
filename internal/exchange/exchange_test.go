package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inkedup1114/bitrader/internal/bar"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	err := WithRetry(context.Background(), cfg, "test", func() error {
		attempts++
		if attempts < 3 {
			return NewTransient("test", errors.New("boom"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
	err := WithRetry(context.Background(), cfg, "test", func() error {
		attempts++
		return NewPermanent("test", errors.New("auth failed"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
}

func TestWithRetryExhaustion(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	err := WithRetry(context.Background(), cfg, "test", func() error {
		attempts++
		return NewTransient("test", errors.New("still down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, IsTransient(err))
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("testvenue", 2, 20*time.Millisecond)
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	err := cb.Allow()
	require.Error(t, err)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
}

func TestCircuitBreakerHalfOpenProbeThenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("testvenue", 1, 5*time.Millisecond)
	cb.RecordFailure() // trips open
	require.Error(t, cb.Allow())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, cb.Allow()) // half-open probe allowed
	require.Error(t, cb.Allow())   // concurrent probe rejected

	cb.RecordSuccess()
	require.NoError(t, cb.Allow())
	assert.Equal(t, "closed", cb.State())
}

type fakePort struct {
	bars     []bar.Bar
	fetchErr error
	calls    int
}

func (f *fakePort) FetchBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]bar.Bar, error) {
	f.calls++
	if f.fetchErr != nil {
		err := f.fetchErr
		f.fetchErr = nil
		return nil, err
	}
	return f.bars, nil
}
func (f *fakePort) SubmitMarketOrder(ctx context.Context, intent OrderIntent) (Fill, error) {
	return Fill{}, nil
}
func (f *fakePort) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakePort) GetRemotePosition(ctx context.Context, symbol string) (*RemotePosition, error) {
	return nil, nil
}
func (f *fakePort) Close() error { return nil }

func TestGuardedPortRetriesTransientFetch(t *testing.T) {
	inner := &fakePort{bars: []bar.Bar{{Close: 1}}, fetchErr: NewTransient("fetch_bars", errors.New("timeout"))}
	guard := NewGuardedPort(inner, "testvenue",
		RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		NewCircuitBreaker("testvenue", 5, time.Second),
		NewRateLimiters(6000, 6000),
	)

	got, err := guard.FetchBars(context.Background(), "XRPUSDT", TF15m, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, inner.calls)
}
