// Package exchange defines the Exchange Port: the abstract interface for
// market data and order placement that every venue adapter (paper,
// bitunix) implements, plus the retry/circuit-breaker/rate-limit wrappers
// applied uniformly in front of any adapter.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/bar"
)

// Timeframe is a venue-agnostic bar interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the wall-clock length of one bar at this timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderReason records why an order was issued.
type OrderReason string

const (
	ReasonEntry      OrderReason = "entry"
	ReasonStopLoss   OrderReason = "stop_loss"
	ReasonTakeProfit OrderReason = "take_profit"
	ReasonTrailing   OrderReason = "trailing"
	ReasonManual     OrderReason = "manual"
)

// OrderIntent is produced by the Trading Loop and consumed by the Exchange
// Port. Quantity must be > 0.
type OrderIntent struct {
	Symbol         string
	Side           OrderSide
	Quantity       decimal.Decimal
	Reason         OrderReason
	ReferencePrice decimal.Decimal
	ClientOrderID  string
}

// Fill is the exchange-confirmed execution of an OrderIntent.
type Fill struct {
	OrderID        string
	Symbol         string
	Side           OrderSide
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.Decimal
	Timestamp      time.Time
	Fees           decimal.Decimal
}

// RemotePosition is the venue's view of an open position, used for
// reconciliation against the local Position Book.
type RemotePosition struct {
	Symbol     string
	Side       OrderSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
}

// Port is the abstract interface for market data and order placement. Every
// call may fail with a TransientError (network, rate-limit, 5xx) or a
// PermanentError (auth, unknown symbol, malformed request); callers should
// use errors.As to distinguish the two.
type Port interface {
	// FetchBars returns an ordered sequence of bars ending at the most
	// recent closed bar.
	FetchBars(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]bar.Bar, error)
	// SubmitMarketOrder places a market order and returns its fill.
	SubmitMarketOrder(ctx context.Context, intent OrderIntent) (Fill, error)
	// CurrentPrice returns a monotonic best-effort last traded price.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// GetRemotePosition returns the venue's view of an open position, or
	// nil if none is open. Optional: adapters may return ErrUnsupported.
	GetRemotePosition(ctx context.Context, symbol string) (*RemotePosition, error)
	// Close releases adapter resources (HTTP transports, WS connections).
	Close() error
}
