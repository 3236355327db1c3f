// Package paper implements a paper-trading exchange adapter: it
// synthesizes fills at the latest bar close plus configurable slippage and
// fees, and never issues a network call.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/exchange"
)

// Adapter is a deterministic, in-memory exchange.Port for paper/backtest
// trading. It feeds its own bar history via Feed (pushed by the caller, a
// test harness, or a historical replay loop) and fills at the last bar's
// close adjusted by SlippagePct and FeeRate.
type Adapter struct {
	mu sync.Mutex

	bars        map[string][]bar.Bar
	lastPrice   map[string]decimal.Decimal
	slippagePct decimal.Decimal
	feeRate     decimal.Decimal
	orderSeq    int
}

// New creates a paper adapter with the given slippage and fee rate (both as
// fractions, e.g. 0.0005 for 5bps).
func New(slippagePct, feeRate decimal.Decimal) *Adapter {
	return &Adapter{
		bars:        make(map[string][]bar.Bar),
		lastPrice:   make(map[string]decimal.Decimal),
		slippagePct: slippagePct,
		feeRate:     feeRate,
	}
}

// Feed appends bars to a symbol's history, as a historical replay or live
// forwarder would. Bars must be appended in order.
func (a *Adapter) Feed(symbol string, bars ...bar.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bars[symbol] = append(a.bars[symbol], bars...)
	if len(bars) > 0 {
		a.lastPrice[symbol] = decimal.NewFromFloat(bars[len(bars)-1].Close)
	}
}

// FetchBars returns the last `limit` fed bars for symbol, ignoring
// timeframe (paper adapter is timeframe-agnostic — the feeder controls
// cadence).
func (a *Adapter) FetchBars(ctx context.Context, symbol string, timeframe exchange.Timeframe, limit int) ([]bar.Bar, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	all := a.bars[symbol]
	if len(all) == 0 {
		return nil, exchange.NewPermanent("fetch_bars", fmt.Errorf("paper: no bars fed for %s", symbol))
	}
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]bar.Bar, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// CurrentPrice returns the close of the most recently fed bar.
func (a *Adapter) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.lastPrice[symbol]
	if !ok {
		return decimal.Zero, exchange.NewPermanent("current_price", fmt.Errorf("paper: no price for %s", symbol))
	}
	return p, nil
}

// SubmitMarketOrder synthesizes a fill at the last known price, adjusted by
// slippage (unfavorable to the trader) and charged a proportional fee.
func (a *Adapter) SubmitMarketOrder(ctx context.Context, intent exchange.OrderIntent) (exchange.Fill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	price, ok := a.lastPrice[intent.Symbol]
	if !ok {
		return exchange.Fill{}, exchange.NewPermanent("submit_market_order", fmt.Errorf("paper: no price for %s", intent.Symbol))
	}
	if intent.Quantity.LessThanOrEqual(decimal.Zero) {
		return exchange.Fill{}, exchange.NewPermanent("submit_market_order", fmt.Errorf("paper: quantity must be positive"))
	}

	slip := price.Mul(a.slippagePct)
	fillPrice := price
	if intent.Side == exchange.SideBuy {
		fillPrice = price.Add(slip)
	} else {
		fillPrice = price.Sub(slip)
	}

	notional := fillPrice.Mul(intent.Quantity)
	fee := notional.Mul(a.feeRate).Abs()

	a.orderSeq++
	orderID := fmt.Sprintf("paper-%d", a.orderSeq)

	return exchange.Fill{
		OrderID:        orderID,
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		FilledQuantity: intent.Quantity,
		AveragePrice:   fillPrice,
		Timestamp:      time.Now(),
		Fees:           fee,
	}, nil
}

// GetRemotePosition is unsupported on the paper adapter: there is no remote
// venue to reconcile against.
func (a *Adapter) GetRemotePosition(ctx context.Context, symbol string) (*exchange.RemotePosition, error) {
	return nil, exchange.ErrUnsupported
}

// Close is a no-op; the paper adapter holds no external resources.
func (a *Adapter) Close() error { return nil }

var _ exchange.Port = (*Adapter)(nil)
