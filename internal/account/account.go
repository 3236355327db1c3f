// Package account tracks the engine's aggregate cash/equity/PnL state.
// It is the single source of truth the Risk Engine reads when sizing a
// trade and the trading loop writes to after every fill.
package account

import (
	"sync"

	"github.com/shopspring/decimal"
)

// State is derived account state: cash balance, equity, realized and
// unrealized PnL. Refreshed after each fill.
type State struct {
	mu sync.RWMutex

	cash          decimal.Decimal
	realized      decimal.Decimal
	dailyRealized decimal.Decimal
	unrealized    map[string]decimal.Decimal
}

// New creates account state seeded with an initial cash balance.
func New(initialCash decimal.Decimal) *State {
	return &State{cash: initialCash, unrealized: make(map[string]decimal.Decimal)}
}

// Snapshot is an immutable view of account state for readers (risk engine,
// metrics, notifier).
type Snapshot struct {
	CashBalance      decimal.Decimal
	Equity           decimal.Decimal
	RealizedPnL      decimal.Decimal
	DailyRealizedPnL decimal.Decimal
	UnrealizedPnL    decimal.Decimal
}

// Snapshot returns a consistent read of the current account state.
// Equity = cash + unrealized PnL summed across open symbols.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unrealized := decimal.Zero
	for _, v := range s.unrealized {
		unrealized = unrealized.Add(v)
	}
	return Snapshot{
		CashBalance:      s.cash,
		Equity:           s.cash.Add(unrealized),
		RealizedPnL:      s.realized,
		DailyRealizedPnL: s.dailyRealized,
		UnrealizedPnL:    unrealized,
	}
}

// ApplyRealized books a realized gain/loss (e.g. on position close, minus
// fees) into cash and both realized PnL counters.
func (s *State) ApplyRealized(pnl, fees decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash = s.cash.Add(pnl).Sub(fees)
	s.realized = s.realized.Add(pnl)
	s.dailyRealized = s.dailyRealized.Add(pnl)
}

// ResetDaily zeroes the daily realized PnL counter. The engine calls this
// at the UTC day boundary so the daily_target_profit gate measures one
// calendar day at a time.
func (s *State) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyRealized = decimal.Zero
}

// ApplyEntry debits the entry fill's fees. The position's notional stays
// counted in equity through the unrealized mark, so cash only moves by
// what actually left the account.
func (s *State) ApplyEntry(fees decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash = s.cash.Sub(fees)
}

// SetUnrealized replaces one symbol's mark-to-market unrealized PnL; each
// trading loop marks its own symbol on its own ticks. A zero mark removes
// the entry (position closed).
func (s *State) SetUnrealized(symbol string, unrealized decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unrealized.IsZero() {
		delete(s.unrealized, symbol)
		return
	}
	s.unrealized[symbol] = unrealized
}
