// Package position implements the Position Book: the single-writer,
// in-memory store of open positions keyed by symbol. It applies fills,
// maintains the trailing-stop state machine, and evaluates exit
// conditions in priority order (stop-loss, then take-profit, then a
// strategy-driven sell) at most once per symbol per tick.
package position

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/exchange"
)

// Side is the direction of an open position. Long-only for this engine.
type Side string

const (
	SideLong Side = "long"
)

// TrailingState is the three-state trailing-stop machine.
type TrailingState string

const (
	TrailingInactive TrailingState = "inactive"
	TrailingArmed    TrailingState = "armed"
	TrailingTracking TrailingState = "tracking"
)

// Status is the position's lifecycle state.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
)

// Position is one open (or recently closed) long position in a symbol.
// Ownership is exclusive to the Book; callers outside this package only
// ever see copies returned by Snapshot.
type Position struct {
	Symbol          string
	Side            Side
	EntryPrice      decimal.Decimal
	Size            decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	TrailingState   TrailingState
	PeakPrice       decimal.Decimal
	EntryFillID     string
	Status          Status
	// PendingExit records the exit intent of a CLOSING position so a
	// failed exit order can be rebuilt and retried on a later tick.
	PendingExit *ExitIntent
}

// ExitIntent is returned by EvaluateExits when a position's stop, target,
// or a strategy-driven sell should be acted on this tick.
type ExitIntent struct {
	Symbol     string
	Reason     exchange.OrderReason
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
}

// TrailingParams configures the trailing-stop machine for one binding.
// Zero value disables trailing (UseTrailing == false).
type TrailingParams struct {
	UseTrailing    bool
	ActivationPct  decimal.Decimal // unrealized gain fraction that arms trailing
	DistancePct    decimal.Decimal // stop = peak * (1 - DistancePct) once tracking
}

var one = decimal.NewFromInt(1)

// ErrUnknownSymbol is returned by operations on a symbol with no open
// position.
type ErrUnknownSymbol struct{ Symbol string }

func (e ErrUnknownSymbol) Error() string {
	return fmt.Sprintf("position: no open position for %s", e.Symbol)
}

// ErrAlreadyOpen is returned by Open when a position already exists for
// the symbol; the book enforces at most one open position per symbol.
type ErrAlreadyOpen struct{ Symbol string }

func (e ErrAlreadyOpen) Error() string {
	return fmt.Sprintf("position: %s already has an open position", e.Symbol)
}

// Book is the single-writer position store keyed by symbol.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// New creates an empty Position Book.
func New() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Open creates a new OPEN position from an entry fill. Returns
// ErrAlreadyOpen if the symbol already has an open (non-closed) position.
func (b *Book) Open(symbol string, entryPrice, size, stopLoss, takeProfit decimal.Decimal, entryFillID string) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.positions[symbol]; ok && existing.Status != StatusClosed {
		return Position{}, ErrAlreadyOpen{Symbol: symbol}
	}

	pos := &Position{
		Symbol:          symbol,
		Side:            SideLong,
		EntryPrice:      entryPrice,
		Size:            size,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		TrailingState:   TrailingInactive,
		PeakPrice:       entryPrice,
		EntryFillID:     entryFillID,
		Status:          StatusOpen,
	}
	b.positions[symbol] = pos
	return *pos, nil
}

// ApplyFill records a partial or full fill against an already-open
// position, adjusting its size. A fill that brings size to zero or below
// transitions the position to CLOSED.
func (b *Book) ApplyFill(symbol string, fill exchange.Fill) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok || pos.Status == StatusClosed {
		return ErrUnknownSymbol{Symbol: symbol}
	}

	switch fill.Side {
	case exchange.SideSell:
		pos.Size = pos.Size.Sub(fill.FilledQuantity)
		if pos.Size.LessThanOrEqual(decimal.Zero) {
			pos.Status = StatusClosed
		}
	case exchange.SideBuy:
		pos.Size = pos.Size.Add(fill.FilledQuantity)
	}
	return nil
}

// MarkClosing transitions a position to CLOSING once its exit order has
// been issued, recording the intent so it can be resubmitted if the order
// fails. Idempotent for a position already CLOSING on the same intent, so
// a retry pass can call it again.
func (b *Book) MarkClosing(symbol string, intent ExitIntent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok || pos.Status == StatusClosed {
		return ErrUnknownSymbol{Symbol: symbol}
	}
	pos.Status = StatusClosing
	pos.PendingExit = &intent
	return nil
}

// PendingExit returns the recorded exit intent for a CLOSING position.
func (b *Book) PendingExit(symbol string) (ExitIntent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	if !ok || pos.Status != StatusClosing || pos.PendingExit == nil {
		return ExitIntent{}, false
	}
	return *pos.PendingExit, true
}

// Close finalizes a position on its exit fill, removing it from active
// tracking. The caller publishes the PositionClosed event from the
// returned snapshot.
func (b *Book) Close(symbol string, fill exchange.Fill) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		return Position{}, ErrUnknownSymbol{Symbol: symbol}
	}
	pos.Status = StatusClosed
	snapshot := *pos
	delete(b.positions, symbol)
	return snapshot, nil
}

// UpdateTrailing advances the trailing-stop state machine for symbol given
// the latest close price. Inactive until unrealized gain reaches
// ActivationPct, then armed, then tracking — peak_price updates and the
// stop ratchets up only, never down. Returns true if the stop moved (a
// TrailingAdjusted event should be published).
func (b *Book) UpdateTrailing(symbol string, lastPrice decimal.Decimal, params TrailingParams) (adjusted bool, err error) {
	if !params.UseTrailing {
		return false, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok || pos.Status != StatusOpen {
		return false, ErrUnknownSymbol{Symbol: symbol}
	}

	if lastPrice.GreaterThan(pos.PeakPrice) {
		pos.PeakPrice = lastPrice
	}

	gain := decimal.Zero
	if !pos.EntryPrice.IsZero() {
		gain = lastPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	}

	switch pos.TrailingState {
	case TrailingInactive:
		if gain.GreaterThanOrEqual(params.ActivationPct) {
			pos.TrailingState = TrailingArmed
		}
		return false, nil
	case TrailingArmed:
		pos.TrailingState = TrailingTracking
		fallthrough
	case TrailingTracking:
		candidate := pos.PeakPrice.Mul(one.Sub(params.DistancePct))
		if candidate.GreaterThan(pos.StopLossPrice) {
			pos.StopLossPrice = candidate
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

// EvaluateExits checks, in priority order, whether the current price
// triggers a stop-loss, a take-profit, or — via strategySell — a
// strategy-driven sell. At most one ExitIntent is returned per call.
func (b *Book) EvaluateExits(symbol string, lastPrice decimal.Decimal, strategySell bool) (*ExitIntent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, ok := b.positions[symbol]
	if !ok || pos.Status != StatusOpen {
		return nil, ErrUnknownSymbol{Symbol: symbol}
	}

	if lastPrice.LessThanOrEqual(pos.StopLossPrice) {
		// A triggered stop executes at the resting stop price, not the
		// observed close that crossed it.
		return &ExitIntent{Symbol: symbol, Reason: exchange.ReasonStopLoss, ExitPrice: pos.StopLossPrice, Size: pos.Size}, nil
	}
	if lastPrice.GreaterThanOrEqual(pos.TakeProfitPrice) {
		return &ExitIntent{Symbol: symbol, Reason: exchange.ReasonTakeProfit, ExitPrice: pos.TakeProfitPrice, Size: pos.Size}, nil
	}
	if strategySell {
		return &ExitIntent{Symbol: symbol, Reason: exchange.ReasonManual, ExitPrice: lastPrice, Size: pos.Size}, nil
	}
	return nil, nil
}

// Get returns a snapshot of the open position for symbol, if any.
func (b *Book) Get(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot returns a copy of every tracked position, keyed by symbol. The
// caller receives independent Position values — mutating the returned map
// cannot affect the book.
func (b *Book) Snapshot() map[string]Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Position, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = *pos
	}
	return out
}

// OpenCount returns the number of positions currently OPEN or CLOSING.
func (b *Book) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, pos := range b.positions {
		if pos.Status != StatusClosed {
			n++
		}
	}
	return n
}
