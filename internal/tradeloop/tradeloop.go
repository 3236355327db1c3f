// Package tradeloop implements the per-binding trading loop: fetch bars,
// update the Position Book, run the bound strategy, gate through the risk
// engine, and submit orders. One Loop instance exists per (symbol,
// timeframe, strategy) binding and the scheduler never runs two of its
// ticks concurrently.
package tradeloop

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/account"
	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/exchange"
	"github.com/Inkedup1114/bitrader/internal/indicator"
	"github.com/Inkedup1114/bitrader/internal/position"
	"github.com/Inkedup1114/bitrader/internal/risk"
	"github.com/Inkedup1114/bitrader/internal/strategy"
)

// Config is the resolved per-binding configuration the Loop needs beyond
// its collaborators.
type Config struct {
	Symbol         string
	Timeframe      exchange.Timeframe
	WarmupBars     int
	RiskParams     risk.Params
	TrailingParams position.TrailingParams
	// FixedQuantity, when set, overrides the risk engine's computed size
	// (the binding's quantity? field). The risk checks still run and can
	// reject the entry, but they evaluate the risk-computed size; the fixed
	// quantity itself is not checked.
	FixedQuantity *decimal.Decimal
}

// Loop is one binding's trading loop: one instance per (symbol, timeframe,
// strategy) triple, invoked once per tick by the scheduler.
type Loop struct {
	cfg   Config
	port  exchange.Port
	strat strategy.Strategy
	book  *position.Book
	acct  *account.State
	bus   *eventbus.Bus
}

// New constructs a Loop from its collaborators.
func New(cfg Config, port exchange.Port, strat strategy.Strategy, book *position.Book, acct *account.State, bus *eventbus.Bus) *Loop {
	return &Loop{cfg: cfg, port: port, strat: strat, book: book, acct: acct, bus: bus}
}

func (l *Loop) publish(topic eventbus.Topic, correlationID string, payload any) {
	l.bus.Publish(eventbus.Event{
		Topic:         topic,
		Timestamp:     time.Now().UnixNano(),
		Symbol:        l.cfg.Symbol,
		CorrelationID: correlationID,
		Payload:       payload,
	})
}

// BarFetchedPayload is published after a successful fetch.
type BarFetchedPayload struct {
	Count int
}

// BarRejectedPayload is published when window validation fails.
type BarRejectedPayload struct {
	Reason string
}

// SignalGeneratedPayload is published after the strategy runs.
type SignalGeneratedPayload struct {
	Action strategy.Action
}

// RiskRejectedPayload is published when the risk engine rejects a candidate.
type RiskRejectedPayload struct {
	Reason risk.RejectReason
}

// OrderFailedPayload is published when an order submission fails.
type OrderFailedPayload struct {
	Reason string
}

// PositionOpenedPayload / PositionClosedPayload carry the resulting position.
type PositionOpenedPayload struct {
	Position position.Position
}

type PositionClosedPayload struct {
	Position  position.Position
	RealizedPnL decimal.Decimal
}

// TrailingAdjustedPayload is published whenever UpdateTrailing ratchets the
// stop.
type TrailingAdjustedPayload struct {
	NewStopLossPrice decimal.Decimal
}

// HeartbeatTickPayload summarizes the outcome of one tick.
type HeartbeatTickPayload struct {
	Outcome string
}

// EngineFaultPayload is published when a tick panics inside the guarded
// region; the scheduler quarantines the binding until operator
// intervention.
type EngineFaultPayload struct {
	Reason string
}

// Tick runs the nine-step sequence once and reports whether the tick
// faulted. Exchange failures never fault: transient errors surface as
// OrderFailed and leave state unchanged, and the next tick retries
// normally. A panic inside the tick is caught here, converted to an
// EngineFault event, and returned as fault=true so the scheduler can
// quarantine the binding.
func (l *Loop) Tick(ctx context.Context) (fault bool) {
	correlationID := eventbus.NewCorrelationID()
	defer func() {
		if r := recover(); r != nil {
			fault = true
			log.Error().Str("symbol", l.cfg.Symbol).Interface("panic", r).Msg("tradeloop: tick panicked, binding will be quarantined")
			l.publish(eventbus.TopicEngineFault, correlationID, EngineFaultPayload{Reason: fmt.Sprint(r)})
		}
	}()

	// 1. Fetch bars.
	bars, err := l.port.FetchBars(ctx, l.cfg.Symbol, l.cfg.Timeframe, l.cfg.WarmupBars)
	if err != nil {
		log.Warn().Err(err).Str("symbol", l.cfg.Symbol).Msg("tradeloop: fetch bars failed, skipping tick")
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "fetch_failed"})
		return
	}
	l.publish(eventbus.TopicBarFetched, correlationID, BarFetchedPayload{Count: len(bars)})

	// 2. Validate.
	if err := bar.ValidateWindow(bars); err != nil {
		l.publish(eventbus.TopicBarRejected, correlationID, BarRejectedPayload{Reason: err.Error()})
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "bar_rejected"})
		return
	}
	lastClose := decimal.NewFromFloat(bars[len(bars)-1].Close)

	// 3. Update Position Book with latest close: trailing + exit evaluation.
	if pos, ok := l.book.Get(l.cfg.Symbol); ok {
		if pos.Status == position.StatusClosing {
			// A previous tick's exit order failed; retry the recorded intent.
			if pending, ok := l.book.PendingExit(l.cfg.Symbol); ok {
				l.handleExit(ctx, correlationID, pending)
				return
			}
		}

		adjusted, err := l.book.UpdateTrailing(l.cfg.Symbol, lastClose, l.cfg.TrailingParams)
		if err == nil && adjusted {
			pos, _ := l.book.Get(l.cfg.Symbol)
			l.publish(eventbus.TopicTrailingAdjusted, correlationID, TrailingAdjustedPayload{NewStopLossPrice: pos.StopLossPrice})
		}

		exit, err := l.book.EvaluateExits(l.cfg.Symbol, lastClose, false)
		if err == nil && exit != nil {
			l.handleExit(ctx, correlationID, *exit)
			return
		}

		// 4. No exit fired and a position remains open: mark to market,
		// no pyramiding.
		if pos, ok := l.book.Get(l.cfg.Symbol); ok {
			l.acct.SetUnrealized(l.cfg.Symbol, lastClose.Sub(pos.EntryPrice).Mul(pos.Size))
		}
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "position_held"})
		return
	}

	// 5. Invoke the bound strategy.
	sig, err := l.strat.OnBar(bars)
	if err != nil {
		log.Warn().Err(err).Str("symbol", l.cfg.Symbol).Msg("tradeloop: strategy failed, treating as HOLD")
		sig = strategy.Signal{Action: strategy.ActionHold}
	}
	l.publish(eventbus.TopicSignalGenerated, correlationID, SignalGeneratedPayload{Action: sig.Action})

	// 6. HOLD or SELL-with-no-position both end the tick here.
	if sig.Action != strategy.ActionBuy {
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "no_entry"})
		return
	}

	// 7. Risk Engine sizes and gates the candidate.
	snap := l.acct.Snapshot()
	atr := decimal.Zero
	if l.cfg.RiskParams.UseATRForStops {
		if v, err := indicator.ATR(bars, l.cfg.RiskParams.ATRPeriod); err == nil {
			atr = decimal.NewFromFloat(v)
		}
	}
	cand := risk.Candidate{
		Symbol:           l.cfg.Symbol,
		EntryPrice:       lastClose,
		ATR:              atr,
		DailyRealizedPnL: snap.DailyRealizedPnL,
	}
	decision := risk.Evaluate(l.cfg.RiskParams, cand, snap.Equity, l.openExposures(), l.book.OpenCount())
	if !decision.Approved {
		l.publish(eventbus.TopicRiskRejected, correlationID, RiskRejectedPayload{Reason: decision.RejectReason})
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "risk_rejected"})
		return
	}
	size := decision.Size
	if l.cfg.FixedQuantity != nil && l.cfg.FixedQuantity.GreaterThan(decimal.Zero) {
		size = *l.cfg.FixedQuantity
	}

	// 8. Submit market BUY.
	intent := exchange.OrderIntent{
		Symbol:         l.cfg.Symbol,
		Side:           exchange.SideBuy,
		Quantity:       size,
		Reason:         exchange.ReasonEntry,
		ReferencePrice: lastClose,
		ClientOrderID:  correlationID,
	}
	fill, err := l.port.SubmitMarketOrder(ctx, intent)
	if err != nil {
		l.publish(eventbus.TopicOrderFailed, correlationID, OrderFailedPayload{Reason: err.Error()})
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "order_failed"})
		return
	}
	l.publish(eventbus.TopicOrderSubmitted, correlationID, fill)

	pos, err := l.book.Open(l.cfg.Symbol, fill.AveragePrice, fill.FilledQuantity, decision.StopLossPrice, decision.TakeProfitPrice, fill.OrderID)
	if err != nil {
		log.Error().Err(err).Str("symbol", l.cfg.Symbol).Msg("tradeloop: position book open failed after confirmed fill")
		l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "open_failed"})
		return
	}
	l.acct.ApplyEntry(fill.Fees)
	l.publish(eventbus.TopicPositionOpened, correlationID, PositionOpenedPayload{Position: pos})

	// 9. Heartbeat.
	l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "position_opened"})
	return
}

// openExposures projects the current Position Book into the per-position
// dollar risks the aggregate risk bound sums over.
func (l *Loop) openExposures() []risk.OpenExposure {
	snapshot := l.book.Snapshot()
	out := make([]risk.OpenExposure, 0, len(snapshot))
	for sym, pos := range snapshot {
		if pos.Status == position.StatusClosed {
			continue
		}
		out = append(out, risk.OpenExposure{
			Symbol:     sym,
			RiskAmount: pos.Size.Mul(pos.EntryPrice.Sub(pos.StopLossPrice)),
		})
	}
	return out
}

func (l *Loop) handleExit(ctx context.Context, correlationID string, exit position.ExitIntent) {
	if err := l.book.MarkClosing(exit.Symbol, exit); err != nil {
		log.Warn().Err(err).Str("symbol", exit.Symbol).Msg("tradeloop: mark-closing failed")
	}

	switch exit.Reason {
	case exchange.ReasonStopLoss:
		l.publish(eventbus.TopicStopTriggered, correlationID, exit)
	case exchange.ReasonTakeProfit:
		l.publish(eventbus.TopicTakeProfitTriggered, correlationID, exit)
	}

	intent := exchange.OrderIntent{
		Symbol:         exit.Symbol,
		Side:           exchange.SideSell,
		Quantity:       exit.Size,
		Reason:         exit.Reason,
		ReferencePrice: exit.ExitPrice,
		ClientOrderID:  correlationID,
	}
	fill, err := l.port.SubmitMarketOrder(ctx, intent)
	if err != nil {
		// The position stays CLOSING with its intent recorded; the next
		// tick resubmits the exit instead of evaluating fresh entries.
		l.publish(eventbus.TopicOrderFailed, correlationID, OrderFailedPayload{Reason: err.Error()})
		return
	}

	pos, err := l.book.Close(exit.Symbol, fill)
	if err != nil {
		log.Error().Err(err).Str("symbol", exit.Symbol).Msg("tradeloop: position book close failed after confirmed fill")
		return
	}

	realized := fill.AveragePrice.Sub(pos.EntryPrice).Mul(fill.FilledQuantity)
	l.acct.SetUnrealized(exit.Symbol, decimal.Zero)
	l.acct.ApplyRealized(realized, fill.Fees)
	l.publish(eventbus.TopicPositionClosed, correlationID, PositionClosedPayload{Position: pos, RealizedPnL: realized})
	l.publish(eventbus.TopicHeartbeatTick, correlationID, HeartbeatTickPayload{Outcome: "position_closed"})
}
