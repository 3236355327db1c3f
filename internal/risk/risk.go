// Package risk implements position sizing (fixed-fraction, volatility-
// scaled, half-Kelly), stop/target computation, and the aggregate exposure
// checks applied in order before a candidate trade is approved.
package risk

import (
	"github.com/shopspring/decimal"
)

// SizingAlgorithm selects which position-sizing formula a binding uses.
type SizingAlgorithm string

const (
	FixedFraction    SizingAlgorithm = "fixed_fraction"
	VolatilityScaled SizingAlgorithm = "volatility_scaled"
	KellyFraction    SizingAlgorithm = "kelly_fraction"
)

// RejectReason is a stable code identifying which aggregate check failed.
type RejectReason string

const (
	ReasonNone             RejectReason = ""
	ReasonPerTradeRisk     RejectReason = "per_trade_risk"
	ReasonAggregateRisk    RejectReason = "aggregate_risk"
	ReasonMaxOpenTrades    RejectReason = "max_open_trades"
	ReasonMaxAllocation    RejectReason = "max_allocation"
	ReasonDailyTargetHit   RejectReason = "daily_target_profit_reached"
	ReasonHasOpenPosition  RejectReason = "already_has_open_position"
	ReasonInvalidStop      RejectReason = "invalid_stop"
)

// Params is the resolved risk configuration for one binding: the global
// risk.* settings, possibly overridden per-symbol.
type Params struct {
	Algorithm SizingAlgorithm

	MaxRiskPerTrade decimal.Decimal // fraction of equity
	MaxRiskTotal    decimal.Decimal // fraction of equity
	MaxOpenTrades   int
	MaxAllocation   decimal.Decimal // fraction of equity

	DefaultStopLossPct decimal.Decimal
	TargetProfitPct    decimal.Decimal

	UseATRForStops bool
	ATRMultiplier  decimal.Decimal
	ATRPeriod      int

	UseTrailingStop        bool
	TrailingActivationPct  decimal.Decimal
	TrailingDistancePct    decimal.Decimal

	DailyTargetProfit *decimal.Decimal // nil disables exit-only mode
	ExitOnTarget      bool

	KellyWinProbability float64 // p
	KellyWinLossRatio   float64 // b
	KellyMaxFraction    decimal.Decimal
	KellyHalfFraction   bool // apply a further 0.5x on top of the clipped Kelly fraction; default true
}

// Candidate is the input the Risk Engine sizes and gates for one tick.
type Candidate struct {
	Symbol           string
	EntryPrice       decimal.Decimal
	ATR              decimal.Decimal // decimal.Zero if not using ATR-derived stops
	HasOpenPosition  bool
	DailyRealizedPnL decimal.Decimal
}

// OpenExposure is one open position's dollar risk, quantity*(entry-stop),
// used for the aggregate risk bound check.
type OpenExposure struct {
	Symbol     string
	RiskAmount decimal.Decimal
}

// Decision is the Risk Engine's sizing+gating output.
type Decision struct {
	Approved        bool
	RejectReason    RejectReason
	Size            decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
}

// FixedFractionSize implements size = floor((equity*maxRiskPerTrade) / (entry-stop)).
func FixedFractionSize(equity, maxRiskPerTrade, entry, stop decimal.Decimal) decimal.Decimal {
	denom := entry.Sub(stop)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	riskBudget := equity.Mul(maxRiskPerTrade)
	return riskBudget.Div(denom).Floor()
}

// VolatilityScaledStop computes stop = entry - k*ATR.
func VolatilityScaledStop(entry, atr, k decimal.Decimal) decimal.Decimal {
	return entry.Sub(atr.Mul(k))
}

// VolatilityScaledSize replaces the fixed-fraction denominator with k*ATR.
func VolatilityScaledSize(equity, maxRiskPerTrade, k, atr decimal.Decimal) decimal.Decimal {
	denom := k.Mul(atr)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	riskBudget := equity.Mul(maxRiskPerTrade)
	return riskBudget.Div(denom).Floor()
}

// KellyFractionValue computes f = (p*b - (1-p)) / b, clipped to [0, maxFraction].
// Half-Kelly is applied by the caller: halving happens after the clip, not
// before it.
func KellyFractionValue(p, b float64, maxFraction decimal.Decimal) decimal.Decimal {
	if b == 0 {
		return decimal.Zero
	}
	f := (p*b - (1 - p)) / b
	if f < 0 {
		f = 0
	}
	fd := decimal.NewFromFloat(f)
	if fd.GreaterThan(maxFraction) {
		fd = maxFraction
	}
	return fd
}

// KellySize sizes a position from a (half-)Kelly fraction: size = floor((equity*f)/entry).
func KellySize(equity, f, entry decimal.Decimal) decimal.Decimal {
	if entry.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return equity.Mul(f).Div(entry).Floor()
}

// ComputeStops derives stop-loss and take-profit prices for a long entry,
// either from the fixed default_stop_loss_pct/target_profit_pct or from
// ATR when UseATRForStops is set.
func ComputeStops(params Params, entry, atr decimal.Decimal) (stop, target decimal.Decimal) {
	if params.UseATRForStops && !atr.IsZero() {
		stop = VolatilityScaledStop(entry, atr, params.ATRMultiplier)
	} else {
		stop = entry.Mul(decimal.NewFromInt(1).Sub(params.DefaultStopLossPct))
	}
	target = entry.Mul(decimal.NewFromInt(1).Add(params.TargetProfitPct))
	return stop, target
}

// Size computes the candidate position size and stops for the selected
// sizing algorithm, without running the aggregate checks.
func Size(params Params, equity, entry, atr decimal.Decimal) (size, stop, target decimal.Decimal) {
	stop, target = ComputeStops(params, entry, atr)

	switch params.Algorithm {
	case VolatilityScaled:
		k := params.ATRMultiplier
		size = VolatilityScaledSize(equity, params.MaxRiskPerTrade, k, atr)
	case KellyFraction:
		f := KellyFractionValue(params.KellyWinProbability, params.KellyWinLossRatio, params.KellyMaxFraction)
		if params.KellyHalfFraction {
			f = f.Div(decimal.NewFromInt(2))
		}
		size = KellySize(equity, f, entry)
	default: // FixedFraction
		size = FixedFractionSize(equity, params.MaxRiskPerTrade, entry, stop)
	}
	return size, stop, target
}

// Evaluate runs the full pipeline for one BUY candidate: size the trade,
// then apply the five aggregate checks in a fixed order, short-circuiting
// on the first failure.
func Evaluate(params Params, cand Candidate, equity decimal.Decimal, openExposures []OpenExposure, openPositionCount int) Decision {
	if cand.HasOpenPosition {
		return Decision{Approved: false, RejectReason: ReasonHasOpenPosition}
	}

	size, stop, target := Size(params, equity, cand.EntryPrice, cand.ATR)

	if size.LessThanOrEqual(decimal.Zero) || stop.GreaterThanOrEqual(cand.EntryPrice) {
		return Decision{Approved: false, RejectReason: ReasonInvalidStop}
	}

	perTradeRisk := size.Mul(cand.EntryPrice.Sub(stop))

	// 1. Per-trade risk <= max_risk_per_trade of equity.
	if !equity.IsZero() && perTradeRisk.Div(equity).GreaterThan(params.MaxRiskPerTrade) {
		return Decision{Approved: false, RejectReason: ReasonPerTradeRisk}
	}

	// 2. Sum of per-trade risks across open positions + candidate <= max_risk_total.
	total := perTradeRisk
	for _, e := range openExposures {
		total = total.Add(e.RiskAmount)
	}
	if !equity.IsZero() && total.Div(equity).GreaterThan(params.MaxRiskTotal) {
		return Decision{Approved: false, RejectReason: ReasonAggregateRisk}
	}

	// 3. Open positions count < max_open_trades.
	if params.MaxOpenTrades > 0 && openPositionCount >= params.MaxOpenTrades {
		return Decision{Approved: false, RejectReason: ReasonMaxOpenTrades}
	}

	// 4. Candidate notional <= max_allocation * equity.
	notional := size.Mul(cand.EntryPrice)
	if !equity.IsZero() && notional.GreaterThan(equity.Mul(params.MaxAllocation)) {
		return Decision{Approved: false, RejectReason: ReasonMaxAllocation}
	}

	// 5. Daily realized PnL has not reached an optional daily_target_profit
	// that enables exit-only mode.
	if params.ExitOnTarget && params.DailyTargetProfit != nil {
		if !equity.IsZero() && cand.DailyRealizedPnL.Div(equity).GreaterThanOrEqual(*params.DailyTargetProfit) {
			return Decision{Approved: false, RejectReason: ReasonDailyTargetHit}
		}
	}

	return Decision{Approved: true, Size: size, StopLossPrice: stop, TakeProfitPrice: target}
}
