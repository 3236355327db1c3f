package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseParams() Params {
	return Params{
		Algorithm:          FixedFraction,
		MaxRiskPerTrade:    dec("0.01"),
		MaxRiskTotal:       dec("0.05"),
		MaxOpenTrades:      5,
		MaxAllocation:      dec("1"),
		DefaultStopLossPct: dec("0.03"),
		TargetProfitPct:    dec("0.05"),
	}
}

// Fixed-fraction sizing: size = floor((equity*risk) / (entry-stop)).
func TestFixedFractionSizing(t *testing.T) {
	params := baseParams()
	equity := dec("1000")
	entry := dec("1.06")

	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: entry}, equity, nil, 0)

	require.True(t, decision.Approved)
	// floor((1000*0.01)/(1.06*0.03)) = floor(314.46...) = 314.
	assert.True(t, decision.Size.Equal(dec("314")), "expected size 314, got %s", decision.Size)
	assert.InDelta(t, 1.0282, decision.StopLossPrice.InexactFloat64(), 1e-4)
	assert.InDelta(t, 1.113, decision.TakeProfitPrice.InexactFloat64(), 1e-4)
}

// Aggregate risk gate: a second candidate whose risk pushes the
// total past max_risk_total is rejected.
func TestAggregateRiskGate(t *testing.T) {
	params := baseParams()
	params.MaxRiskPerTrade = dec("0.05")
	params.MaxRiskTotal = dec("0.05")
	// Raise the allocation cap so the first candidate's ~1600 notional
	// passes and only the aggregate-risk check can reject the second.
	params.MaxAllocation = dec("2")
	equity := dec("1000")

	first := Evaluate(params, Candidate{Symbol: "AAA", EntryPrice: dec("100")}, equity, nil, 0)
	require.True(t, first.Approved)

	firstExposure := OpenExposure{Symbol: "AAA", RiskAmount: first.Size.Mul(dec("100").Sub(first.StopLossPrice))}

	second := Evaluate(params, Candidate{Symbol: "BBB", EntryPrice: dec("100")}, equity, []OpenExposure{firstExposure}, 1)
	require.False(t, second.Approved)
	assert.Equal(t, ReasonAggregateRisk, second.RejectReason)
}

func TestAlreadyOpenPositionRejected(t *testing.T) {
	params := baseParams()
	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("1.06"), HasOpenPosition: true}, dec("1000"), nil, 0)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonHasOpenPosition, decision.RejectReason)
}

func TestMaxOpenTradesRejected(t *testing.T) {
	params := baseParams()
	params.MaxOpenTrades = 1
	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("1.06")}, dec("1000"), nil, 1)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonMaxOpenTrades, decision.RejectReason)
}

func TestMaxAllocationRejected(t *testing.T) {
	params := baseParams()
	params.MaxAllocation = dec("0.001")
	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("1.06")}, dec("1000"), nil, 0)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonMaxAllocation, decision.RejectReason)
}

func TestDailyTargetProfitEnablesExitOnly(t *testing.T) {
	params := baseParams()
	params.ExitOnTarget = true
	target := dec("0.02")
	params.DailyTargetProfit = &target

	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("1.06"), DailyRealizedPnL: dec("25")}, dec("1000"), nil, 0)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonDailyTargetHit, decision.RejectReason)
}

func TestVolatilityScaledSizing(t *testing.T) {
	params := baseParams()
	params.Algorithm = VolatilityScaled
	params.UseATRForStops = true
	params.ATRMultiplier = dec("2")

	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("100"), ATR: dec("1")}, dec("1000"), nil, 0)
	require.True(t, decision.Approved)
	// stop = 100 - 2*1 = 98; size = floor((1000*0.01)/2) = 5
	assert.True(t, decision.StopLossPrice.Equal(dec("98")))
	assert.True(t, decision.Size.Equal(dec("5")))
}

func TestKellySizingClipsAtMaxFraction(t *testing.T) {
	params := baseParams()
	params.Algorithm = KellyFraction
	params.KellyWinProbability = 0.9
	params.KellyWinLossRatio = 2.0
	params.KellyMaxFraction = dec("0.1")
	params.KellyHalfFraction = true

	// raw f = (0.9*2 - 0.1)/2 = 0.85, clipped to 0.1, halved to 0.05;
	// size = floor(1000*0.05/100) = 0, so the candidate is rejected for an
	// unusable (zero) size rather than approved with a zero-size order.
	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("100")}, dec("1000"), nil, 0)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonInvalidStop, decision.RejectReason)
}

func TestKellySizingApproves(t *testing.T) {
	params := baseParams()
	params.Algorithm = KellyFraction
	params.KellyWinProbability = 0.9
	params.KellyWinLossRatio = 2.0
	params.KellyMaxFraction = dec("0.1")
	params.KellyHalfFraction = true

	// Larger equity makes the same 0.05 fraction yield a non-zero size.
	decision := Evaluate(params, Candidate{Symbol: "XRPUSDT", EntryPrice: dec("100")}, dec("100000"), nil, 0)
	require.True(t, decision.Approved)
	assert.True(t, decision.Size.Equal(dec("50")))
}

func TestComputeStopsATRPath(t *testing.T) {
	params := baseParams()
	params.UseATRForStops = true
	params.ATRMultiplier = dec("2")
	stop, target := ComputeStops(params, dec("100"), dec("1.5"))
	assert.True(t, stop.Equal(dec("97")))
	assert.True(t, target.Equal(dec("105")))
}
