package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inkedup1114/bitrader/internal/exchange"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOpenRejectsDuplicateSymbol(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("1.06"), dec("3"), dec("1.0282"), dec("1.113"), "fill-1")
	require.NoError(t, err)

	_, err = b.Open("XRPUSDT", dec("1.07"), dec("3"), dec("1.03"), dec("1.12"), "fill-2")
	var already ErrAlreadyOpen
	assert.ErrorAs(t, err, &already)
}

func TestApplyFillClosesOnFullSell(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("1.06"), dec("3"), dec("1.0282"), dec("1.113"), "fill-1")
	require.NoError(t, err)

	err = b.ApplyFill("XRPUSDT", exchange.Fill{Side: exchange.SideSell, FilledQuantity: dec("3")})
	require.NoError(t, err)

	pos, ok := b.Get("XRPUSDT")
	require.True(t, ok)
	assert.Equal(t, StatusClosed, pos.Status)
}

func TestTrailingStopProgression(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("1.06"), dec("3"), dec("1.0282"), dec("1.113"), "fill-1")
	require.NoError(t, err)

	params := TrailingParams{UseTrailing: true, ActivationPct: dec("0.02"), DistancePct: dec("0.015")}

	// 1.082: (1.082-1.06)/1.06 = 0.0208 >= 0.02 -> arms, no stop change yet.
	adjusted, err := b.UpdateTrailing("XRPUSDT", dec("1.082"), params)
	require.NoError(t, err)
	assert.False(t, adjusted)
	pos, _ := b.Get("XRPUSDT")
	assert.Equal(t, TrailingArmed, pos.TrailingState)
	assert.True(t, pos.StopLossPrice.Equal(dec("1.0282")))

	// 1.10: transitions armed->tracking, stop ratchets to 1.0835.
	adjusted, err = b.UpdateTrailing("XRPUSDT", dec("1.10"), params)
	require.NoError(t, err)
	assert.True(t, adjusted)
	pos, _ = b.Get("XRPUSDT")
	assert.Equal(t, TrailingTracking, pos.TrailingState)
	assert.InDelta(t, 1.0835, pos.StopLossPrice.InexactFloat64(), 1e-6)

	// 1.095: peak and stop unchanged (below prior peak 1.10).
	adjusted, err = b.UpdateTrailing("XRPUSDT", dec("1.095"), params)
	require.NoError(t, err)
	assert.False(t, adjusted)
	pos, _ = b.Get("XRPUSDT")
	assert.InDelta(t, 1.0835, pos.StopLossPrice.InexactFloat64(), 1e-6)

	// 1.078: below stop 1.0835 -> EvaluateExits fires a stop-loss exit at
	// the resting stop price, not the observed close.
	adjusted, err = b.UpdateTrailing("XRPUSDT", dec("1.078"), params)
	require.NoError(t, err)
	assert.False(t, adjusted)

	exit, err := b.EvaluateExits("XRPUSDT", dec("1.078"), false)
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, exchange.ReasonStopLoss, exit.Reason)
	assert.InDelta(t, 1.0835, exit.ExitPrice.InexactFloat64(), 1e-6)
}

func TestMarkClosingRecordsPendingExit(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("1.06"), dec("3"), dec("1.0282"), dec("1.113"), "fill-1")
	require.NoError(t, err)

	intent := ExitIntent{Symbol: "XRPUSDT", Reason: exchange.ReasonStopLoss, ExitPrice: dec("1.0282"), Size: dec("3")}
	require.NoError(t, b.MarkClosing("XRPUSDT", intent))

	pending, ok := b.PendingExit("XRPUSDT")
	require.True(t, ok)
	assert.Equal(t, exchange.ReasonStopLoss, pending.Reason)
	assert.True(t, pending.ExitPrice.Equal(dec("1.0282")))

	// Re-marking while already CLOSING is allowed (exit retry path).
	require.NoError(t, b.MarkClosing("XRPUSDT", intent))
}

func TestEvaluateExitsPriorityStopBeforeTakeProfit(t *testing.T) {
	b := New()
	// Degenerate stop/target bounds so both would trigger; stop must win.
	_, err := b.Open("XRPUSDT", dec("100"), dec("1"), dec("101"), dec("99"), "fill-1")
	require.NoError(t, err)

	exit, err := b.EvaluateExits("XRPUSDT", dec("100"), true)
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, exchange.ReasonStopLoss, exit.Reason)
}

func TestEvaluateExitsStrategySellLowestPriority(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("100"), dec("1"), dec("90"), dec("110"), "fill-1")
	require.NoError(t, err)

	exit, err := b.EvaluateExits("XRPUSDT", dec("100"), true)
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, exchange.ReasonManual, exit.Reason)
}

func TestEvaluateExitsNoTriggerReturnsNil(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("100"), dec("1"), dec("90"), dec("110"), "fill-1")
	require.NoError(t, err)

	exit, err := b.EvaluateExits("XRPUSDT", dec("100"), false)
	require.NoError(t, err)
	assert.Nil(t, exit)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("100"), dec("1"), dec("90"), dec("110"), "fill-1")
	require.NoError(t, err)

	snap := b.Snapshot()
	pos := snap["XRPUSDT"]
	pos.Size = dec("999")

	fresh, _ := b.Get("XRPUSDT")
	assert.True(t, fresh.Size.Equal(dec("1")))
}

func TestOpenCountExcludesClosed(t *testing.T) {
	b := New()
	_, err := b.Open("XRPUSDT", dec("100"), dec("1"), dec("90"), dec("110"), "fill-1")
	require.NoError(t, err)
	_, err = b.Open("ETHUSDT", dec("2000"), dec("1"), dec("1900"), dec("2200"), "fill-2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.OpenCount())

	_, err = b.Close("XRPUSDT", exchange.Fill{Side: exchange.SideSell, FilledQuantity: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, b.OpenCount())
}
