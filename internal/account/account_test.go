package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSnapshotEquityIsCashPlusUnrealized(t *testing.T) {
	s := New(dec("1000"))
	s.SetUnrealized("XRPUSDT", dec("25"))
	s.SetUnrealized("BTCUSDT", dec("-5"))

	snap := s.Snapshot()
	assert.True(t, snap.Equity.Equal(dec("1020")))
	assert.True(t, snap.CashBalance.Equal(dec("1000")))
}

func TestSetUnrealizedZeroClearsSymbolMark(t *testing.T) {
	s := New(dec("1000"))
	s.SetUnrealized("XRPUSDT", dec("25"))
	s.SetUnrealized("XRPUSDT", decimal.Zero)

	snap := s.Snapshot()
	assert.True(t, snap.Equity.Equal(dec("1000")))
	assert.True(t, snap.UnrealizedPnL.IsZero())
}

func TestApplyRealizedBooksIntoBothCounters(t *testing.T) {
	s := New(dec("1000"))
	s.ApplyRealized(dec("12.5"), dec("0.5"))

	snap := s.Snapshot()
	assert.True(t, snap.CashBalance.Equal(dec("1012")), "cash = 1000 + 12.5 - 0.5 fees")
	assert.True(t, snap.RealizedPnL.Equal(dec("12.5")))
	assert.True(t, snap.DailyRealizedPnL.Equal(dec("12.5")))
}

func TestResetDailyPreservesCumulativeRealized(t *testing.T) {
	s := New(dec("1000"))
	s.ApplyRealized(dec("10"), decimal.Zero)
	s.ResetDaily()
	s.ApplyRealized(dec("5"), decimal.Zero)

	snap := s.Snapshot()
	assert.True(t, snap.RealizedPnL.Equal(dec("15")))
	assert.True(t, snap.DailyRealizedPnL.Equal(dec("5")))
}

func TestApplyEntryDebitsOnlyFees(t *testing.T) {
	s := New(dec("1000"))
	s.ApplyEntry(dec("1"))

	snap := s.Snapshot()
	assert.True(t, snap.CashBalance.Equal(dec("999")))
}
