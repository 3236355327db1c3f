// Package indicator implements pure, deterministic functions over bar
// sequences: moving averages, RSI, MACD, Bollinger bands, ATR, and
// crossover detection. None of these hold state across calls; the
// strategy layer owns any rolling-window bookkeeping.
package indicator

import (
	"errors"
	"math"

	"github.com/Inkedup1114/bitrader/internal/bar"
)

// ErrInsufficientData is returned when the input window is shorter than
// the indicator's warm-up period. The Trading Loop treats this as HOLD.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// SMA returns the simple moving average of the last `period` values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	window := values[len(values)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period), nil
}

// SMASeries returns the rolling SMA for every index where a full window is
// available, aligned to the end of `values` (result[i] corresponds to
// values[period-1+i]).
func SMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(values)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[0] = sum / float64(period)
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out[i-period+1] = sum / float64(period)
	}
	return out, nil
}

// EMA returns the exponential moving average of `values` seeded by the SMA
// of the first `period` elements, standard (non-Wilder) smoothing.
func EMA(values []float64, period int) (float64, error) {
	series, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries returns the rolling EMA series, seeded by the SMA of the first
// `period` values; result[0] corresponds to values[period-1].
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, ErrInsufficientData
	}
	seed, _ := SMA(values[:period], period)
	out := make([]float64, len(values)-period+1)
	out[0] = seed
	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i-period+1] = (values[i]-out[i-period])*k + out[i-period]
	}
	return out, nil
}

// wilderSeries applies Wilder's smoothing (alpha = 1/period) to a series of
// already-computed deltas, seeded by their simple average over the first
// `period` samples. Used by RSI (gains/losses) and ATR (true range).
func wilderSeries(deltas []float64, period int) ([]float64, error) {
	if period <= 0 || len(deltas) < period {
		return nil, ErrInsufficientData
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += deltas[i]
	}
	seed /= float64(period)
	out := make([]float64, len(deltas)-period+1)
	out[0] = seed
	for i := period; i < len(deltas); i++ {
		out[i-period+1] = (out[i-period]*(float64(period)-1) + deltas[i]) / float64(period)
	}
	return out, nil
}

// RSI computes the Wilder-smoothed Relative Strength Index over `values`
// using `period` deltas (so `period`+1 closes are required).
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period+1 {
		return 0, ErrInsufficientData
	}
	gains := make([]float64, len(values)-1)
	losses := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	avgGains, err := wilderSeries(gains, period)
	if err != nil {
		return 0, err
	}
	avgLosses, err := wilderSeries(losses, period)
	if err != nil {
		return 0, err
	}
	lastGain := avgGains[len(avgGains)-1]
	lastLoss := avgLosses[len(avgLosses)-1]
	if lastLoss == 0 {
		return 100, nil
	}
	rs := lastGain / lastLoss
	return 100 - (100 / (1 + rs)), nil
}

// MACDResult holds the fast/slow EMA spread, its signal line, and the
// histogram (MACD - signal).
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the MACD line (fastEMA - slowEMA), its EMA-smoothed signal
// line, and the histogram.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	if slow <= fast {
		return MACDResult{}, errors.New("indicator: slow period must exceed fast period")
	}
	fastSeries, err := EMASeries(values, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowSeries, err := EMASeries(values, slow)
	if err != nil {
		return MACDResult{}, err
	}
	// Align: slowSeries starts `slow-fast` samples later than fastSeries.
	offset := slow - fast
	if len(fastSeries) <= offset {
		return MACDResult{}, ErrInsufficientData
	}
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}
	signalSeries, err := EMASeries(macdSeries, signal)
	if err != nil {
		return MACDResult{}, err
	}
	last := macdSeries[len(macdSeries)-1]
	lastSignal := signalSeries[len(signalSeries)-1]
	return MACDResult{MACD: last, Signal: lastSignal, Histogram: last - lastSignal}, nil
}

// BollingerResult holds the mid band (SMA) and the upper/lower bands at
// k standard deviations.
type BollingerResult struct {
	Mid   float64
	Upper float64
	Lower float64
}

// Bollinger computes Bollinger bands: mid = SMA(period), bands = mid +/- k*stddev.
func Bollinger(values []float64, period int, k float64) (BollingerResult, error) {
	mid, err := SMA(values, period)
	if err != nil {
		return BollingerResult{}, err
	}
	window := values[len(values)-period:]
	variance := 0.0
	for _, v := range window {
		d := v - mid
		variance += d * d
	}
	variance /= float64(period)
	std := math.Sqrt(variance)
	return BollingerResult{Mid: mid, Upper: mid + k*std, Lower: mid - k*std}, nil
}

// ATR computes the Wilder-smoothed Average True Range over `period` bars.
func ATR(bars []bar.Bar, period int) (float64, error) {
	if period <= 0 || len(bars) < period+1 {
		return 0, ErrInsufficientData
	}
	trueRanges := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		trueRanges[i-1] = math.Max(hl, math.Max(hc, lc))
	}
	series, err := wilderSeries(trueRanges, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// CrossoverResult is the three-valued outcome of comparing two series.
type CrossoverResult int

const (
	CrossNone CrossoverResult = iota
	CrossUp
	CrossDown
)

// Crossover returns cross_up if series A crossed above series B between the
// previous and current sample, cross_down if it crossed below, else none.
func Crossover(prevA, curA, prevB, curB float64) CrossoverResult {
	switch {
	case prevA <= prevB && curA > curB:
		return CrossUp
	case prevA >= prevB && curA < curB:
		return CrossDown
	default:
		return CrossNone
	}
}
