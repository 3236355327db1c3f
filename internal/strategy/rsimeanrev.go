package strategy

import (
	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/indicator"
)

// RSIMeanReversion emits BUY when RSI drops below the oversold threshold
// and SELL when it rises above the overbought threshold, with a hysteresis
// gate: once a signal fires, the same signal cannot fire again until RSI
// crosses back through the midpoint, avoiding repeated BUYs while RSI
// lingers below oversold.
type RSIMeanReversion struct {
	period               int
	oversold, overbought float64
	lastSignal           Action
}

// NewRSIMeanReversion constructs an uninitialized RSIMeanReversion.
func NewRSIMeanReversion(period int, oversold, overbought float64) *RSIMeanReversion {
	return &RSIMeanReversion{period: period, oversold: oversold, overbought: overbought, lastSignal: ActionHold}
}

func (s *RSIMeanReversion) DeclareParameters() []ParamSpec {
	return []ParamSpec{
		{Name: "period", Kind: ParamInt, Min: 2, Max: 100, Default: 14},
		{Name: "oversold", Kind: ParamFloat, Min: 0, Max: 50, Default: 30.0},
		{Name: "overbought", Kind: ParamFloat, Min: 50, Max: 100, Default: 70.0},
	}
}

func (s *RSIMeanReversion) Initialize(params map[string]any, ctx Context) error {
	period, err := intParam(params, "period", 14)
	if err != nil {
		return err
	}
	oversold, err := floatParam(params, "oversold", 30.0)
	if err != nil {
		return err
	}
	overbought, err := floatParam(params, "overbought", 70.0)
	if err != nil {
		return err
	}
	s.period, s.oversold, s.overbought = period, oversold, overbought
	s.lastSignal = ActionHold
	return nil
}

func (s *RSIMeanReversion) OnBar(window []bar.Bar) (Signal, error) {
	closes := bar.Closes(window)
	rsi, err := indicator.RSI(closes, s.period)
	if err != nil {
		return Signal{Action: ActionHold}, nil
	}

	ref := window[len(window)-1].Timestamp
	mid := (s.oversold + s.overbought) / 2

	switch {
	case rsi < s.oversold && s.lastSignal != ActionBuy:
		s.lastSignal = ActionBuy
		return Signal{Action: ActionBuy, Strength: (s.oversold - rsi) / s.oversold, ReferenceAt: ref}, nil
	case rsi > s.overbought && s.lastSignal != ActionSell:
		s.lastSignal = ActionSell
		return Signal{Action: ActionSell, Strength: (rsi - s.overbought) / (100 - s.overbought), ReferenceAt: ref}, nil
	case s.lastSignal == ActionBuy && rsi >= mid:
		s.lastSignal = ActionHold
	case s.lastSignal == ActionSell && rsi <= mid:
		s.lastSignal = ActionHold
	}
	return Signal{Action: ActionHold, ReferenceAt: ref}, nil
}

var _ Strategy = (*RSIMeanReversion)(nil)
