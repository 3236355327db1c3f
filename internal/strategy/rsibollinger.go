package strategy

import (
	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/indicator"
)

// RSIBollinger is a composite strategy: BUY when the close pierces the
// lower Bollinger band AND RSI is below the oversold threshold. It never
// emits SELL on its own — exits are left to the risk engine's stop/target
// and to the Position Book's trailing logic.
type RSIBollinger struct {
	bollingerPeriod int
	k               float64
	rsiPeriod       int
	oversold        float64
}

// NewRSIBollinger constructs an uninitialized RSIBollinger.
func NewRSIBollinger(bollingerPeriod int, k float64, rsiPeriod int, oversold float64) *RSIBollinger {
	return &RSIBollinger{bollingerPeriod: bollingerPeriod, k: k, rsiPeriod: rsiPeriod, oversold: oversold}
}

func (s *RSIBollinger) DeclareParameters() []ParamSpec {
	return []ParamSpec{
		{Name: "bollinger_period", Kind: ParamInt, Min: 2, Max: 100, Default: 20},
		{Name: "k", Kind: ParamFloat, Min: 0.5, Max: 4, Default: 2.0},
		{Name: "rsi_period", Kind: ParamInt, Min: 2, Max: 100, Default: 14},
		{Name: "oversold", Kind: ParamFloat, Min: 0, Max: 50, Default: 30.0},
	}
}

func (s *RSIBollinger) Initialize(params map[string]any, ctx Context) error {
	bollingerPeriod, err := intParam(params, "bollinger_period", 20)
	if err != nil {
		return err
	}
	k, err := floatParam(params, "k", 2.0)
	if err != nil {
		return err
	}
	rsiPeriod, err := intParam(params, "rsi_period", 14)
	if err != nil {
		return err
	}
	oversold, err := floatParam(params, "oversold", 30.0)
	if err != nil {
		return err
	}
	s.bollingerPeriod, s.k, s.rsiPeriod, s.oversold = bollingerPeriod, k, rsiPeriod, oversold
	return nil
}

func (s *RSIBollinger) OnBar(window []bar.Bar) (Signal, error) {
	closes := bar.Closes(window)
	ref := window[len(window)-1].Timestamp

	bands, err := indicator.Bollinger(closes, s.bollingerPeriod, s.k)
	if err != nil {
		return Signal{Action: ActionHold}, nil
	}
	rsi, err := indicator.RSI(closes, s.rsiPeriod)
	if err != nil {
		return Signal{Action: ActionHold}, nil
	}

	lastClose := closes[len(closes)-1]
	if lastClose <= bands.Lower && rsi < s.oversold {
		strength := (bands.Lower - lastClose) / bands.Lower
		if strength < 0 {
			strength = 0
		}
		if strength > 1 {
			strength = 1
		}
		return Signal{Action: ActionBuy, Strength: strength, ReferenceAt: ref}, nil
	}
	return Signal{Action: ActionHold, ReferenceAt: ref}, nil
}

var _ Strategy = (*RSIBollinger)(nil)
