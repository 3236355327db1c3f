package strategy

import (
	"fmt"

	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/indicator"
)

// SMACross emits BUY on an upward short/long SMA crossover and SELL on a
// downward one, HOLD otherwise.
type SMACross struct {
	short, long int
}

// NewSMACross constructs an uninitialized SMACross; Initialize resolves
// the short/long periods from declared parameters.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{short: short, long: long}
}

func (s *SMACross) DeclareParameters() []ParamSpec {
	return []ParamSpec{
		{Name: "short", Kind: ParamInt, Min: 2, Max: 200, Default: 3},
		{Name: "long", Kind: ParamInt, Min: 3, Max: 400, Default: 5},
	}
}

func (s *SMACross) Initialize(params map[string]any, ctx Context) error {
	short, err := intParam(params, "short", 3)
	if err != nil {
		return err
	}
	long, err := intParam(params, "long", 5)
	if err != nil {
		return err
	}
	if long <= short {
		return fmt.Errorf("strategy: smacross long period (%d) must exceed short period (%d)", long, short)
	}
	s.short, s.long = short, long
	return nil
}

func (s *SMACross) OnBar(window []bar.Bar) (Signal, error) {
	closes := bar.Closes(window)
	shortSeries, err := indicator.SMASeries(closes, s.short)
	if err != nil {
		return Signal{Action: ActionHold}, nil
	}
	longSeries, err := indicator.SMASeries(closes, s.long)
	if err != nil {
		return Signal{Action: ActionHold}, nil
	}

	// Align both series to the same trailing two points: long's series is
	// shorter (warms up later), so index its tail against short's tail.
	if len(longSeries) < 2 || len(shortSeries) < 2 {
		return Signal{Action: ActionHold}, nil
	}
	prevShort := shortSeries[len(shortSeries)-2]
	curShort := shortSeries[len(shortSeries)-1]
	prevLong := longSeries[len(longSeries)-2]
	curLong := longSeries[len(longSeries)-1]

	ref := window[len(window)-1].Timestamp
	switch indicator.Crossover(prevShort, curShort, prevLong, curLong) {
	case indicator.CrossUp:
		return Signal{Action: ActionBuy, Strength: 1, ReferenceAt: ref}, nil
	case indicator.CrossDown:
		return Signal{Action: ActionSell, Strength: 1, ReferenceAt: ref}, nil
	default:
		return Signal{Action: ActionHold, ReferenceAt: ref}, nil
	}
}

func intParam(params map[string]any, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("strategy: parameter %q must be an integer, got %T", name, v)
	}
}

func floatParam(params map[string]any, name string, def float64) (float64, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("strategy: parameter %q must be a number, got %T", name, v)
	}
}

var _ Strategy = (*SMACross)(nil)
