// Package strategy defines the pluggable per-bar signal contract and a
// name->factory registry for the built-in strategies. Binding an unknown
// strategy name fails at startup, never on a tick.
package strategy

import (
	"fmt"
	"time"

	"github.com/Inkedup1114/bitrader/internal/bar"
)

// Action is a strategy's per-bar decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the output of OnBar: an action, an optional confidence in
// [0,1], and the timestamp of the bar it was computed from.
type Signal struct {
	Action      Action
	Strength    float64
	ReferenceAt time.Time
}

// ParamKind names the type of a declared parameter.
type ParamKind string

const (
	ParamInt   ParamKind = "int"
	ParamFloat ParamKind = "float"
	ParamBool  ParamKind = "bool"
)

// ParamSpec describes one strategy parameter: name, type, optional
// [min,max] range, and default value.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Min     float64
	Max     float64
	Default any
}

// Context carries per-instrument binding metadata a strategy may need
// during Initialize (currently just the symbol and timeframe; strategies
// must not reach outside what they're given here).
type Context struct {
	Symbol    string
	Timeframe string
}

// Strategy is the plug-in contract every built-in and future strategy
// implements. OnBar must be side-effect-free aside from the strategy's own
// internal state and must never block on I/O.
type Strategy interface {
	// DeclareParameters returns the parameter schema this strategy accepts.
	DeclareParameters() []ParamSpec
	// Initialize constructs per-instrument state from resolved parameters.
	// Idempotent: calling it again resets state rather than erroring.
	Initialize(params map[string]any, ctx Context) error
	// OnBar computes a Signal from the bar window ending at the most
	// recently closed bar. window[len(window)-1] is the current bar.
	OnBar(window []bar.Bar) (Signal, error)
}

// Factory constructs a fresh, uninitialized Strategy instance.
type Factory func() Strategy

// Registry is a name->factory map populated at startup. Binding a strategy
// by an unregistered name must fail at startup, never at run time.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a Registry pre-populated with the built-in
// strategies (smacross, rsimeanrev, rsibollinger).
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("smacross", func() Strategy { return NewSMACross(0, 0) })
	r.Register("rsimeanrev", func() Strategy { return NewRSIMeanReversion(0, 0, 0) })
	r.Register("rsibollinger", func() Strategy { return NewRSIBollinger(0, 0, 0, 0) })
	return r
}

// Register adds or replaces a factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New constructs a fresh strategy instance for name, or an error if name
// is not registered. Callers bind strategies at startup via this method so
// an unknown name surfaces before the engine starts ticking.
func (r *Registry) New(name string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
	return f(), nil
}

// Names returns every registered strategy name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
