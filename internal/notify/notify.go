// Package notify defines the seam between the event bus and outbound
// human-facing alerts. The only implementation here logs through zerolog;
// a real transport (Slack, email, pager) satisfies the same Notifier
// interface without touching the subscriber wiring.
package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/tradeloop"
)

// Notifier receives human-facing alerts for events an operator should see
// promptly: failed orders, risk rejections, engine faults.
type Notifier interface {
	Notify(level Level, symbol, message string)
}

// Level mirrors zerolog's severity tiers without importing the zerolog
// level type into the interface's surface.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// LogNotifier is the default Notifier: it logs through the package-global
// zerolog logger. It exists so the Engine Root has a concrete observer to
// subscribe even though no chat/email transport is implemented.
type LogNotifier struct{}

// NewLogNotifier returns the default logging Notifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) Notify(level Level, symbol, message string) {
	evt := log.Info()
	switch level {
	case LevelWarn:
		evt = log.Warn()
	case LevelError:
		evt = log.Error()
	}
	evt.Str("symbol", symbol).Msg(message)
}

var _ Notifier = (*LogNotifier)(nil)

// Subscribe attaches n to the bus topics an operator cares about:
// OrderFailed, RiskRejected, and the engine's own fault topic. It returns
// the subscription handles so the caller can unsubscribe on shutdown.
func Subscribe(bus *eventbus.Bus, n Notifier) []*eventbus.Subscription {
	failed := bus.Subscribe(eventbus.TopicOrderFailed, 32, eventbus.DropOldest, nil)
	rejected := bus.Subscribe(eventbus.TopicRiskRejected, 32, eventbus.DropOldest, nil)
	fault := bus.Subscribe(eventbus.TopicEngineFault, 8, eventbus.DropOldest, nil)

	go relay(failed, n, LevelError, func(ev eventbus.Event) string {
		if p, ok := ev.Payload.(tradeloop.OrderFailedPayload); ok {
			return "order failed: " + p.Reason
		}
		return "order failed"
	})
	go relay(rejected, n, LevelWarn, func(ev eventbus.Event) string {
		if p, ok := ev.Payload.(tradeloop.RiskRejectedPayload); ok {
			return "risk rejected: " + string(p.Reason)
		}
		return "risk rejected"
	})
	go relay(fault, n, LevelError, func(ev eventbus.Event) string {
		return "engine fault"
	})

	return []*eventbus.Subscription{failed, rejected, fault}
}

func relay(sub *eventbus.Subscription, n Notifier, level Level, describe func(eventbus.Event) string) {
	for ev := range sub.Events() {
		n.Notify(level, ev.Symbol, describe(ev))
	}
}
