// Package metrics provides Prometheus metrics for the trading engine:
// counters, gauges, and histograms for order flow, position lifecycle,
// risk rejections, and scheduler health, registered through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/risk"
	"github.com/Inkedup1114/bitrader/internal/tradeloop"
)

// Metrics holds every Prometheus metric the engine exposes.
type Metrics struct {
	OrdersSubmitted prometheus.Counter
	OrdersFailed    prometheus.Counter
	OrderRetries    prometheus.Counter

	PositionsOpened  prometheus.Counter
	PositionsClosed  prometheus.Counter
	ActivePositions  prometheus.Gauge
	RealizedPnLTotal prometheus.Gauge

	RiskRejections *prometheus.CounterVec

	StopTriggered       prometheus.Counter
	TakeProfitTriggered prometheus.Counter
	TrailingAdjustments prometheus.Counter

	SchedulerJobsDropped prometheus.Counter
	EngineFaults         prometheus.Counter
	TickDuration         prometheus.Histogram
}

// New registers metrics with the default Prometheus registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers metrics with a caller-supplied registerer, so
// tests can use a private registry instead of the global one.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_orders_submitted_total",
			Help: "Total number of market orders successfully submitted.",
		}),
		OrdersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_orders_failed_total",
			Help: "Total number of order submissions that failed after retries.",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_order_retries_total",
			Help: "Total number of order submission retry attempts.",
		}),
		PositionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_positions_opened_total",
			Help: "Total number of positions opened.",
		}),
		PositionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_positions_closed_total",
			Help: "Total number of positions closed.",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bitrader_active_positions",
			Help: "Current number of open positions.",
		}),
		RealizedPnLTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bitrader_realized_pnl_total",
			Help: "Cumulative realized profit and loss.",
		}),
		RiskRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bitrader_risk_rejections_total",
			Help: "Total number of candidates rejected by the risk engine, by reason.",
		}, []string{"reason"}),
		StopTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_stop_loss_triggered_total",
			Help: "Total number of stop-loss exits.",
		}),
		TakeProfitTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_take_profit_triggered_total",
			Help: "Total number of take-profit exits.",
		}),
		TrailingAdjustments: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_trailing_adjustments_total",
			Help: "Total number of trailing-stop ratchets.",
		}),
		SchedulerJobsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_scheduler_jobs_dropped_total",
			Help: "Total number of tick dispatches dropped because the job queue was full.",
		}),
		EngineFaults: factory.NewCounter(prometheus.CounterOpts{
			Name: "bitrader_engine_faults_total",
			Help: "Total number of guarded-panic faults that quarantined a binding.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bitrader_tick_duration_seconds",
			Help:    "Wall-clock duration of one trading loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Subscribe wires m to the event bus, updating metrics as domain events
// arrive. Returns the subscription handles so the caller can unsubscribe
// on shutdown.
func Subscribe(bus *eventbus.Bus, m *Metrics) []*eventbus.Subscription {
	subs := []*eventbus.Subscription{
		bus.Subscribe(eventbus.TopicOrderSubmitted, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicOrderFailed, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicPositionOpened, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicPositionClosed, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicRiskRejected, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicStopTriggered, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicTakeProfitTriggered, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicTrailingAdjusted, 64, eventbus.DropOldest, nil),
		bus.Subscribe(eventbus.TopicEngineFault, 8, eventbus.DropOldest, nil),
	}

	go drain(subs[0], func(eventbus.Event) { m.OrdersSubmitted.Inc() })
	go drain(subs[1], func(eventbus.Event) { m.OrdersFailed.Inc() })
	go drain(subs[2], func(ev eventbus.Event) {
		m.PositionsOpened.Inc()
		m.ActivePositions.Inc()
	})
	go drain(subs[3], func(ev eventbus.Event) {
		m.PositionsClosed.Inc()
		m.ActivePositions.Dec()
		if p, ok := ev.Payload.(tradeloop.PositionClosedPayload); ok {
			m.RealizedPnLTotal.Add(p.RealizedPnL.InexactFloat64())
		}
	})
	go drain(subs[4], func(ev eventbus.Event) {
		reason := string(risk.ReasonNone)
		if p, ok := ev.Payload.(tradeloop.RiskRejectedPayload); ok {
			reason = string(p.Reason)
		}
		m.RiskRejections.WithLabelValues(reason).Inc()
	})
	go drain(subs[5], func(eventbus.Event) { m.StopTriggered.Inc() })
	go drain(subs[6], func(eventbus.Event) { m.TakeProfitTriggered.Inc() })
	go drain(subs[7], func(eventbus.Event) { m.TrailingAdjustments.Inc() })
	go drain(subs[8], func(eventbus.Event) { m.EngineFaults.Inc() })

	return subs
}

func drain(sub *eventbus.Subscription, handle func(eventbus.Event)) {
	for ev := range sub.Events() {
		handle(ev)
	}
}
