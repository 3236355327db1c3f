package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/risk"
	"github.com/Inkedup1114/bitrader/internal/tradeloop"
)

func TestSubscribeCountsOrdersAndPositions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	bus := eventbus.New()
	Subscribe(bus, m)

	bus.Publish(eventbus.Event{Topic: eventbus.TopicOrderSubmitted, Symbol: "XRPUSDT"})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicPositionOpened, Symbol: "XRPUSDT"})
	bus.Publish(eventbus.Event{
		Topic:   eventbus.TopicRiskRejected,
		Symbol:  "XRPUSDT",
		Payload: tradeloop.RiskRejectedPayload{Reason: risk.ReasonMaxAllocation},
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.OrdersSubmitted) == 1 &&
			testutil.ToFloat64(m.ActivePositions) == 1 &&
			testutil.ToFloat64(m.RiskRejections.WithLabelValues("max_allocation")) == 1
	}, time.Second, time.Millisecond)
}

func TestSubscribeAccumulatesRealizedPnL(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	bus := eventbus.New()
	Subscribe(bus, m)

	bus.Publish(eventbus.Event{
		Topic:  eventbus.TopicPositionClosed,
		Symbol: "XRPUSDT",
		Payload: tradeloop.PositionClosedPayload{
			RealizedPnL: decimal.NewFromFloat(12.5),
		},
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealizedPnLTotal) == 12.5 && testutil.ToFloat64(m.ActivePositions) == -1
	}, time.Second, time.Millisecond)
}
