package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/risk"
	"github.com/Inkedup1114/bitrader/internal/tradeloop"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(level Level, symbol, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestSubscribeRelaysOrderFailed(t *testing.T) {
	bus := eventbus.New()
	rec := &recordingNotifier{}
	Subscribe(bus, rec)

	bus.Publish(eventbus.Event{
		Topic:   eventbus.TopicOrderFailed,
		Symbol:  "XRPUSDT",
		Payload: tradeloop.OrderFailedPayload{Reason: "timeout"},
	})

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
}

func TestSubscribeRelaysRiskRejected(t *testing.T) {
	bus := eventbus.New()
	rec := &recordingNotifier{}
	Subscribe(bus, rec)

	bus.Publish(eventbus.Event{
		Topic:   eventbus.TopicRiskRejected,
		Symbol:  "XRPUSDT",
		Payload: tradeloop.RiskRejectedPayload{Reason: risk.ReasonMaxAllocation},
	})

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, rec.messages[0], "max_allocation")
}
