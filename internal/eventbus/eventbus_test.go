package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicOrderFilled, 4, DropOldest, nil)

	bus.Publish(Event{Topic: TopicOrderFilled, Symbol: "XRPUSDT"})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "XRPUSDT", ev.Symbol)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterExcludesNonMatching(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicOrderFilled, 4, DropOldest, func(ev Event) bool {
		return ev.Symbol == "XRPUSDT"
	})

	bus.Publish(Event{Topic: TopicOrderFilled, Symbol: "ETHUSDT"})
	bus.Publish(Event{Topic: TopicOrderFilled, Symbol: "XRPUSDT"})

	ev := <-sub.Events()
	assert.Equal(t, "XRPUSDT", ev.Symbol)
}

func TestFIFOOrderPerSubscriberPerTopic(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicHeartbeatTick, 16, DropOldest, nil)

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Topic: TopicHeartbeatTick, CorrelationID: string(rune('a' + i))})
	}

	for i := 0; i < 10; i++ {
		ev := <-sub.Events()
		require.Equal(t, string(rune('a'+i)), ev.CorrelationID)
	}
}

func TestDropOldestOverflowCounter(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicHeartbeatTick, 2, DropOldest, nil)

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Topic: TopicHeartbeatTick})
	}

	assert.Greater(t, sub.OverflowCount(), int64(0))
}

func TestDropNewDiscardsIncoming(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicHeartbeatTick, 1, DropNew, nil)

	bus.Publish(Event{Topic: TopicHeartbeatTick, CorrelationID: "first"})
	bus.Publish(Event{Topic: TopicHeartbeatTick, CorrelationID: "second"})

	ev := <-sub.Events()
	assert.Equal(t, "first", ev.CorrelationID)
	assert.Equal(t, int64(1), sub.OverflowCount())
}

func TestOverflowPublishesSubscriberOverflowEvent(t *testing.T) {
	bus := New()
	overflowed := bus.Subscribe(TopicSubscriberOverflow, 8, DropOldest, nil)
	sub := bus.Subscribe(TopicHeartbeatTick, 1, DropNew, nil)

	bus.Publish(Event{Topic: TopicHeartbeatTick})
	bus.Publish(Event{Topic: TopicHeartbeatTick})

	ev := <-overflowed.Events()
	payload := ev.Payload.(SubscriberOverflowPayload)
	assert.Equal(t, TopicHeartbeatTick, payload.Topic)
	assert.Equal(t, int64(1), payload.Dropped)
	assert.Equal(t, int64(1), sub.OverflowCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicEngineStopped, 4, DropOldest, nil)
	sub.Unsubscribe()

	bus.Publish(Event{Topic: TopicEngineStopped})

	_, ok := <-sub.Events()
	assert.False(t, ok)
}
