// Package eventbus implements the engine's typed publish/subscribe fan-out.
// Subscribers register for a topic with a bounded queue and an overflow
// policy; delivery is asynchronous and per-subscriber-per-topic FIFO.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Topic names every event variant from the data model.
type Topic string

const (
	TopicBarFetched           Topic = "bar_fetched"
	TopicBarRejected          Topic = "bar_rejected"
	TopicSignalGenerated      Topic = "signal_generated"
	TopicRiskRejected         Topic = "risk_rejected"
	TopicOrderSubmitted       Topic = "order_submitted"
	TopicOrderFilled          Topic = "order_filled"
	TopicOrderFailed          Topic = "order_failed"
	TopicPositionOpened       Topic = "position_opened"
	TopicPositionClosed       Topic = "position_closed"
	TopicStopTriggered        Topic = "stop_triggered"
	TopicTakeProfitTriggered  Topic = "take_profit_triggered"
	TopicTrailingAdjusted     Topic = "trailing_adjusted"
	TopicHeartbeatTick        Topic = "heartbeat_tick"
	TopicEngineStarted        Topic = "engine_started"
	TopicEngineStopped        Topic = "engine_stopped"
	TopicEngineFault          Topic = "engine_fault"
	TopicSubscriberOverflow   Topic = "subscriber_overflow"
)

// OverflowPolicy controls what happens when a subscriber's bounded queue is
// full at publish time.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest queued event to make room (the default).
	DropOldest OverflowPolicy = iota
	// DropNew discards the event being published.
	DropNew
	// BlockPublisher blocks the publishing goroutine until space frees up;
	// there is no timeout or cancellation.
	BlockPublisher
)

// Event is the envelope carried on every topic: timestamp, optional symbol,
// a correlation id, and a topic-specific payload.
type Event struct {
	Topic         Topic
	Timestamp     int64 // unix nanos, supplied by the publisher
	Symbol        string
	CorrelationID string
	Payload       any
}

// NewCorrelationID returns a time-sortable ULID string suitable for
// Event.CorrelationID.
func NewCorrelationID() string {
	return ulid.Make().String()
}

// Filter narrows delivery to a subset of events on a topic; nil means
// "deliver everything".
type Filter func(Event) bool

// Subscription is a registered consumer of one topic.
type Subscription struct {
	id       string
	topic    Topic
	filter   Filter
	policy   OverflowPolicy
	queue    chan Event
	overflow atomic.Int64
	bus      *Bus
}

// Events returns the channel this subscriber reads from.
func (s *Subscription) Events() <-chan Event { return s.queue }

// OverflowCount returns the number of events dropped due to a full queue.
func (s *Subscription) OverflowCount() int64 { return s.overflow.Load() }

// Unsubscribe removes this subscription from the bus and closes its queue.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// Bus is the engine-wide typed pub/sub fan-out. The bus holds each topic's
// subscription queues (one-way registration, per the Design Notes) — it never
// calls back into an observer's owner, only delivers to the queue.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]*Subscription
	next atomic.Uint64
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]*Subscription)}
}

// Subscribe registers a new subscription for a topic with a bounded queue
// of the given size and an overflow policy.
func (b *Bus) Subscribe(topic Topic, queueSize int, policy OverflowPolicy, filter Filter) *Subscription {
	if queueSize <= 0 {
		queueSize = 64
	}
	sub := &Subscription{
		id:     ulid.Make().String(),
		topic:  topic,
		filter: filter,
		policy: policy,
		queue:  make(chan Event, queueSize),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[target.topic]
	for i, s := range list {
		if s == target {
			b.subs[target.topic] = append(list[:i], list[i+1:]...)
			close(s.queue)
			return
		}
	}
}

// Publish fans an event out to every subscriber of its topic. Delivery per
// subscriber is non-blocking except under BlockPublisher, honoring each
// subscriber's overflow policy independently. Re-entrant publishes (a
// handler publishing another event) are safe: handlers only ever read from
// their own queue, never from the bus directly, so this never deadlocks
// against a handler holding no lock on Publish.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		b.deliver(s, ev)
	}
}

// SubscriberOverflowPayload reports a drop on a subscriber's bounded
// queue; the running total is the subscriber's overflow counter.
type SubscriberOverflowPayload struct {
	SubscriberID string
	Topic        Topic
	Dropped      int64
}

func (b *Bus) deliver(s *Subscription, ev Event) {
	switch s.policy {
	case BlockPublisher:
		s.queue <- ev
	case DropNew:
		select {
		case s.queue <- ev:
		default:
			b.recordOverflow(s, ev)
			log.Warn().Str("topic", string(ev.Topic)).Msg("eventbus: subscriber queue full, dropping new event")
		}
	default: // DropOldest
		for {
			select {
			case s.queue <- ev:
				return
			default:
				select {
				case <-s.queue:
					b.recordOverflow(s, ev)
				default:
				}
			}
		}
	}
}

// recordOverflow bumps the subscription's drop counter and surfaces the
// drop as a SubscriberOverflow event. The overflow topic itself never
// re-publishes, which bounds the recursion at one level.
func (b *Bus) recordOverflow(s *Subscription, ev Event) {
	dropped := s.overflow.Add(1)
	if ev.Topic == TopicSubscriberOverflow {
		return
	}
	b.Publish(Event{
		Topic:     TopicSubscriberOverflow,
		Timestamp: ev.Timestamp,
		Symbol:    ev.Symbol,
		Payload:   SubscriberOverflowPayload{SubscriberID: s.id, Topic: ev.Topic, Dropped: dropped},
	})
}
