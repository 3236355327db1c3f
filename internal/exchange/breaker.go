package exchange

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's three states.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker fails fast after a run of consecutive transient failures
// for a venue, and allows exactly one half-open probe per cool-down window.
type CircuitBreaker struct {
	mu sync.Mutex

	venue     string
	threshold int
	cooldown  time.Duration

	state       breakerState
	failures    int
	openedAt    time.Time
	probeInUse  bool
}

// NewCircuitBreaker creates a breaker that opens after `threshold`
// consecutive transient failures and stays open for `cooldown` before
// allowing a single half-open probe.
func NewCircuitBreaker(venue string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{venue: venue, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. It returns a CircuitOpenError
// if the breaker is open and no probe slot is available.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return &CircuitOpenError{Venue: cb.venue}
		}
		if cb.probeInUse {
			return &CircuitOpenError{Venue: cb.venue}
		}
		cb.state = breakerHalfOpen
		cb.probeInUse = true
		return nil
	case breakerHalfOpen:
		// Only the probe call itself is allowed through; reject concurrent
		// callers until the probe resolves.
		return &CircuitOpenError{Venue: cb.venue}
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = breakerClosed
	cb.probeInUse = false
}

// RecordFailure increments the consecutive-failure count (call only for
// TransientError outcomes) and trips the breaker once the threshold is
// reached, or immediately re-opens it on a failed half-open probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
		cb.probeInUse = false
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
	}
}

// State reports the current breaker state as a string for metrics/logging.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
