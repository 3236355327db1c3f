// Package scheduler fires bar-boundary-aligned ticks for each configured
// binding through a bounded worker pool, guaranteeing per-binding
// serialization while letting distinct bindings run concurrently.
// Shutdown drains in-flight ticks up to a deadline before forcing
// cancellation.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Inkedup1114/bitrader/internal/exchange"
	"github.com/Inkedup1114/bitrader/internal/metrics"
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Binding identifies one (instrument, timeframe, strategy) triple the
// scheduler ticks independently.
type Binding struct {
	ID        string
	Symbol    string
	Timeframe exchange.Timeframe
}

// TickFunc is invoked once per bar close for a binding. ctx is cancelled if
// the scheduler enters draining and the deadline elapses before the tick
// returns.
type TickFunc func(ctx context.Context, b Binding)

// Config tunes the scheduler's worker pool and jitter.
type Config struct {
	WorkerPoolSize int
	Jitter         time.Duration
	// Recorder, if set, is notified when a tick dispatch is dropped
	// because the shared job queue is full.
	Recorder metrics.Recorder
}

type job struct {
	binding Binding
}

// Scheduler fires TickFunc once per bar close for every registered
// Binding via a fixed worker pool, serializing ticks per binding with a
// map[string]*sync.Mutex.
type Scheduler struct {
	cfg  Config
	tick TickFunc

	mu          sync.Mutex
	state       State
	bindings    map[string]Binding
	locks       map[string]*sync.Mutex
	quarantined map[string]bool

	jobs      chan job
	quit      chan struct{}
	wgTickers sync.WaitGroup
	wgWorkers sync.WaitGroup
	cancel    context.CancelFunc
}

// New creates a Scheduler with the given worker pool config and per-tick
// callback.
func New(cfg Config, tick TickFunc) *Scheduler {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	return &Scheduler{
		cfg:         cfg,
		tick:        tick,
		state:       StateIdle,
		bindings:    make(map[string]Binding),
		locks:       make(map[string]*sync.Mutex),
		quarantined: make(map[string]bool),
		jobs:        make(chan job, cfg.WorkerPoolSize*2),
		quit:        make(chan struct{}),
	}
}

// Register adds a binding to be ticked once Start runs. It is safe to call
// concurrently, but a binding registered after Start gets no ticker.
func (s *Scheduler) Register(b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[b.ID] = b
	if _, ok := s.locks[b.ID]; !ok {
		s.locks[b.ID] = &sync.Mutex{}
	}
}

// Quarantine stops dispatching ticks for a binding until Release is
// called. The trading loop's panic guard escalates here so a faulting
// binding cannot take the whole engine down with it.
func (s *Scheduler) Quarantine(bindingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantined[bindingID] = true
	log.Error().Str("binding", bindingID).Msg("scheduler: binding quarantined")
}

// Release lifts a quarantine (operator intervention).
func (s *Scheduler) Release(bindingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quarantined, bindingID)
	log.Info().Str("binding", bindingID).Msg("scheduler: binding released from quarantine")
}

// IsQuarantined reports whether a binding is currently skipped.
func (s *Scheduler) IsQuarantined(bindingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quarantined[bindingID]
}

// Start transitions idle->running, spins up the worker pool, and starts
// one boundary-aligned ticker goroutine per registered binding.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	bindings := make([]Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		bindings = append(bindings, b)
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.wgWorkers.Add(1)
		go s.worker(runCtx)
	}

	for _, b := range bindings {
		s.wgTickers.Add(1)
		go s.tickLoop(runCtx, b)
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wgWorkers.Done()
	// Drain the job channel until it closes so ticks already queued still
	// run during a graceful stop; force-cancellation reaches in-flight
	// ticks through ctx.
	for j := range s.jobs {
		s.runTick(ctx, j.binding)
	}
}

// runTick serializes execution per binding: while one tick for a binding
// is in flight, a second dispatch for the same binding blocks here rather
// than overlapping it, satisfying the scheduler's no-overlap guarantee.
func (s *Scheduler) runTick(ctx context.Context, b Binding) {
	s.mu.Lock()
	lock := s.locks[b.ID]
	s.mu.Unlock()
	if lock == nil {
		return
	}
	lock.Lock()
	defer lock.Unlock()
	s.tick(ctx, b)
}

func (s *Scheduler) tickLoop(ctx context.Context, b Binding) {
	defer s.wgTickers.Done()

	next := nextBoundary(time.Now(), b.Timeframe.Duration())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-timer.C:
			s.mu.Lock()
			skip := s.state != StateRunning || s.quarantined[b.ID]
			s.mu.Unlock()
			if !skip {
				s.dispatch(b)
			}
			next = nextBoundary(time.Now(), b.Timeframe.Duration())
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) dispatch(b Binding) {
	if s.cfg.Jitter > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.cfg.Jitter)))
		select {
		case <-s.quit:
			return
		case <-time.After(jitter):
		}
	}
	select {
	case s.jobs <- job{binding: b}:
	default:
		log.Warn().Str("binding", b.ID).Msg("scheduler: job queue full, dropping tick dispatch")
		if s.cfg.Recorder != nil {
			s.cfg.Recorder.IncJobsDropped()
		}
	}
}

// nextBoundary returns the next wall-clock instant aligned to a multiple
// of period since the Unix epoch.
func nextBoundary(now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		period = time.Minute
	}
	unixNanos := now.UnixNano()
	periodNanos := period.Nanoseconds()
	rem := unixNanos % periodNanos
	return now.Add(period - time.Duration(rem))
}

// Stop enters draining: refuses new tick dispatches, stops the per-binding
// tickers, lets queued and in-flight ticks finish up to deadline, then
// force-cancels whatever remains.
func (s *Scheduler) Stop(deadline time.Duration) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	s.mu.Unlock()

	close(s.quit)
	s.wgTickers.Wait()
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wgWorkers.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("scheduler: drained cleanly")
	case <-time.After(deadline):
		log.Warn().Dur("deadline", deadline).Msg("scheduler: drain deadline exceeded, forcing cancellation")
		if s.cancel != nil {
			s.cancel()
		}
		<-done
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
