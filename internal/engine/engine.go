// Package engine is the composition root: it builds every collaborator
// from a resolved cfg.Settings, binds a strategy per symbol, subscribes
// the persistence/metrics/notifier observers to the event bus, and starts
// the scheduler. No package-level singletons; the Engine holds every
// collaborator it builds so it stays constructible in tests.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/account"
	"github.com/Inkedup1114/bitrader/internal/cfg"
	"github.com/Inkedup1114/bitrader/internal/common"
	"github.com/Inkedup1114/bitrader/internal/eventbus"
	"github.com/Inkedup1114/bitrader/internal/exchange"
	"github.com/Inkedup1114/bitrader/internal/exchange/bitunix"
	"github.com/Inkedup1114/bitrader/internal/exchange/paper"
	"github.com/Inkedup1114/bitrader/internal/metrics"
	"github.com/Inkedup1114/bitrader/internal/notify"
	"github.com/Inkedup1114/bitrader/internal/position"
	"github.com/Inkedup1114/bitrader/internal/scheduler"
	"github.com/Inkedup1114/bitrader/internal/storage"
	"github.com/Inkedup1114/bitrader/internal/strategy"
	"github.com/Inkedup1114/bitrader/internal/tradeloop"
)

// Engine owns every collaborator built from a Settings and drives the
// scheduler that ticks the trading loops.
type Engine struct {
	settings *cfg.Settings
	bus      *eventbus.Bus
	book     *position.Book
	acct     *account.State
	port     exchange.Port
	sched    *scheduler.Scheduler
	store    *storage.Store
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	heartbeatStop chan struct{}
	stopOnce      sync.Once

	metricsSubs []*eventbus.Subscription
	notifySubs  []*eventbus.Subscription
	storageSubs []*eventbus.Subscription
}

// New builds an Engine from resolved settings. It binds every configured
// symbol to a strategy instance up front, so an unknown strategy name
// fails here — at construction — rather than on the first tick.
func New(settings *cfg.Settings) (*Engine, error) {
	bus := eventbus.New()
	book := position.New()
	acct := account.New(settings.InitialBalance)

	port, err := buildPort(settings)
	if err != nil {
		return nil, fmt.Errorf("engine: build exchange port: %w", err)
	}

	registry := strategy.NewRegistry()

	loops := make(map[string]*tradeloop.Loop, len(settings.Symbols))
	for _, binding := range settings.Symbols {
		strat, err := registry.New(binding.Strategy)
		if err != nil {
			return nil, fmt.Errorf("engine: bind %s: %w", binding.Symbol, err)
		}
		params := settings.Strategies[binding.Strategy]
		if err := strat.Initialize(params, strategy.Context{Symbol: binding.Symbol, Timeframe: string(binding.Timeframe)}); err != nil {
			return nil, fmt.Errorf("engine: initialize strategy %s for %s: %w", binding.Strategy, binding.Symbol, err)
		}

		loops[binding.Symbol] = tradeloop.New(tradeloop.Config{
			Symbol:         binding.Symbol,
			Timeframe:      binding.Timeframe,
			WarmupBars:     common.DefaultWarmupBars,
			RiskParams:     settings.ToRiskParams(binding),
			TrailingParams: settings.ToTrailingParams(binding),
			FixedQuantity:  binding.Quantity,
		}, port, strat, book, acct, bus)
	}

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.NewWithRegistry(promRegistry)

	poolSize := len(settings.Symbols)
	if max := runtime.NumCPU() * common.DefaultWorkerPoolMultiplier; poolSize > max {
		poolSize = max
	}
	var sched *scheduler.Scheduler
	sched = scheduler.New(scheduler.Config{
		WorkerPoolSize: poolSize,
		Jitter:         common.DefaultSchedulerJitterMs * time.Millisecond,
		Recorder:       metrics.NewRecorder(engineMetrics),
	}, func(ctx context.Context, b scheduler.Binding) {
		loop := loops[b.Symbol]
		if loop == nil {
			return
		}
		if fault := loop.Tick(ctx); fault {
			sched.Quarantine(b.ID)
		}
	})
	for _, binding := range settings.Symbols {
		id := binding.Symbol + ":" + string(binding.Timeframe)
		sched.Register(scheduler.Binding{ID: id, Symbol: binding.Symbol, Timeframe: binding.Timeframe})
	}

	e := &Engine{
		settings:      settings,
		bus:           bus,
		book:          book,
		acct:          acct,
		port:          port,
		sched:         sched,
		metrics:       engineMetrics,
		registry:      promRegistry,
		heartbeatStop: make(chan struct{}),
	}

	store, err := storage.New(settings.DataPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open storage: %w", err)
	}
	e.store = store
	e.storageSubs = storage.Subscribe(bus, store,
		eventbus.TopicPositionOpened, eventbus.TopicPositionClosed,
		eventbus.TopicOrderFailed, eventbus.TopicRiskRejected,
		eventbus.TopicStopTriggered, eventbus.TopicTakeProfitTriggered,
		eventbus.TopicEngineFault,
	)

	e.metricsSubs = metrics.Subscribe(bus, e.metrics)
	e.notifySubs = notify.Subscribe(bus, notify.NewLogNotifier())

	return e, nil
}

func buildPort(settings *cfg.Settings) (exchange.Port, error) {
	var inner exchange.Port
	switch settings.Trading.Mode {
	case cfg.ModeLive:
		symbols := make([]string, 0, len(settings.Symbols))
		for _, b := range settings.Symbols {
			symbols = append(symbols, b.Symbol)
		}
		inner = bitunix.New(settings.Exchange.APIKey, settings.Exchange.APISecret,
			settings.Exchange.BaseURL, settings.Exchange.WsURL, settings.Exchange.RESTTimeout, symbols)
	case cfg.ModePaper, cfg.ModeBacktest:
		inner = paper.New(decimal.NewFromFloat(0.0005), decimal.NewFromFloat(0.0004))
	default:
		return nil, fmt.Errorf("unknown trading mode %q", settings.Trading.Mode)
	}

	breaker := exchange.NewCircuitBreaker(settings.Exchange.Name,
		common.DefaultCircuitBreakerThreshold, common.DefaultCircuitBreakerCooldownMs*time.Millisecond)
	limits := exchange.NewRateLimiters(settings.Exchange.RateLimit.RequestsPerMinute, settings.Exchange.RateLimit.OrderRateLimit)
	return exchange.NewGuardedPort(inner, settings.Exchange.Name, exchange.DefaultRetryConfig(), breaker, limits), nil
}

// Start begins ticking every bound symbol and starts the status heartbeat
// at the configured update_interval cadence.
func (e *Engine) Start(ctx context.Context) {
	e.bus.Publish(eventbus.Event{Topic: eventbus.TopicEngineStarted, Timestamp: time.Now().UnixNano()})
	e.sched.Start(ctx)
	go e.heartbeat(ctx)
	log.Info().Int("symbols", len(e.settings.Symbols)).Msg("engine: started")
}

// heartbeat publishes a periodic HeartbeatTick summarising engine health
// and resets the account's daily realized PnL counter at each UTC day
// boundary.
func (e *Engine) heartbeat(ctx context.Context) {
	interval := e.settings.General.UpdateInterval
	if interval <= 0 {
		interval = time.Duration(common.DefaultUpdateInterval) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	day := time.Now().UTC().Day()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.heartbeatStop:
			return
		case <-ticker.C:
			if d := time.Now().UTC().Day(); d != day {
				day = d
				e.acct.ResetDaily()
			}
			snap := e.acct.Snapshot()
			e.bus.Publish(eventbus.Event{
				Topic:     eventbus.TopicHeartbeatTick,
				Timestamp: time.Now().UnixNano(),
				Payload: tradeloop.HeartbeatTickPayload{
					Outcome: fmt.Sprintf("engine_alive state=%s open_positions=%d equity=%s",
						e.sched.State(), e.book.OpenCount(), snap.Equity.StringFixed(2)),
				},
			})
		}
	}
}

// Stop drains the scheduler, closes the exchange port and storage, and
// publishes a final EngineStopped event.
func (e *Engine) Stop(deadline time.Duration) {
	e.stopOnce.Do(func() {
		close(e.heartbeatStop)
		e.sched.Stop(deadline)
		if err := e.port.Close(); err != nil {
			log.Warn().Err(err).Msg("engine: exchange port close failed")
		}
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				log.Warn().Err(err).Msg("engine: storage close failed")
			}
		}
		e.bus.Publish(eventbus.Event{Topic: eventbus.TopicEngineStopped, Timestamp: time.Now().UnixNano()})
		log.Info().Msg("engine: stopped")
	})
}

// Bus exposes the event bus for external observers (e.g. a metrics HTTP
// endpoint or an operator CLI) to subscribe to.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// Registry exposes the engine's private Prometheus registry so the CLI can
// serve it over promhttp without touching the process-global registerer.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Book exposes read-only snapshots of the Position Book.
func (e *Engine) Book() *position.Book { return e.book }

// Account exposes the current account snapshot.
func (e *Engine) Account() account.Snapshot { return e.acct.Snapshot() }
