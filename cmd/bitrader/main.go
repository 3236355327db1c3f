// Command bitrader runs the trading engine: it loads the YAML/env
// configuration, builds the engine root, serves Prometheus metrics, and
// drives a graceful drain on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Inkedup1114/bitrader/internal/cfg"
	"github.com/Inkedup1114/bitrader/internal/common"
	"github.com/Inkedup1114/bitrader/internal/engine"
	"github.com/Inkedup1114/bitrader/internal/exchange"
)

const (
	exitOK            = 0
	exitBadConfig     = 2
	exitStartupFailed = 3
	exitSignalled     = 130
)

var (
	flagConfig    string
	flagSymbol    string
	flagTimeframe string
	flagStrategy  string
	flagBacktest  bool
	flagTimeout   int
)

var rootCmd = &cobra.Command{
	Use:   "bitrader",
	Short: "Algorithmic trading engine: per-symbol strategy ticks with risk-gated order flow",
	Long: `bitrader runs a periodic trading pipeline for each configured
(symbol, timeframe, strategy) binding: fetch bars, compute signals, size
through the risk engine, submit paper or live orders, and enforce
stop-loss / take-profit / trailing exits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runEngine,
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration file, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := cfg.Load(flagConfig)
		if err != nil {
			return &exitError{code: exitBadConfig, err: err}
		}
		fmt.Printf("configuration OK: %d symbol binding(s), mode=%s\n", len(settings.Symbols), settings.Trading.Mode)
		return nil
	},
}

// exitError carries a process exit code through cobra's RunE error path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.Flags().StringVar(&flagSymbol, "symbol", "", "override: comma-separated symbols to trade (replaces symbols[] from the config)")
	rootCmd.Flags().StringVar(&flagTimeframe, "timeframe", "", "override: timeframe for --symbol bindings (1m,5m,15m,1h,4h,1d)")
	rootCmd.Flags().StringVar(&flagStrategy, "strategy", "", "override: strategy name for --symbol bindings")
	rootCmd.Flags().BoolVar(&flagBacktest, "backtest", false, "run in backtest mode regardless of trading.mode")
	rootCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "stop the engine after this many seconds (0 runs until signalled)")
	rootCmd.AddCommand(validateCmd)
}

// applyOverrides folds the CLI flags into the loaded settings. --symbol
// replaces the config's bindings wholesale so an operator can spot-run one
// instrument without editing the file.
func applyOverrides(settings *cfg.Settings) error {
	if flagBacktest {
		settings.Trading.Mode = cfg.ModeBacktest
	}
	if flagSymbol == "" {
		return nil
	}

	timeframe := exchange.TF15m
	if flagTimeframe != "" {
		timeframe = exchange.Timeframe(flagTimeframe)
	}
	strategyName := flagStrategy
	if strategyName == "" {
		strategyName = "smacross"
	}

	var bindings []cfg.SymbolBinding
	for _, sym := range strings.Split(flagSymbol, ",") {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		bindings = append(bindings, cfg.SymbolBinding{
			Symbol:        sym,
			Timeframe:     timeframe,
			Strategy:      strategyName,
			MaxAllocation: settings.Symbols[0].MaxAllocation,
		})
	}
	if len(bindings) == 0 {
		return fmt.Errorf("--symbol produced no usable bindings")
	}
	settings.Symbols = bindings
	return nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	settings, err := cfg.Load(flagConfig)
	if err != nil {
		return &exitError{code: exitBadConfig, err: err}
	}
	if err := applyOverrides(settings); err != nil {
		return &exitError{code: exitBadConfig, err: err}
	}

	eng, err := engine.New(settings)
	if err != nil {
		return &exitError{code: exitStartupFailed, err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.MetricsPort),
		Handler: metricsMux(eng),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	eng.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var timeoutCh <-chan time.Time
	if flagTimeout > 0 {
		timeoutCh = time.After(time.Duration(flagTimeout) * time.Second)
	}

	signalled := false
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		signalled = true
	case <-timeoutCh:
		log.Info().Int("timeout_s", flagTimeout).Msg("run timeout reached")
	}

	eng.Stop(common.DefaultDrainDeadlineSeconds * time.Second)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if signalled {
		return &exitError{code: exitSignalled, err: fmt.Errorf("cancelled by signal")}
	}
	return nil
}

func metricsMux(eng *engine.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(eng.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.code != exitSignalled {
				log.Error().Err(ee.err).Msg("bitrader exited with error")
			}
			os.Exit(ee.code)
		}
		log.Error().Err(err).Msg("bitrader exited with error")
		os.Exit(1)
	}
}
