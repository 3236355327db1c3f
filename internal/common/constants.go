// Package common holds small shared constants used across the engine:
// environment variable keys, defaults, and validation bounds for the
// configuration layer.
package common

// Environment variable keys. YAML values are the baseline; the config
// loader reads EXCHANGE_API_KEY, EXCHANGE_SECRET_KEY, BASE_URL, WS_URL,
// DATA_PATH and METRICS_PORT as overrides when set, and FORCE_LIVE_TRADING
// as the live-trading guard. The remaining keys are declared here but not
// read by the loader.
const (
	EnvExchangeAPIKey    = "EXCHANGE_API_KEY"
	EnvExchangeSecretKey = "EXCHANGE_SECRET_KEY"
	EnvForceLiveTrading  = "FORCE_LIVE_TRADING"
	EnvSymbols           = "SYMBOLS"
	EnvBaseURL           = "BASE_URL"
	EnvWsURL             = "WS_URL"
	EnvDataPath          = "DATA_PATH"
	EnvDryRun            = "DRY_RUN"
	EnvMetricsPort       = "METRICS_PORT"
	EnvRESTTimeout       = "REST_TIMEOUT"
	EnvUpdateInterval    = "UPDATE_INTERVAL"
	EnvMaxOpenTrades     = "MAX_OPEN_TRADES"
	EnvMaxRiskPerTrade   = "MAX_RISK_PER_TRADE"
	EnvMaxRiskTotal      = "MAX_RISK_TOTAL"
	EnvDailyTargetProfit = "DAILY_TARGET_PROFIT"
)

// Configuration defaults applied when a setting is absent from both YAML
// and the environment.
const (
	DefaultBaseURL                  = "https://api.exchange.example/v1"
	DefaultWsURL                    = "wss://stream.exchange.example/public"
	DefaultMetricsPort              = 9090
	DefaultRESTTimeout              = 5 // seconds
	DefaultUpdateInterval           = 30 // seconds, heartbeat cadence
	DefaultMaxOpenTrades            = 5
	DefaultMaxRiskPerTrade          = 0.01
	DefaultMaxRiskTotal             = 0.05
	DefaultMaxAllocation            = 0.2
	DefaultStopLossPct              = 0.03
	DefaultTargetProfitPct          = 0.05
	DefaultATRMultiplier            = 2.0
	DefaultATRPeriod                = 14
	DefaultKellyMaxFraction         = 0.25
	DefaultTrailingActivationPct    = 0.02
	DefaultTrailingDistancePct      = 0.015
	DefaultRetryAttempts            = 3
	DefaultRetryBaseDelayMs         = 250
	DefaultCircuitBreakerThreshold  = 5
	DefaultCircuitBreakerCooldownMs = 30000
	DefaultRequestsPerMinute        = 1200
	DefaultOrderRateLimit           = 60
	DefaultWorkerPoolMultiplier     = 2
	DefaultSchedulerJitterMs        = 500
	DefaultDrainDeadlineSeconds     = 30
	DefaultWarmupBars               = 200
)

// Common error messages surfaced by the config validator.
const (
	ErrMsgAPIKeyRequired    = "exchange API key and secret are required for live trading"
	ErrMsgBaseURLRequired   = "exchange.base_url is required"
	ErrMsgSymbolRequired    = "at least one symbol binding is required"
	ErrMsgUnknownStrategy   = "unknown strategy name"
	ErrMsgUnknownTimeframe  = "unknown timeframe"
	ErrMsgUnknownSizingAlgo = "unknown sizing algorithm"
	ErrMsgLiveTradingGuard  = "live trading requires FORCE_LIVE_TRADING=true"
)

// Validation bounds for numeric configuration fields.
const (
	MinUpdateIntervalSeconds = 1
	MaxRiskFraction          = 1.0
	MinMetricsPort           = 1024
	MaxMetricsPort           = 65535
)
