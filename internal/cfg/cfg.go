// Package cfg provides configuration management for the trading engine.
// It loads a YAML config file into a ConfigFile, then resolves it into a
// flat, validated Settings struct, with environment variables taking
// precedence over YAML for the handful of values operators need to
// override per-deployment (credentials, data path, metrics port).
//
// The package handles validation of every configuration section and
// supplies sensible defaults for optional settings.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Inkedup1114/bitrader/internal/common"
	"github.com/Inkedup1114/bitrader/internal/exchange"
	"github.com/Inkedup1114/bitrader/internal/position"
	"github.com/Inkedup1114/bitrader/internal/risk"
)

// TradingMode selects how orders are routed.
type TradingMode string

const (
	ModeLive     TradingMode = "live"
	ModePaper    TradingMode = "paper"
	ModeBacktest TradingMode = "backtest"
)

// GeneralSettings is general.* from the config surface.
type GeneralSettings struct {
	UpdateInterval time.Duration
	Timezone       string
}

// TradingSettings is trading.* from the config surface.
type TradingSettings struct {
	Mode              TradingMode
	MaxOpenTrades     int
	DailyTargetProfit *decimal.Decimal // fraction of equity; nil disables exit-only mode
	ExitOnTarget      bool
}

// RateLimitSettings is exchange.rate_limit.*.
type RateLimitSettings struct {
	RequestsPerMinute int
	OrderRateLimit    int
}

// ExchangeSettings is exchange.* from the config surface.
type ExchangeSettings struct {
	Name       string
	Testnet    bool
	APIKey     string
	APISecret  string
	BaseURL    string
	WsURL      string
	RESTTimeout time.Duration
	RateLimit  RateLimitSettings
}

// SymbolBinding is one entry of symbols[]: an (instrument, timeframe,
// strategy) triple plus its sizing overrides.
type SymbolBinding struct {
	Symbol        string
	Timeframe     exchange.Timeframe
	Strategy      string
	Quantity      *decimal.Decimal // fixed size override; nil means risk-engine sized
	MaxAllocation decimal.Decimal  // fraction of equity
	// RiskOverrides, when set, is the fully resolved risk configuration
	// for this binding: the global risk.* settings with the binding's
	// risk: block merged on top. Nil means the binding uses the global
	// settings unchanged. Aggregate bounds (max_risk_total) stay global.
	RiskOverrides *RiskSettings
}

// RiskSettings is risk.* from the config surface: the global defaults,
// overridable per binding through a symbols[].risk block.
type RiskSettings struct {
	SizingAlgorithm risk.SizingAlgorithm // empty selects fixed-fraction, or volatility-scaled when UseATRForStops is set

	MaxRiskPerTrade decimal.Decimal
	MaxRiskTotal    decimal.Decimal

	DefaultStopLossPct decimal.Decimal
	TargetProfitPct    decimal.Decimal

	UseTrailingStop            bool
	TrailingStopActivationPct  decimal.Decimal
	TrailingStopDistancePct    decimal.Decimal

	UseATRForStops bool
	ATRMultiplier  decimal.Decimal
	ATRPeriod      int

	KellyWinProbability float64
	KellyWinLossRatio   float64
	KellyMaxFraction    decimal.Decimal
	KellyHalfFraction   bool
}

// Settings is the fully resolved configuration the Engine Root consumes.
type Settings struct {
	General  GeneralSettings
	Trading  TradingSettings
	Exchange ExchangeSettings
	Symbols  []SymbolBinding
	Risk     RiskSettings

	// Strategies holds strategies.<name>.* raw parameter maps, handed to
	// strategy.Strategy.Initialize unmodified.
	Strategies map[string]map[string]any

	InitialBalance decimal.Decimal
	DataPath       string
	MetricsPort    int
}

// effectiveRisk returns the risk configuration a binding actually trades
// under: its merged overrides when present, the global section otherwise.
func (s *Settings) effectiveRisk(binding SymbolBinding) RiskSettings {
	if binding.RiskOverrides != nil {
		return *binding.RiskOverrides
	}
	return s.Risk
}

// ToRiskParams projects one binding's effective risk configuration (plus
// the global daily target/exit-on-target trading flags and aggregate
// bounds) into risk.Params.
func (s *Settings) ToRiskParams(binding SymbolBinding) risk.Params {
	r := s.effectiveRisk(binding)
	algo := r.SizingAlgorithm
	if algo == "" {
		algo = risk.FixedFraction
		if r.UseATRForStops {
			algo = risk.VolatilityScaled
		}
	}
	return risk.Params{
		Algorithm:             algo,
		MaxRiskPerTrade:       r.MaxRiskPerTrade,
		MaxRiskTotal:          s.Risk.MaxRiskTotal,
		MaxOpenTrades:         s.Trading.MaxOpenTrades,
		MaxAllocation:         binding.MaxAllocation,
		DefaultStopLossPct:    r.DefaultStopLossPct,
		TargetProfitPct:       r.TargetProfitPct,
		UseATRForStops:        r.UseATRForStops,
		ATRMultiplier:         r.ATRMultiplier,
		ATRPeriod:             r.ATRPeriod,
		UseTrailingStop:       r.UseTrailingStop,
		TrailingActivationPct: r.TrailingStopActivationPct,
		TrailingDistancePct:   r.TrailingStopDistancePct,
		DailyTargetProfit:     s.Trading.DailyTargetProfit,
		ExitOnTarget:          s.Trading.ExitOnTarget,
		KellyWinProbability:   r.KellyWinProbability,
		KellyWinLossRatio:     r.KellyWinLossRatio,
		KellyMaxFraction:      r.KellyMaxFraction,
		KellyHalfFraction:     r.KellyHalfFraction,
	}
}

// ToTrailingParams projects one binding's effective risk configuration
// into position.TrailingParams.
func (s *Settings) ToTrailingParams(binding SymbolBinding) position.TrailingParams {
	r := s.effectiveRisk(binding)
	return position.TrailingParams{
		UseTrailing:   r.UseTrailingStop,
		ActivationPct: r.TrailingStopActivationPct,
		DistancePct:   r.TrailingStopDistancePct,
	}
}

// configFile is the YAML shape of the configuration file.
type configFile struct {
	General struct {
		UpdateIntervalSeconds int    `yaml:"update_interval"`
		Timezone              string `yaml:"timezone"`
	} `yaml:"general"`

	Trading struct {
		Mode              string   `yaml:"mode"`
		MaxOpenTrades     int      `yaml:"max_open_trades"`
		DailyTargetProfit *float64 `yaml:"daily_target_profit"`
		ExitOnTarget      bool     `yaml:"exit_on_target"`
	} `yaml:"trading"`

	Exchange struct {
		Name        string `yaml:"name"`
		Testnet     bool   `yaml:"testnet"`
		Credentials struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
		} `yaml:"credentials"`
		BaseURL    string `yaml:"base_url"`
		WsURL      string `yaml:"ws_url"`
		RESTTimeoutSeconds int `yaml:"rest_timeout_seconds"`
		RateLimit  struct {
			RequestsPerMinute int `yaml:"requests_per_minute"`
			OrderRateLimit    int `yaml:"order_rate_limit"`
		} `yaml:"rate_limit"`
	} `yaml:"exchange"`

	Symbols []struct {
		Symbol        string            `yaml:"symbol"`
		Timeframe     string            `yaml:"timeframe"`
		Strategy      string            `yaml:"strategy"`
		Quantity      *float64          `yaml:"quantity"`
		MaxAllocation float64           `yaml:"max_allocation"`
		Risk          *riskOverrideFile `yaml:"risk"`
	} `yaml:"symbols"`

	Risk struct {
		SizingAlgorithm           string  `yaml:"sizing_algorithm"`
		MaxRiskPerTrade           float64 `yaml:"max_risk_per_trade"`
		MaxRiskTotal              float64 `yaml:"max_risk_total"`
		DefaultStopLossPct        float64 `yaml:"default_stop_loss_pct"`
		UseTrailingStop           bool    `yaml:"use_trailing_stop"`
		TrailingStopActivationPct float64 `yaml:"trailing_stop_activation_pct"`
		TrailingStopDistancePct   float64 `yaml:"trailing_stop_distance_pct"`
		TargetProfitPct           float64 `yaml:"target_profit_pct"`
		UseATRForStops            bool    `yaml:"use_atr_for_stops"`
		ATRMultiplier             float64 `yaml:"atr_multiplier"`
		ATRPeriod                 int     `yaml:"atr_period"`
		KellyWinProbability       float64 `yaml:"kelly_win_probability"`
		KellyWinLossRatio         float64 `yaml:"kelly_win_loss_ratio"`
		KellyMaxFraction          float64 `yaml:"kelly_max_fraction"`
		KellyHalfFraction         *bool   `yaml:"kelly_half_fraction"`
	} `yaml:"risk"`

	Strategies map[string]map[string]any `yaml:"strategies"`

	System struct {
		DataPath       string  `yaml:"data_path"`
		MetricsPort    int     `yaml:"metrics_port"`
		InitialBalance float64 `yaml:"initial_balance"`
	} `yaml:"system"`
}

// riskOverrideFile is the optional risk: block on one symbols[] entry.
// Every field is a pointer so an absent key inherits the global value.
// The aggregate bound (max_risk_total) is deliberately not overridable:
// it caps the whole account, not one binding.
type riskOverrideFile struct {
	SizingAlgorithm           *string  `yaml:"sizing_algorithm"`
	MaxRiskPerTrade           *float64 `yaml:"max_risk_per_trade"`
	DefaultStopLossPct        *float64 `yaml:"default_stop_loss_pct"`
	TargetProfitPct           *float64 `yaml:"target_profit_pct"`
	UseTrailingStop           *bool    `yaml:"use_trailing_stop"`
	TrailingStopActivationPct *float64 `yaml:"trailing_stop_activation_pct"`
	TrailingStopDistancePct   *float64 `yaml:"trailing_stop_distance_pct"`
	UseATRForStops            *bool    `yaml:"use_atr_for_stops"`
	ATRMultiplier             *float64 `yaml:"atr_multiplier"`
	ATRPeriod                 *int     `yaml:"atr_period"`
	KellyWinProbability       *float64 `yaml:"kelly_win_probability"`
	KellyWinLossRatio         *float64 `yaml:"kelly_win_loss_ratio"`
	KellyMaxFraction          *float64 `yaml:"kelly_max_fraction"`
	KellyHalfFraction         *bool    `yaml:"kelly_half_fraction"`
}

// mergeOnto resolves the override block against the global risk section,
// returning the binding's fully merged settings, or nil when the symbol
// declared no risk: block at all.
func (o *riskOverrideFile) mergeOnto(base RiskSettings) *RiskSettings {
	if o == nil {
		return nil
	}
	merged := base
	if o.SizingAlgorithm != nil {
		merged.SizingAlgorithm = risk.SizingAlgorithm(*o.SizingAlgorithm)
	}
	if o.MaxRiskPerTrade != nil {
		merged.MaxRiskPerTrade = decimal.NewFromFloat(*o.MaxRiskPerTrade)
	}
	if o.DefaultStopLossPct != nil {
		merged.DefaultStopLossPct = decimal.NewFromFloat(*o.DefaultStopLossPct)
	}
	if o.TargetProfitPct != nil {
		merged.TargetProfitPct = decimal.NewFromFloat(*o.TargetProfitPct)
	}
	if o.UseTrailingStop != nil {
		merged.UseTrailingStop = *o.UseTrailingStop
	}
	if o.TrailingStopActivationPct != nil {
		merged.TrailingStopActivationPct = decimal.NewFromFloat(*o.TrailingStopActivationPct)
	}
	if o.TrailingStopDistancePct != nil {
		merged.TrailingStopDistancePct = decimal.NewFromFloat(*o.TrailingStopDistancePct)
	}
	if o.UseATRForStops != nil {
		merged.UseATRForStops = *o.UseATRForStops
	}
	if o.ATRMultiplier != nil {
		merged.ATRMultiplier = decimal.NewFromFloat(*o.ATRMultiplier)
	}
	if o.ATRPeriod != nil {
		merged.ATRPeriod = *o.ATRPeriod
	}
	if o.KellyWinProbability != nil {
		merged.KellyWinProbability = *o.KellyWinProbability
	}
	if o.KellyWinLossRatio != nil {
		merged.KellyWinLossRatio = *o.KellyWinLossRatio
	}
	if o.KellyMaxFraction != nil {
		merged.KellyMaxFraction = decimal.NewFromFloat(*o.KellyMaxFraction)
	}
	if o.KellyHalfFraction != nil {
		merged.KellyHalfFraction = *o.KellyHalfFraction
	}
	return &merged
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw configFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	settings := resolve(raw)

	if err := validate(settings); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func resolve(raw configFile) *Settings {
	updateInterval := time.Duration(raw.General.UpdateIntervalSeconds) * time.Second
	if updateInterval <= 0 {
		updateInterval = time.Duration(common.DefaultUpdateInterval) * time.Second
	}

	maxOpenTrades := raw.Trading.MaxOpenTrades
	if maxOpenTrades <= 0 {
		maxOpenTrades = common.DefaultMaxOpenTrades
	}

	var dailyTarget *decimal.Decimal
	if raw.Trading.DailyTargetProfit != nil {
		d := decimal.NewFromFloat(*raw.Trading.DailyTargetProfit)
		dailyTarget = &d
	}

	restTimeout := time.Duration(raw.Exchange.RESTTimeoutSeconds) * time.Second
	if restTimeout <= 0 {
		restTimeout = time.Duration(common.DefaultRESTTimeout) * time.Second
	}

	requestsPerMinute := raw.Exchange.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = common.DefaultRequestsPerMinute
	}
	orderRateLimit := raw.Exchange.RateLimit.OrderRateLimit
	if orderRateLimit <= 0 {
		orderRateLimit = common.DefaultOrderRateLimit
	}

	stopLossPct := orDefault(raw.Risk.DefaultStopLossPct, common.DefaultStopLossPct)
	targetProfitPct := orDefault(raw.Risk.TargetProfitPct, common.DefaultTargetProfitPct)
	atrMultiplier := orDefault(raw.Risk.ATRMultiplier, common.DefaultATRMultiplier)
	atrPeriod := raw.Risk.ATRPeriod
	if atrPeriod <= 0 {
		atrPeriod = common.DefaultATRPeriod
	}
	trailingActivation := orDefault(raw.Risk.TrailingStopActivationPct, common.DefaultTrailingActivationPct)
	trailingDistance := orDefault(raw.Risk.TrailingStopDistancePct, common.DefaultTrailingDistancePct)
	maxRiskPerTrade := orDefault(raw.Risk.MaxRiskPerTrade, common.DefaultMaxRiskPerTrade)
	maxRiskTotal := orDefault(raw.Risk.MaxRiskTotal, common.DefaultMaxRiskTotal)

	kellyHalf := true
	if raw.Risk.KellyHalfFraction != nil {
		kellyHalf = *raw.Risk.KellyHalfFraction
	}

	riskBase := RiskSettings{
		SizingAlgorithm:           risk.SizingAlgorithm(raw.Risk.SizingAlgorithm),
		MaxRiskPerTrade:           decimal.NewFromFloat(maxRiskPerTrade),
		MaxRiskTotal:              decimal.NewFromFloat(maxRiskTotal),
		DefaultStopLossPct:        decimal.NewFromFloat(stopLossPct),
		TargetProfitPct:           decimal.NewFromFloat(targetProfitPct),
		UseTrailingStop:           raw.Risk.UseTrailingStop,
		TrailingStopActivationPct: decimal.NewFromFloat(trailingActivation),
		TrailingStopDistancePct:   decimal.NewFromFloat(trailingDistance),
		UseATRForStops:            raw.Risk.UseATRForStops,
		ATRMultiplier:             decimal.NewFromFloat(atrMultiplier),
		ATRPeriod:                 atrPeriod,
		KellyWinProbability:       raw.Risk.KellyWinProbability,
		KellyWinLossRatio:         raw.Risk.KellyWinLossRatio,
		KellyMaxFraction:          decimal.NewFromFloat(orDefault(raw.Risk.KellyMaxFraction, common.DefaultKellyMaxFraction)),
		KellyHalfFraction:         kellyHalf,
	}

	bindings := make([]SymbolBinding, 0, len(raw.Symbols))
	for _, sym := range raw.Symbols {
		maxAlloc := sym.MaxAllocation
		if maxAlloc <= 0 {
			maxAlloc = common.DefaultMaxAllocation
		}
		var qty *decimal.Decimal
		if sym.Quantity != nil {
			q := decimal.NewFromFloat(*sym.Quantity)
			qty = &q
		}
		bindings = append(bindings, SymbolBinding{
			Symbol:        sym.Symbol,
			Timeframe:     exchange.Timeframe(sym.Timeframe),
			Strategy:      sym.Strategy,
			Quantity:      qty,
			MaxAllocation: decimal.NewFromFloat(maxAlloc),
			RiskOverrides: sym.Risk.mergeOnto(riskBase),
		})
	}

	metricsPort := raw.System.MetricsPort
	if metricsPort <= 0 {
		metricsPort = common.DefaultMetricsPort
	}

	settings := &Settings{
		General: GeneralSettings{
			UpdateInterval: updateInterval,
			Timezone:       getEnvOrDefault("TIMEZONE", orDefaultStr(raw.General.Timezone, "UTC")),
		},
		Trading: TradingSettings{
			Mode:              TradingMode(orDefaultStr(raw.Trading.Mode, string(ModePaper))),
			MaxOpenTrades:     maxOpenTrades,
			DailyTargetProfit: dailyTarget,
			ExitOnTarget:      raw.Trading.ExitOnTarget,
		},
		Exchange: ExchangeSettings{
			Name:        orDefaultStr(raw.Exchange.Name, "bitunix"),
			Testnet:     raw.Exchange.Testnet,
			APIKey:      getEnvOrDefault(common.EnvExchangeAPIKey, raw.Exchange.Credentials.APIKey),
			APISecret:   getEnvOrDefault(common.EnvExchangeSecretKey, raw.Exchange.Credentials.APISecret),
			BaseURL:     getEnvOrDefault(common.EnvBaseURL, orDefaultStr(raw.Exchange.BaseURL, common.DefaultBaseURL)),
			WsURL:       getEnvOrDefault(common.EnvWsURL, orDefaultStr(raw.Exchange.WsURL, common.DefaultWsURL)),
			RESTTimeout: restTimeout,
			RateLimit: RateLimitSettings{
				RequestsPerMinute: requestsPerMinute,
				OrderRateLimit:    orderRateLimit,
			},
		},
		Symbols:        bindings,
		Risk:           riskBase,
		Strategies:     raw.Strategies,
		DataPath:       getEnvOrDefault(common.EnvDataPath, orDefaultStr(raw.System.DataPath, "./data")),
		MetricsPort:    getIntOrDefault(common.EnvMetricsPort, metricsPort),
		InitialBalance: decimal.NewFromFloat(orDefault(raw.System.InitialBalance, 1000)),
	}

	return settings
}

func validate(s *Settings) error {
	if s.Trading.Mode == ModeLive {
		if s.Exchange.APIKey == "" || s.Exchange.APISecret == "" {
			return fmt.Errorf(common.ErrMsgAPIKeyRequired)
		}
		if os.Getenv(common.EnvForceLiveTrading) != "true" {
			return fmt.Errorf(common.ErrMsgLiveTradingGuard)
		}
	}
	if s.Exchange.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if len(s.Symbols) == 0 {
		return fmt.Errorf(common.ErrMsgSymbolRequired)
	}
	for _, b := range s.Symbols {
		switch b.Timeframe {
		case exchange.TF1m, exchange.TF5m, exchange.TF15m, exchange.TF1h, exchange.TF4h, exchange.TF1d:
		default:
			return fmt.Errorf("%s: %q (symbol %s)", common.ErrMsgUnknownTimeframe, b.Timeframe, b.Symbol)
		}
	}
	if s.General.UpdateInterval < time.Duration(common.MinUpdateIntervalSeconds)*time.Second {
		return fmt.Errorf("general.update_interval must be >= %ds", common.MinUpdateIntervalSeconds)
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("system.metrics_port must be in [%d,%d]", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if err := validateRisk(s.Risk); err != nil {
		return err
	}
	for _, b := range s.Symbols {
		if b.RiskOverrides == nil {
			continue
		}
		if err := validateRisk(*b.RiskOverrides); err != nil {
			return fmt.Errorf("symbol %s: %w", b.Symbol, err)
		}
	}
	return nil
}

// validateRisk checks one resolved risk section — the global one or a
// binding's merged overrides.
func validateRisk(r RiskSettings) error {
	switch r.SizingAlgorithm {
	case "", risk.FixedFraction, risk.VolatilityScaled:
	case risk.KellyFraction:
		if r.KellyWinLossRatio <= 0 {
			return fmt.Errorf("risk.kelly_win_loss_ratio must be > 0 for kelly_fraction sizing")
		}
		if r.KellyWinProbability <= 0 || r.KellyWinProbability >= 1 {
			return fmt.Errorf("risk.kelly_win_probability must be in (0,1) for kelly_fraction sizing")
		}
	default:
		return fmt.Errorf("%s: %q", common.ErrMsgUnknownSizingAlgo, r.SizingAlgorithm)
	}
	if r.MaxRiskPerTrade.GreaterThan(decimal.NewFromFloat(common.MaxRiskFraction)) {
		return fmt.Errorf("risk.max_risk_per_trade must be <= %v", common.MaxRiskFraction)
	}
	return nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
