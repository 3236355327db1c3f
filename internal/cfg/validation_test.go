package cfg

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Inkedup1114/bitrader/internal/exchange"
	"github.com/Inkedup1114/bitrader/internal/risk"
)

func validSettings() *Settings {
	return &Settings{
		General: GeneralSettings{UpdateInterval: 30 * time.Second, Timezone: "UTC"},
		Trading: TradingSettings{Mode: ModePaper, MaxOpenTrades: 3},
		Exchange: ExchangeSettings{
			Name:    "bitunix",
			BaseURL: "https://api.example.test",
		},
		Symbols: []SymbolBinding{
			{Symbol: "XRPUSDT", Timeframe: exchange.TF15m, Strategy: "smacross", MaxAllocation: decimal.NewFromFloat(0.2)},
		},
		Risk: RiskSettings{
			MaxRiskPerTrade: decimal.NewFromFloat(0.01),
			MaxRiskTotal:    decimal.NewFromFloat(0.05),
		},
		MetricsPort: 9090,
	}
}

func TestValidateAcceptsWellFormedSettings(t *testing.T) {
	assert.NoError(t, validate(validSettings()))
}

func TestValidateRejectsEmptyBaseURL(t *testing.T) {
	s := validSettings()
	s.Exchange.BaseURL = ""
	assert.Error(t, validate(s))
}

func TestValidateRejectsNoSymbols(t *testing.T) {
	s := validSettings()
	s.Symbols = nil
	assert.Error(t, validate(s))
}

func TestValidateRejectsUnknownTimeframe(t *testing.T) {
	s := validSettings()
	s.Symbols[0].Timeframe = exchange.Timeframe("3m")
	assert.Error(t, validate(s))
}

func TestValidateRejectsTooShortUpdateInterval(t *testing.T) {
	s := validSettings()
	s.General.UpdateInterval = 0
	assert.Error(t, validate(s))
}

func TestValidateRejectsMetricsPortOutOfRange(t *testing.T) {
	s := validSettings()
	s.MetricsPort = 80
	assert.Error(t, validate(s))
}

func TestValidateRejectsExcessivePerTradeRisk(t *testing.T) {
	s := validSettings()
	s.Risk.MaxRiskPerTrade = decimal.NewFromFloat(1.5)
	assert.Error(t, validate(s))
}

func TestValidateRejectsUnknownSizingAlgorithm(t *testing.T) {
	s := validSettings()
	s.Risk.SizingAlgorithm = risk.SizingAlgorithm("martingale")
	assert.Error(t, validate(s))
}

func TestValidateRejectsBadOverrideSizingAlgorithm(t *testing.T) {
	s := validSettings()
	override := s.Risk
	override.SizingAlgorithm = risk.SizingAlgorithm("martingale")
	s.Symbols[0].RiskOverrides = &override
	assert.Error(t, validate(s))
}

func TestValidateAcceptsKellyWithParameters(t *testing.T) {
	s := validSettings()
	s.Risk.SizingAlgorithm = risk.KellyFraction
	s.Risk.KellyWinProbability = 0.55
	s.Risk.KellyWinLossRatio = 1.8
	assert.NoError(t, validate(s))
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	s := validSettings()
	s.Trading.Mode = ModeLive
	assert.Error(t, validate(s))
}
