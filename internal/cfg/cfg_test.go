package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Inkedup1114/bitrader/internal/common"
	"github.com/Inkedup1114/bitrader/internal/risk"
)

func decimalFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const minimalYAML = `
general:
  update_interval: 30
  timezone: UTC

trading:
  mode: paper
  max_open_trades: 3
  exit_on_target: false

exchange:
  name: bitunix
  testnet: true
  base_url: https://api.example.test
  ws_url: wss://stream.example.test
  rate_limit:
    requests_per_minute: 1000
    order_rate_limit: 50

symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
    max_allocation: 0.2

risk:
  max_risk_per_trade: 0.01
  max_risk_total: 0.05
  default_stop_loss_pct: 0.03
  target_profit_pct: 0.05
  use_trailing_stop: true
  trailing_stop_activation_pct: 0.02
  trailing_stop_distance_pct: 0.015

system:
  data_path: ./testdata
  metrics_port: 9100
  initial_balance: 1000
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadResolvesMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	settings, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ModePaper, settings.Trading.Mode)
	require.Equal(t, 3, settings.Trading.MaxOpenTrades)
	require.Equal(t, 30*time.Second, settings.General.UpdateInterval)
	require.Len(t, settings.Symbols, 1)
	require.Equal(t, "XRPUSDT", settings.Symbols[0].Symbol)
	require.Equal(t, "smacross", settings.Symbols[0].Strategy)
	require.True(t, settings.Symbols[0].MaxAllocation.Equal(decimalFromString("0.2")))
	require.Equal(t, 9100, settings.MetricsPort)
}

func TestLoadAppliesDefaultsForOmittedOptionalFields(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	settings, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, common.DefaultATRPeriod, settings.Risk.ATRPeriod)
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: paper
exchange:
  base_url: https://api.example.test
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownTimeframe(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: paper
exchange:
  base_url: https://api.example.test
symbols:
  - symbol: XRPUSDT
    timeframe: 3m
    strategy: smacross
    max_allocation: 0.2
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadLiveModeRequiresForceFlagAndCredentials(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: live
exchange:
  base_url: https://api.example.test
symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
    max_allocation: 0.2
`)
	_, err := Load(path)
	require.Error(t, err, "live mode without credentials or FORCE_LIVE_TRADING must fail")

	os.Setenv("EXCHANGE_API_KEY", "k")
	os.Setenv("EXCHANGE_SECRET_KEY", "s")
	os.Setenv("FORCE_LIVE_TRADING", "true")
	defer os.Unsetenv("EXCHANGE_API_KEY")
	defer os.Unsetenv("EXCHANGE_SECRET_KEY")
	defer os.Unsetenv("FORCE_LIVE_TRADING")

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ModeLive, settings.Trading.Mode)
}

func TestToRiskParamsProjectsBindingAllocation(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	settings, err := Load(path)
	require.NoError(t, err)

	params := settings.ToRiskParams(settings.Symbols[0])
	require.True(t, params.MaxAllocation.Equal(decimalFromString("0.2")))
	require.Equal(t, settings.Trading.MaxOpenTrades, params.MaxOpenTrades)
}

const kellyYAML = `
trading:
  mode: paper

exchange:
  base_url: https://api.example.test

symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
    max_allocation: 0.2

risk:
  sizing_algorithm: kelly_fraction
  kelly_win_probability: 0.55
  kelly_win_loss_ratio: 1.8
  kelly_max_fraction: 0.2
`

func TestLoadSelectsKellySizingAlgorithm(t *testing.T) {
	path := writeTempConfig(t, kellyYAML)
	settings, err := Load(path)
	require.NoError(t, err)

	params := settings.ToRiskParams(settings.Symbols[0])
	require.Equal(t, risk.KellyFraction, params.Algorithm)
	require.Equal(t, 0.55, params.KellyWinProbability)
	require.Equal(t, 1.8, params.KellyWinLossRatio)
	require.True(t, params.KellyMaxFraction.Equal(decimalFromString("0.2")))
	require.True(t, params.KellyHalfFraction, "half-Kelly is the default")
}

func TestLoadRejectsUnknownSizingAlgorithm(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: paper
exchange:
  base_url: https://api.example.test
symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
risk:
  sizing_algorithm: martingale
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), common.ErrMsgUnknownSizingAlgo)
}

func TestLoadRejectsKellyWithoutParameters(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: paper
exchange:
  base_url: https://api.example.test
symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
risk:
  sizing_algorithm: kelly_fraction
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kelly_win_loss_ratio")
}

const overrideYAML = `
trading:
  mode: paper

exchange:
  base_url: https://api.example.test

symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
    max_allocation: 0.2
    risk:
      sizing_algorithm: kelly_fraction
      kelly_win_probability: 0.6
      kelly_win_loss_ratio: 2.0
      max_risk_per_trade: 0.02
      use_trailing_stop: false
  - symbol: BTCUSDT
    timeframe: 1h
    strategy: rsimeanrev
    max_allocation: 0.3

risk:
  sizing_algorithm: fixed_fraction
  max_risk_per_trade: 0.01
  max_risk_total: 0.05
  default_stop_loss_pct: 0.03
  target_profit_pct: 0.05
  use_trailing_stop: true
  trailing_stop_activation_pct: 0.02
  trailing_stop_distance_pct: 0.015
`

func TestPerSymbolRiskOverridesMergeOntoGlobals(t *testing.T) {
	path := writeTempConfig(t, overrideYAML)
	settings, err := Load(path)
	require.NoError(t, err)

	overridden := settings.ToRiskParams(settings.Symbols[0])
	require.Equal(t, risk.KellyFraction, overridden.Algorithm)
	require.Equal(t, 0.6, overridden.KellyWinProbability)
	require.True(t, overridden.MaxRiskPerTrade.Equal(decimalFromString("0.02")))
	// Keys absent from the override block inherit the global values.
	require.True(t, overridden.DefaultStopLossPct.Equal(decimalFromString("0.03")))
	// The aggregate bound stays global even under an override.
	require.True(t, overridden.MaxRiskTotal.Equal(decimalFromString("0.05")))

	plain := settings.ToRiskParams(settings.Symbols[1])
	require.Equal(t, risk.FixedFraction, plain.Algorithm)
	require.True(t, plain.MaxRiskPerTrade.Equal(decimalFromString("0.01")))
}

func TestToTrailingParamsRespectsOverride(t *testing.T) {
	path := writeTempConfig(t, overrideYAML)
	settings, err := Load(path)
	require.NoError(t, err)

	require.False(t, settings.ToTrailingParams(settings.Symbols[0]).UseTrailing)
	require.True(t, settings.ToTrailingParams(settings.Symbols[1]).UseTrailing)
}

func TestLoadRejectsBadPerSymbolOverride(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  mode: paper
exchange:
  base_url: https://api.example.test
symbols:
  - symbol: XRPUSDT
    timeframe: 15m
    strategy: smacross
    risk:
      sizing_algorithm: kelly_fraction
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "XRPUSDT")
}
