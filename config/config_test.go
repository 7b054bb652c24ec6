package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

const simulateYAML = `
simulate: true
owner: "0x00000000000000000000000000000000000000a1"
spend_token: "0x00000000000000000000000000000000000000b2"
secondary_trading: "0x00000000000000000000000000000000000000c3"
secondary_pairs:
  BTC/USD: 0
  ETH_USD: 1
slippage_percent: "0.5"
balance_interval: 500ms
pricers: [Bybit, hyperliquid]
simulation:
  spend: "2500"
  markets:
    - pair: BTC/USD
      pair_index: 3
      long_liquidity: "6000"
      short_liquidity: "8000"
      long_fee_rate: "0.001"
      short_fee_rate: "0.0012"
`

func TestParseSimulate(t *testing.T) {
	t.Setenv(EnvSessionKey, "")

	cfg, err := Parse([]byte(simulateYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Simulate)
	assert.True(t, cfg.SplitOrders)
	assert.Equal(t, common.HexToAddress("0xa1"), cfg.Owner)
	assert.Equal(t, map[domain.Pair]uint16{
		{From: "BTC", To: "USD"}: 0,
		{From: "ETH", To: "USD"}: 1,
	}, cfg.SecondaryPairs)
	assert.True(t, cfg.SlippagePercent.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Limits.PrimaryMinMargin.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 500*time.Millisecond, cfg.BalanceInterval)
	assert.Equal(t, time.Second, cfg.PositionsInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.QuoteDelay)
	assert.Equal(t, []string{PricerBybit, PricerHyperliquid}, cfg.Pricers)
	assert.Equal(t, "USDT", cfg.PriceQuote)
	assert.Equal(t, int32(6), cfg.SpendDecimals)
	assert.Equal(t, int32(18), cfg.VaultDecimals)
	assert.Equal(t, float64(10), cfg.RequestsPerSecond)

	assert.True(t, cfg.Simulation.Spend.Equal(decimal.NewFromInt(2500)))
	assert.True(t, cfg.Simulation.Native.Equal(decimal.NewFromInt(1)))
	require.Len(t, cfg.Simulation.Markets, 1)
	m := cfg.Simulation.Markets[0]
	assert.Equal(t, "BTC/USD", m.Pair)
	assert.Equal(t, uint16(3), m.PairIndex)
	assert.True(t, m.ShortFeeRate.Equal(decimal.RequireFromString("0.0012")))
}

func TestParseLiveRequiresSecrets(t *testing.T) {
	live := `
owner: "0x00000000000000000000000000000000000000a1"
spend_token: "0x00000000000000000000000000000000000000b2"
secondary_trading: "0x00000000000000000000000000000000000000c3"
lens_address: "0x00000000000000000000000000000000000000d4"
entry_point: "0x00000000000000000000000000000000000000e5"
rpc_url: http://localhost:8545
bundler_url: http://localhost:4337
primary_api_url: http://localhost:9000
bridge_api_url: http://localhost:9001
split_orders: false
`
	t.Setenv(EnvSessionKey, "")
	_, err := Parse([]byte(live))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSessionKey)

	t.Setenv(EnvSessionKey, "0xabc")
	t.Setenv(EnvBybitAPIKey, "key")
	cfg, err := Parse([]byte(live))
	require.NoError(t, err)
	assert.False(t, cfg.SplitOrders)
	assert.Equal(t, "0xabc", cfg.SessionKey)
	assert.Equal(t, "key", cfg.BybitAPIKey)
	assert.Equal(t, []string{PricerBinance}, cfg.Pricers)
}

func TestParseErrors(t *testing.T) {
	t.Setenv(EnvSessionKey, "")

	base := `
simulate: true
owner: "0x00000000000000000000000000000000000000a1"
spend_token: "0x00000000000000000000000000000000000000b2"
secondary_trading: "0x00000000000000000000000000000000000000c3"
simulation:
  markets:
    - pair: BTC/USD
`
	tests := []struct {
		name  string
		yaml  string
		error string
	}{
		{"missing owner", "simulate: true\n", "'owner' is required"},
		{"bad address", "simulate: true\nowner: nope\n", "not an address"},
		{"bad pricer", base + "pricers: [kraken]\n", "unsupported pricer"},
		{"bad slippage", base + "slippage_percent: abc\n", "slippage_percent"},
		{"negative slippage", base + "slippage_percent: \"-1\"\n", "must not be negative"},
		{"bad decimals", base + "spend_decimals: \"99\"\n", "spend_decimals"},
		{"bad secondary pair", base + "secondary_pairs:\n  BTCUSD: 1\n", "secondary_pairs"},
		{"no simulated markets", "simulate: true\nowner: \"0x00000000000000000000000000000000000000a1\"\nspend_token: \"0x00000000000000000000000000000000000000b2\"\nsecondary_trading: \"0x00000000000000000000000000000000000000c3\"\n", "simulation.markets"},
		{"live without rpc", "owner: \"0x00000000000000000000000000000000000000a1\"\nspend_token: \"0x00000000000000000000000000000000000000b2\"\nsecondary_trading: \"0x00000000000000000000000000000000000000c3\"\nlens_address: \"0x00000000000000000000000000000000000000d4\"\nentry_point: \"0x00000000000000000000000000000000000000e5\"\n", "required unless simulate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.error)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvSessionKey, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simulateYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Simulate)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
