// Package config loads the router configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"gopkg.in/yaml.v3"
)

// Environment variables holding secrets. They are never read from the YAML file.
const (
	EnvSessionKey       = "PERPSPLIT_SESSION_KEY"
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceAPISecret = "BINANCE_API_SECRET"
	EnvBybitAPIKey      = "BYBIT_API_KEY"
	EnvBybitAPISecret   = "BYBIT_API_SECRET"
)

// Supported mark-price sources.
const (
	PricerBinance     = "binance"
	PricerBybit       = "bybit"
	PricerHyperliquid = "hyperliquid"
)

// Config is the parsed configuration.
type Config struct {
	// Simulate runs against the in-process execution simulator instead of the chain.
	Simulate bool
	Owner    common.Address

	// SecondaryPairs maps every pair listed on the secondary venue to its pair index there.
	SecondaryPairs map[domain.Pair]uint16
	Limits         domain.Limits
	SplitOrders    bool
	// SlippagePercent bound for market orders, e.g. 1 for 1%.
	SlippagePercent decimal.Decimal
	Referrer        common.Address
	CollateralIndex uint8

	RPCURL           string
	LensAddress      common.Address
	SpendToken       common.Address
	SecondaryTrading common.Address
	EntryPoint       common.Address
	BundlerURL       string
	SpendDecimals    int32
	VaultDecimals    int32
	NativeDecimals   int32

	PrimaryAPIURL   string
	SecondaryAPIURL string
	BridgeAPIURL    string
	// RequestsPerSecond throttle applied to every venue HTTP client.
	RequestsPerSecond float64

	BalanceInterval   time.Duration
	PositionsInterval time.Duration
	MarketsInterval   time.Duration
	PricesInterval    time.Duration
	QuoteDelay        time.Duration

	// Pricers ordered list of mark-price sources.
	Pricers    []string
	PriceQuote string

	WebAddr   string
	TLSDomain string
	WALDir    string
	StateDir  string

	Simulation Simulation

	// secrets, read from the environment
	SessionKey       string
	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string
}

// Simulation holds the starting wallet and the static registry used by simulate mode.
type Simulation struct {
	Vault   decimal.Decimal
	Spend   decimal.Decimal
	Native  decimal.Decimal
	GasWei  decimal.Decimal
	Markets []clients.PairInfo
}

// ConfigTmp mirrors the YAML document. Numbers are kept as strings and parsed into Config.
type ConfigTmp struct {
	Simulate bool   `yaml:"simulate"`
	Owner    string `yaml:"owner"`

	SecondaryPairs     map[string]uint16 `yaml:"secondary_pairs,omitempty"`
	PrimaryMinMargin   string            `yaml:"primary_min_margin,omitempty"`
	SecondaryMinMargin string            `yaml:"secondary_min_margin,omitempty"`
	SplitOrders        *bool             `yaml:"split_orders,omitempty"`
	SlippagePercent    string            `yaml:"slippage_percent,omitempty"`
	Referrer           string            `yaml:"referrer,omitempty"`
	CollateralIndex    uint8             `yaml:"collateral_index,omitempty"`

	RPCURL           string `yaml:"rpc_url,omitempty"`
	LensAddress      string `yaml:"lens_address,omitempty"`
	SpendToken       string `yaml:"spend_token,omitempty"`
	SecondaryTrading string `yaml:"secondary_trading,omitempty"`
	EntryPoint       string `yaml:"entry_point,omitempty"`
	BundlerURL       string `yaml:"bundler_url,omitempty"`
	SpendDecimals    string `yaml:"spend_decimals,omitempty"`
	VaultDecimals    string `yaml:"vault_decimals,omitempty"`
	NativeDecimals   string `yaml:"native_decimals,omitempty"`

	PrimaryAPIURL     string `yaml:"primary_api_url,omitempty"`
	SecondaryAPIURL   string `yaml:"secondary_api_url,omitempty"`
	BridgeAPIURL      string `yaml:"bridge_api_url,omitempty"`
	RequestsPerSecond string `yaml:"requests_per_second,omitempty"`

	BalanceInterval   time.Duration `yaml:"balance_interval,omitempty"`
	PositionsInterval time.Duration `yaml:"positions_interval,omitempty"`
	MarketsInterval   time.Duration `yaml:"markets_interval,omitempty"`
	PricesInterval    time.Duration `yaml:"prices_interval,omitempty"`
	QuoteDelay        time.Duration `yaml:"quote_delay,omitempty"`

	Pricers    []string `yaml:"pricers,omitempty"`
	PriceQuote string   `yaml:"price_quote,omitempty"`

	WebAddr   string `yaml:"web_addr,omitempty"`
	TLSDomain string `yaml:"tls_domain,omitempty"`
	WALDir    string `yaml:"wal_dir,omitempty"`
	StateDir  string `yaml:"state_dir,omitempty"`

	Simulation *SimulationTmp `yaml:"simulation,omitempty"`
}

// SimulationTmp mirrors the simulation section of the YAML document.
type SimulationTmp struct {
	Vault   string      `yaml:"vault,omitempty"`
	Spend   string      `yaml:"spend,omitempty"`
	Native  string      `yaml:"native,omitempty"`
	GasWei  string      `yaml:"gas_wei,omitempty"`
	Markets []MarketTmp `yaml:"markets,omitempty"`
}

// MarketTmp one static registry entry.
type MarketTmp struct {
	Pair           string `yaml:"pair"`
	PairIndex      uint16 `yaml:"pair_index"`
	LongLiquidity  string `yaml:"long_liquidity"`
	ShortLiquidity string `yaml:"short_liquidity"`
	LongFeeRate    string `yaml:"long_fee_rate"`
	ShortFeeRate   string `yaml:"short_fee_rate"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse parses a YAML document, applies defaults and reads secrets from the environment.
func Parse(data []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse yaml config")
	}
	cfg, err := tmp.toConfig()
	if err != nil {
		return Config{}, err
	}

	cfg.SessionKey = os.Getenv(EnvSessionKey)
	cfg.BinanceAPIKey = os.Getenv(EnvBinanceAPIKey)
	cfg.BinanceAPISecret = os.Getenv(EnvBinanceAPISecret)
	cfg.BybitAPIKey = os.Getenv(EnvBybitAPIKey)
	cfg.BybitAPISecret = os.Getenv(EnvBybitAPISecret)

	if !cfg.Simulate && cfg.SessionKey == "" {
		return Config{}, fmt.Errorf("%s must be set unless simulate is enabled", EnvSessionKey)
	}
	return cfg, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		Simulate:          c.Simulate,
		SplitOrders:       true,
		CollateralIndex:   c.CollateralIndex,
		RPCURL:            c.RPCURL,
		BundlerURL:        c.BundlerURL,
		PrimaryAPIURL:     c.PrimaryAPIURL,
		SecondaryAPIURL:   c.SecondaryAPIURL,
		BridgeAPIURL:      c.BridgeAPIURL,
		BalanceInterval:   orDuration(c.BalanceInterval, 2*time.Second),
		PositionsInterval: orDuration(c.PositionsInterval, time.Second),
		MarketsInterval:   orDuration(c.MarketsInterval, 10*time.Second),
		PricesInterval:    orDuration(c.PricesInterval, 2*time.Second),
		QuoteDelay:        orDuration(c.QuoteDelay, 300*time.Millisecond),
		PriceQuote:        orString(strings.ToUpper(c.PriceQuote), "USDT"),
		WebAddr:           orString(c.WebAddr, ":8080"),
		TLSDomain:         c.TLSDomain,
		WALDir:            orString(c.WALDir, "./wal"),
		StateDir:          orString(c.StateDir, "./state"),
		SecondaryPairs:    make(map[domain.Pair]uint16, len(c.SecondaryPairs)),
	}
	if c.SplitOrders != nil {
		cfg.SplitOrders = *c.SplitOrders
	}

	var err error
	if cfg.Owner, err = address("owner", c.Owner, true); err != nil {
		return Config{}, err
	}
	if cfg.Referrer, err = address("referrer", c.Referrer, false); err != nil {
		return Config{}, err
	}
	if cfg.SpendToken, err = address("spend_token", c.SpendToken, true); err != nil {
		return Config{}, err
	}
	if cfg.SecondaryTrading, err = address("secondary_trading", c.SecondaryTrading, true); err != nil {
		return Config{}, err
	}
	if cfg.LensAddress, err = address("lens_address", c.LensAddress, !c.Simulate); err != nil {
		return Config{}, err
	}
	if cfg.EntryPoint, err = address("entry_point", c.EntryPoint, !c.Simulate); err != nil {
		return Config{}, err
	}
	if !c.Simulate {
		for name, v := range map[string]string{
			"rpc_url":         c.RPCURL,
			"bundler_url":     c.BundlerURL,
			"primary_api_url": c.PrimaryAPIURL,
			"bridge_api_url":  c.BridgeAPIURL,
		} {
			if v == "" {
				return Config{}, fmt.Errorf("'%s' is required unless simulate is enabled", name)
			}
		}
	}

	for raw, index := range c.SecondaryPairs {
		pair, err := domain.ParsePair(raw)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'secondary_pairs' entry %q: %w", raw, err)
		}
		cfg.SecondaryPairs[pair] = index
	}

	if cfg.Limits.PrimaryMinMargin, err = decimalOr("primary_min_margin", c.PrimaryMinMargin, "5"); err != nil {
		return Config{}, err
	}
	if cfg.Limits.SecondaryMinMargin, err = decimalOr("secondary_min_margin", c.SecondaryMinMargin, "5"); err != nil {
		return Config{}, err
	}
	if cfg.SlippagePercent, err = decimalOr("slippage_percent", c.SlippagePercent, "1"); err != nil {
		return Config{}, err
	}
	if cfg.SlippagePercent.IsNegative() {
		return Config{}, fmt.Errorf("'slippage_percent' must not be negative")
	}

	rps, err := decimalOr("requests_per_second", c.RequestsPerSecond, "10")
	if err != nil {
		return Config{}, err
	}
	cfg.RequestsPerSecond = rps.InexactFloat64()

	if cfg.SpendDecimals, err = decimals("spend_decimals", c.SpendDecimals, 6); err != nil {
		return Config{}, err
	}
	if cfg.VaultDecimals, err = decimals("vault_decimals", c.VaultDecimals, 18); err != nil {
		return Config{}, err
	}
	if cfg.NativeDecimals, err = decimals("native_decimals", c.NativeDecimals, 18); err != nil {
		return Config{}, err
	}

	cfg.Pricers = c.Pricers
	if len(cfg.Pricers) == 0 {
		cfg.Pricers = []string{PricerBinance}
	}
	for i, p := range cfg.Pricers {
		p = strings.ToLower(strings.TrimSpace(p))
		switch p {
		case PricerBinance, PricerBybit, PricerHyperliquid:
		default:
			return Config{}, fmt.Errorf("unsupported pricer %q", p)
		}
		cfg.Pricers[i] = p
	}

	if cfg.Simulation, err = c.Simulation.toSimulation(); err != nil {
		return Config{}, err
	}
	if c.Simulate && len(cfg.Simulation.Markets) == 0 {
		return Config{}, fmt.Errorf("'simulation.markets' must list at least one market when simulate is enabled")
	}

	return cfg, nil
}

func (s *SimulationTmp) toSimulation() (Simulation, error) {
	if s == nil {
		s = &SimulationTmp{}
	}
	var (
		out Simulation
		err error
	)
	if out.Vault, err = decimalOr("simulation.vault", s.Vault, "0"); err != nil {
		return Simulation{}, err
	}
	if out.Spend, err = decimalOr("simulation.spend", s.Spend, "1000"); err != nil {
		return Simulation{}, err
	}
	if out.Native, err = decimalOr("simulation.native", s.Native, "1"); err != nil {
		return Simulation{}, err
	}
	if out.GasWei, err = decimalOr("simulation.gas_wei", s.GasWei, "0"); err != nil {
		return Simulation{}, err
	}

	for _, m := range s.Markets {
		pair, err := domain.ParsePair(m.Pair)
		if err != nil {
			return Simulation{}, fmt.Errorf("incorrect 'simulation.markets' pair %q: %w", m.Pair, err)
		}
		info := clients.PairInfo{Pair: pair.String(), PairIndex: m.PairIndex}
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"long_liquidity", m.LongLiquidity, &info.LongLiquidity},
			{"short_liquidity", m.ShortLiquidity, &info.ShortLiquidity},
			{"long_fee_rate", m.LongFeeRate, &info.LongFeeRate},
			{"short_fee_rate", m.ShortFeeRate, &info.ShortFeeRate},
		}
		for _, f := range fields {
			if *f.dst, err = decimalOr("simulation.markets."+f.name, f.raw, "0"); err != nil {
				return Simulation{}, err
			}
		}
		out.Markets = append(out.Markets, info)
	}
	return out, nil
}

func address(name, raw string, required bool) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return common.Address{}, fmt.Errorf("'%s' is required", name)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("incorrect '%s' param in yaml config: %q is not an address", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func decimalOr(name, raw, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}

func decimals(name, raw string, def int32) (int32, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 || n > 36 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be an integer in [0, 36])", name)
	}
	return int32(n), nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
