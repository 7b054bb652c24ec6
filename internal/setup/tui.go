// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/config"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath file written by the wizard.
const DefaultPath = "config.gen.yaml"

const (
	modeSimulate = "simulate"
	modeLive     = "live"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Mode             string
	Owner            string
	SpendToken       string
	SecondaryTrading string
	SecondaryPairs   string
	PrimaryMinMargin string
	SecondaryMin     string
	Slippage         string
	SplitOrders      bool
	Pricers          []string

	RPCURL        string
	LensAddress   string
	EntryPoint    string
	BundlerURL    string
	PrimaryAPI    string
	SecondaryAPI  string
	BridgeAPI     string
	SimMarket     string
	SimLiquidity  string
	SimFeeRate    string
	SimSpend      string
	SimVault      string
	PollPositions string
}

func defaults() Answers {
	return Answers{
		Mode:             modeSimulate,
		SecondaryPairs:   "BTC/USD=0",
		PrimaryMinMargin: "5",
		SecondaryMin:     "5",
		Slippage:         "1",
		SplitOrders:      true,
		Pricers:          []string{config.PricerBinance},
		SimMarket:        "BTC/USD",
		SimLiquidity:     "100000",
		SimFeeRate:       "0.001",
		SimSpend:         "1000",
		SimVault:         "0",
		PollPositions:    "1s",
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultPath
	}
	a := defaults()

	screen("STEP 1: MODE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Route one order across two perp venues.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Execution mode").
				Options(
					huh.NewOption("Simulation (local wallets, no chain)", modeSimulate),
					huh.NewOption("Live (bundler + venue APIs)", modeLive),
				).
				Value(&a.Mode),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: ACCOUNT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Owner address").Value(&a.Owner).Validate(validateAddress),
			huh.NewInput().Title("Spend token address").Value(&a.SpendToken).Validate(validateAddress),
			huh.NewInput().Title("Secondary trading contract").Value(&a.SecondaryTrading).Validate(validateAddress),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: ROUTING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Secondary pairs").
				Description("Comma separated PAIR=INDEX (e.g. BTC/USD=0,ETH/USD=1)").
				Value(&a.SecondaryPairs).
				Validate(func(s string) error {
					_, err := parseSecondaryPairs(s)
					return err
				}),
			huh.NewInput().Title("Primary minimum margin").Value(&a.PrimaryMinMargin).Validate(validateNonNegative),
			huh.NewInput().Title("Secondary minimum margin").Value(&a.SecondaryMin).Validate(validateNonNegative),
			huh.NewInput().Title("Slippage %").Value(&a.Slippage).Validate(validateNonNegative),
			huh.NewConfirm().Title("Split orders across venues?").Value(&a.SplitOrders),
			huh.NewMultiSelect[string]().
				Title("Mark price sources").
				Options(
					huh.NewOption("Binance", config.PricerBinance),
					huh.NewOption("Bybit", config.PricerBybit),
					huh.NewOption("Hyperliquid", config.PricerHyperliquid),
				).
				Value(&a.Pricers),
			huh.NewInput().
				Title("Position poll interval").
				Description("Duration string (e.g. 500ms, 1s)").
				Value(&a.PollPositions).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.Mode == modeSimulate {
		screen("STEP 4: SIMULATION")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Market").Value(&a.SimMarket).Validate(validatePair),
				huh.NewInput().Title("Primary liquidity per side").Value(&a.SimLiquidity).Validate(validateNonNegative),
				huh.NewInput().Title("Primary fee rate").Value(&a.SimFeeRate).Validate(validateNonNegative),
				huh.NewInput().Title("Starting spend wallet").Value(&a.SimSpend).Validate(validateNonNegative),
				huh.NewInput().Title("Starting vault").Value(&a.SimVault).Validate(validateNonNegative),
			),
		).Run()
	} else {
		screen("STEP 4: ENDPOINTS")
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(
			fmt.Sprintf("The session key is read from %s at startup.\n", config.EnvSessionKey)))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("RPC URL").Value(&a.RPCURL).Validate(required),
				huh.NewInput().Title("Lens contract").Value(&a.LensAddress).Validate(validateAddress),
				huh.NewInput().Title("Entry point").Value(&a.EntryPoint).Validate(validateAddress),
				huh.NewInput().Title("Bundler URL").Value(&a.BundlerURL).Validate(required),
				huh.NewInput().Title("Primary API URL").Value(&a.PrimaryAPI).Validate(required),
				huh.NewInput().Title("Secondary API URL").Value(&a.SecondaryAPI),
				huh.NewInput().Title("Bridge API URL").Value(&a.BridgeAPI).Validate(required),
			),
		).Run()
	}
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Mode: %s\nOwner: %s\nSecondary pairs: %s\nSplit: %t\nPricers: %s\n",
		a.Mode, a.Owner, a.SecondaryPairs, a.SplitOrders, strings.Join(a.Pricers, ", "),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	data, err := Render(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting router...", path)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

// Render builds the YAML document for the answers.
func Render(a Answers) ([]byte, error) {
	secondary, err := parseSecondaryPairs(a.SecondaryPairs)
	if err != nil {
		return nil, err
	}
	positions, err := time.ParseDuration(a.PollPositions)
	if err != nil {
		return nil, fmt.Errorf("invalid position poll interval: %w", err)
	}

	split := a.SplitOrders
	tmp := config.ConfigTmp{
		Simulate:           a.Mode == modeSimulate,
		Owner:              a.Owner,
		SecondaryPairs:     secondary,
		PrimaryMinMargin:   a.PrimaryMinMargin,
		SecondaryMinMargin: a.SecondaryMin,
		SplitOrders:        &split,
		SlippagePercent:    a.Slippage,
		SpendToken:         a.SpendToken,
		SecondaryTrading:   a.SecondaryTrading,
		PositionsInterval:  positions,
		Pricers:            a.Pricers,
	}

	if tmp.Simulate {
		pair, err := domain.ParsePair(a.SimMarket)
		if err != nil {
			return nil, err
		}
		tmp.Simulation = &config.SimulationTmp{
			Vault: a.SimVault,
			Spend: a.SimSpend,
			Markets: []config.MarketTmp{{
				Pair:           pair.String(),
				PairIndex:      0,
				LongLiquidity:  a.SimLiquidity,
				ShortLiquidity: a.SimLiquidity,
				LongFeeRate:    a.SimFeeRate,
				ShortFeeRate:   a.SimFeeRate,
			}},
		}
	} else {
		tmp.RPCURL = a.RPCURL
		tmp.LensAddress = a.LensAddress
		tmp.EntryPoint = a.EntryPoint
		tmp.BundlerURL = a.BundlerURL
		tmp.PrimaryAPIURL = a.PrimaryAPI
		tmp.SecondaryAPIURL = a.SecondaryAPI
		tmp.BridgeAPIURL = a.BridgeAPI
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to generate yaml: %w", err)
	}
	return data, nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PERPSPLIT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

func parseSecondaryPairs(s string) (map[string]uint16, error) {
	out := make(map[string]uint16)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, idx, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q: expected PAIR=INDEX", entry)
		}
		pair, err := domain.ParsePair(name)
		if err != nil {
			return nil, err
		}
		var index uint16
		if _, err := fmt.Sscanf(strings.TrimSpace(idx), "%d", &index); err != nil {
			return nil, fmt.Errorf("invalid pair index in %q", entry)
		}
		out[pair.String()] = index
	}
	return out, nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 0x-prefixed address")
	}
	return nil
}

func validatePair(s string) error {
	_, err := domain.ParsePair(s)
	return err
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}
