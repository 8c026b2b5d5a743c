package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/config"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile file written by the wizard.
const DefaultConfigFile = "config.gen.yaml"

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

func header(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("RANGEBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and returns the path of the written config.
func RunTUI() (string, error) {
	tmp := config.ConfigTmp{
		AllowablePercent:  "0.01",
		OrderKind:         string(domain.OrderKindMarket),
		SellSizing:        string(domain.SellSizingBudget),
		ShutdownDelay:     config.DefaultShutdownDelay,
		PollPriceInterval: config.DefaultPollPriceInterval,
		LotSizeDir:        config.DefaultLotSizeDir,
	}
	pollIntervalStr := tmp.PollPriceInterval.String()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("RANGEBOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Buy low in one band, sell in the other.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
					huh.NewOption("Simulation", "simulate"),
				).
				Value(&tmp.Platform),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE, e.g. ETH_BTC").
				Value(&tmp.Pair).
				Validate(func(s string) error {
					_, err := domain.ParsePair(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("STEP 3: BANDS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Buy Price").
				Description("Center of the buy band").
				Value(&tmp.BuyPrice).
				Validate(validatePositive),
			huh.NewInput().
				Title("Sell Price").
				Description("Center of the sell band").
				Value(&tmp.SellPrice).
				Validate(validatePositive),
			huh.NewInput().
				Title("Allowable Percent").
				Description("Band half-width as a fraction, 0.01 means 1%").
				Value(&tmp.AllowablePercent).
				Validate(validateFraction),
			huh.NewInput().
				Title("Amount").
				Description("Quote budget per leg, empty means the buy band lower bound").
				Value(&tmp.Amount).
				Validate(validateOptionalPositive),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("STEP 4: ORDERS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Order Type").
				Options(
					huh.NewOption("Market", string(domain.OrderKindMarket)),
					huh.NewOption("Limit at touch price", string(domain.OrderKindLimit)),
				).
				Value(&tmp.OrderKind),
			huh.NewSelect[string]().
				Title("Sell Size").
				Options(
					huh.NewOption("Same budget as the buy", string(domain.SellSizingBudget)),
					huh.NewOption("Whole free balance", string(domain.SellSizingBalance)),
				).
				Value(&tmp.SellSizing),
			huh.NewInput().
				Title("Poll Price Interval").
				Description("Used by polling backends (e.g. 2s, 5s)").
				Value(&pollIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nBuy: %s\nSell: %s\nPercent: %s\nOrders: %s\n",
		tmp.Platform, tmp.Pair, tmp.BuyPrice, tmp.SellPrice, tmp.AllowablePercent, tmp.OrderKind,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

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
		return "", err
	}
	if !confirm {
		return "", errors.New("setup cancelled by user")
	}

	tmp.PollPriceInterval, _ = time.ParseDuration(pollIntervalStr)
	if err := Save(DefaultConfigFile, tmp); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", DefaultConfigFile)))
	time.Sleep(1500 * time.Millisecond)

	return DefaultConfigFile, nil
}

// Save validates tmp and writes it as a one-session YAML config.
func Save(path string, tmp config.ConfigTmp) error {
	data, err := yaml.Marshal([]config.ConfigTmp{tmp})
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if _, err := config.ParseYAML(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}

	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}

func validateOptionalPositive(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validatePositive(s)
}

func validateFraction(s string) error {
	if err := validatePositive(s); err != nil {
		return err
	}
	if !decimal.RequireFromString(strings.TrimSpace(s)).LessThan(decimal.NewFromInt(1)) {
		return errors.New("must be below 1")
	}
	return nil
}
