// Package config loads trading session parameters from YAML or command-line flags.
package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	DefaultShutdownDelay     = 3 * time.Second
	DefaultPollPriceInterval = 5 * time.Second
	DefaultLotSizeDir        = "./wal/lotsizes"
	DefaultEventDir          = "./wal/sessions"
)

var platforms = map[string]struct{}{
	"binance":     {},
	"bybit":       {},
	"hyperliquid": {},
	"simulate":    {},
}

// Config parameters of one trading session.
type Config struct {
	Platform         string
	Pair             domain.Pair
	BuyPrice         decimal.Decimal
	SellPrice        decimal.Decimal
	AllowablePercent decimal.Decimal
	// Amount quote budget per leg; zero means the buy band lower bound.
	Amount            decimal.Decimal
	OrderKind         domain.OrderKind
	SellSizing        domain.SellSizing
	ShutdownDelay     time.Duration
	PollPriceInterval time.Duration
	LotSizeDir        string
}

// ConfigTmp YAML shape of Config. Decimals are kept as strings to avoid float rounding.
type ConfigTmp struct {
	Platform          string        `yaml:"platform"`
	Pair              string        `yaml:"pair"`
	BuyPrice          string        `yaml:"buy_price"`
	SellPrice         string        `yaml:"sell_price"`
	AllowablePercent  string        `yaml:"allowable_percent"`
	Amount            string        `yaml:"amount,omitempty"`
	OrderKind         string        `yaml:"order_type,omitempty"`
	SellSizing        string        `yaml:"sell_sizing,omitempty"`
	ShutdownDelay     time.Duration `yaml:"shutdown_delay,omitempty"`
	PollPriceInterval time.Duration `yaml:"poll_price_interval,omitempty"`
	LotSizeDir        string        `yaml:"lot_size_dir,omitempty"`
}

// Options process-level switches parsed alongside the sessions.
type Options struct {
	Setup   bool
	Web     bool
	WebAddr string
	Config  string
	// WebDomains enables ACME TLS for the dashboard when set.
	WebDomains []string
	CertCache  string
	// EventDir journal of session events shown by the dashboard.
	EventDir string
}

// Session converts the config into launch parameters of a trading session.
func (c Config) Session() domain.TradingSession {
	return domain.TradingSession{
		Platform:         c.Platform,
		Pair:             c.Pair,
		BuyPrice:         c.BuyPrice,
		SellPrice:        c.SellPrice,
		AllowablePercent: c.AllowablePercent,
		Amount:           c.Amount,
		OrderKind:        c.OrderKind,
		SellSizing:       c.SellSizing,
	}
}

// Validate checks the platform and session parameters.
func (c Config) Validate() error {
	if _, ok := platforms[c.Platform]; !ok {
		return domain.NewValidationError("unsupported platform %q", c.Platform)
	}
	session := c.Session()
	if err := session.Validate(); err != nil {
		return err
	}
	if c.ShutdownDelay < 0 {
		return domain.NewValidationError("shutdown delay must not be negative, got %s", c.ShutdownDelay)
	}
	if c.PollPriceInterval <= 0 {
		return domain.NewValidationError("poll price interval must be positive, got %s", c.PollPriceInterval)
	}

	return nil
}

// Get parses os.Args and returns the sessions to run.
func Get() ([]Config, Options, error) {
	return Parse(os.Args[1:])
}

// Parse reads --config when given, otherwise one session from flags.
func Parse(args []string) ([]Config, Options, error) {
	fs := flag.NewFlagSet("rangebot", flag.ContinueOnError)

	var opts Options
	fs.StringVar(&opts.Config, "config", "", "path to yaml config")
	fs.BoolVar(&opts.Setup, "setup", false, "run interactive config wizard")
	fs.BoolVar(&opts.Web, "web", false, "serve session dashboard")
	fs.StringVar(&opts.WebAddr, "webaddr", ":8080", "dashboard listen address")
	domains := fs.String("webdomains", "", "comma separated domains for dashboard auto TLS")
	fs.StringVar(&opts.CertCache, "certcache", "cert-cache", "directory of cached TLS certificates")
	fs.StringVar(&opts.EventDir, "eventdir", DefaultEventDir, "directory of the session event journal")

	tmp := ConfigTmp{}
	fs.StringVar(&tmp.Platform, "platform", "binance", "exchange: binance, bybit, hyperliquid, simulate")
	fs.StringVar(&tmp.Pair, "pair", "", "trade pair, example: ETH_BTC")
	fs.StringVar(&tmp.BuyPrice, "buyprice", "", "buy band center price")
	fs.StringVar(&tmp.SellPrice, "sellprice", "", "sell band center price")
	fs.StringVar(&tmp.AllowablePercent, "percent", "0.01", "band half-width as a fraction, 0.01 means 1%")
	fs.StringVar(&tmp.Amount, "amount", "", "quote budget per leg, default is the buy band lower bound")
	fs.StringVar(&tmp.OrderKind, "ordertype", "market", "order type: market or limit")
	fs.StringVar(&tmp.SellSizing, "sellsizing", "budget", "sell size: budget or balance")
	fs.DurationVar(&tmp.ShutdownDelay, "shutdowndelay", DefaultShutdownDelay, "pause before releasing the price stream")
	fs.DurationVar(&tmp.PollPriceInterval, "pollpriceinterval", DefaultPollPriceInterval, "price poll interval for polling backends")
	fs.StringVar(&tmp.LotSizeDir, "lotsizedir", DefaultLotSizeDir, "directory of the lot size store")

	if err := fs.Parse(args); err != nil {
		return nil, opts, errors.Wrap(err, "parse flags")
	}

	for _, d := range strings.Split(*domains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			opts.WebDomains = append(opts.WebDomains, d)
		}
	}

	if opts.Setup {
		return nil, opts, nil
	}
	if opts.Config != "" {
		configs, err := getYaml(opts.Config)
		return configs, opts, err
	}

	c, err := tmp.toConfig()
	if err != nil {
		return nil, opts, err
	}

	return []Config{c}, opts, nil
}

func getYaml(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	return ParseYAML(data)
}

// ParseYAML decodes a list of sessions.
func ParseYAML(data []byte) ([]Config, error) {
	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(data, &configsTmp); err != nil {
		return nil, domain.NewValidationError("malformed yaml config: %v", err)
	}
	if len(configsTmp) == 0 {
		return nil, domain.NewValidationError("config has no sessions")
	}

	configs := make([]Config, 0, len(configsTmp))
	for i, c := range configsTmp {
		if c.ShutdownDelay == 0 {
			c.ShutdownDelay = DefaultShutdownDelay
		}
		if c.PollPriceInterval == 0 {
			c.PollPriceInterval = DefaultPollPriceInterval
		}
		if c.LotSizeDir == "" {
			c.LotSizeDir = DefaultLotSizeDir
		}

		conf, err := c.toConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "session %d", i)
		}
		configs = append(configs, conf)
	}

	return configs, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	pair, err := domain.ParsePair(c.Pair)
	if err != nil {
		return Config{}, err
	}

	buy, err := parseDecimal("buy price", c.BuyPrice)
	if err != nil {
		return Config{}, err
	}
	sell, err := parseDecimal("sell price", c.SellPrice)
	if err != nil {
		return Config{}, err
	}
	pct, err := parseDecimal("allowable percent", c.AllowablePercent)
	if err != nil {
		return Config{}, err
	}

	amount := decimal.Zero
	if strings.TrimSpace(c.Amount) != "" {
		if amount, err = parseDecimal("amount", c.Amount); err != nil {
			return Config{}, err
		}
	}

	kind, err := domain.ParseOrderKind(c.OrderKind)
	if err != nil {
		return Config{}, err
	}
	sizing, err := domain.ParseSellSizing(c.SellSizing)
	if err != nil {
		return Config{}, err
	}

	conf := Config{
		Platform:          strings.ToLower(strings.TrimSpace(c.Platform)),
		Pair:              pair,
		BuyPrice:          buy,
		SellPrice:         sell,
		AllowablePercent:  pct,
		Amount:            amount,
		OrderKind:         kind,
		SellSizing:        sizing,
		ShutdownDelay:     c.ShutdownDelay,
		PollPriceInterval: c.PollPriceInterval,
		LotSizeDir:        c.LotSizeDir,
	}

	return conf, conf.Validate()
}

// ToTmp converts the config back into its YAML shape.
func (c Config) ToTmp() ConfigTmp {
	tmp := ConfigTmp{
		Platform:          c.Platform,
		Pair:              c.Pair.String(),
		BuyPrice:          c.BuyPrice.String(),
		SellPrice:         c.SellPrice.String(),
		AllowablePercent:  c.AllowablePercent.String(),
		OrderKind:         string(c.OrderKind),
		SellSizing:        string(c.SellSizing),
		ShutdownDelay:     c.ShutdownDelay,
		PollPriceInterval: c.PollPriceInterval,
		LotSizeDir:        c.LotSizeDir,
	}
	if !c.Amount.IsZero() {
		tmp.Amount = c.Amount.String()
	}

	return tmp
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, domain.NewValidationError("%s is required", name)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.NewValidationError("incorrect %s %q, expected a decimal number", name, s)
	}

	return v, nil
}
