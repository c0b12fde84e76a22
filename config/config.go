// Package config loads the service configuration from YAML, with venue
// credentials taken from the environment (or a .env file) when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/risk"
)

const (
	VenueBinance = "binance"
	VenueSim     = "sim"

	JournalSQLite = "sqlite"
	JournalCSV    = "csv"
	JournalNone   = "none"
)

// Environment variables that override venue credentials.
const (
	EnvAPIKey        = "BINANCE_API_KEY"
	EnvAPISecret     = "BINANCE_API_SECRET"
	EnvTestAPIKey    = "BINANCE_TEST_API_KEY"
	EnvTestAPISecret = "BINANCE_TEST_API_SECRET"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Venue    VenueConfig    `yaml:"venue"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     risk.Policy    `yaml:"risk"`
	Paper    PaperConfig    `yaml:"paper"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// VenueConfig selects and tunes the exchange gateway.
type VenueConfig struct {
	Name       string        `yaml:"name"` // "binance" or "sim"
	Testnet    bool          `yaml:"testnet"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty"`
	APISecret  string        `yaml:"api_secret,omitempty"`
	RecvWindow time.Duration `yaml:"recv_window"`

	CallTimeout  time.Duration `yaml:"call_timeout"`
	ReadAttempts int           `yaml:"read_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type StrategyConfig struct {
	Interval    string          `yaml:"interval"`
	ATRPeriod   int             `yaml:"atr_period"`
	CandleLimit int             `yaml:"candle_limit"`
	Multiplier  decimal.Decimal `yaml:"atr_multiplier"`
}

// PaperConfig seeds the in-memory venue.
type PaperConfig struct {
	Balance     decimal.Decimal `yaml:"balance"`
	SlippageBps decimal.Decimal `yaml:"slippage_bps"`
	Symbol      string          `yaml:"symbol,omitempty"`
	CandleFile  string          `yaml:"candle_file,omitempty"` // CSV, optionally .xz
	ReplayEvery time.Duration   `yaml:"replay_every,omitempty"`
}

type JournalConfig struct {
	Type          string `yaml:"type"` // "sqlite", "csv" or "none"
	DBPath        string `yaml:"db_path,omitempty"`
	PositionsFile string `yaml:"positions_file,omitempty"`
	EventsFile    string `yaml:"events_file,omitempty"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns a configuration that talks to the futures testnet.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			PollInterval: 15 * time.Second,
		},
		Venue: VenueConfig{
			Name:         VenueBinance,
			Testnet:      true,
			RecvWindow:   5 * time.Second,
			CallTimeout:  10 * time.Second,
			ReadAttempts: 3,
			RetryBackoff: 250 * time.Millisecond,
		},
		Strategy: StrategyConfig{
			Interval:    string(market.H1),
			ATRPeriod:   14,
			CandleLimit: 100,
			Multiplier:  decimal.NewFromFloat(2.5),
		},
		Risk: risk.DefaultPolicy(),
		Paper: PaperConfig{
			Balance:     decimal.NewFromInt(10000),
			SlippageBps: decimal.NewFromInt(2),
			Symbol:      "BTCUSDT",
		},
		Journal: JournalConfig{
			Type:   JournalSQLite,
			DBPath: "./atrbot.sqlite",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "config.Load", fmt.Errorf("parse %s: %w", path, err))
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error; variables already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides venue credentials from the environment. The testnet
// variable names are honoured when the primary ones are unset.
func (c *Config) ApplyEnv(getenv func(string) string) {
	pick := func(names ...string) string {
		for _, n := range names {
			if v := getenv(n); v != "" {
				return v
			}
		}
		return ""
	}
	if v := pick(EnvAPIKey, EnvTestAPIKey); v != "" {
		c.Venue.APIKey = v
	}
	if v := pick(EnvAPISecret, EnvTestAPISecret); v != "" {
		c.Venue.APISecret = v
	}
}

// SaveToFile writes the configuration as YAML. Credentials are never
// written.
func (c *Config) SaveToFile(path string) error {
	out := *c
	out.Venue.APIKey = ""
	out.Venue.APISecret = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// HasCredentials reports whether signed venue endpoints can be used.
func (c *Config) HasCredentials() bool {
	return c.Venue.APIKey != "" && c.Venue.APISecret != ""
}

// Validate checks the configuration. Every failure carries the CONFIG kind.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errs.Ef(errs.KindConfig, "config.Validate", format, args...)
	}

	if c.Server.Addr == "" {
		return bad("server.addr is required")
	}
	if c.Server.PollInterval < 0 {
		return bad("server.poll_interval must not be negative")
	}

	switch c.Venue.Name {
	case VenueBinance:
	case VenueSim:
		if !c.Paper.Balance.IsPositive() {
			return bad("paper.balance must be positive")
		}
		if c.Paper.SlippageBps.IsNegative() {
			return bad("paper.slippage_bps must not be negative")
		}
	default:
		return bad("venue.name must be %q or %q, got %q", VenueBinance, VenueSim, c.Venue.Name)
	}
	if c.Venue.CallTimeout <= 0 {
		return bad("venue.call_timeout must be positive")
	}
	if c.Venue.ReadAttempts < 1 {
		return bad("venue.read_attempts must be at least 1")
	}

	if _, err := market.ParseInterval(c.Strategy.Interval); err != nil {
		return bad("strategy.interval: %v", err)
	}
	if c.Strategy.ATRPeriod <= 0 {
		return bad("strategy.atr_period must be positive")
	}
	if c.Strategy.CandleLimit <= c.Strategy.ATRPeriod || c.Strategy.CandleLimit > 1500 {
		return bad("strategy.candle_limit must be in (atr_period, 1500], got %d", c.Strategy.CandleLimit)
	}
	if !c.Strategy.Multiplier.IsPositive() {
		return bad("strategy.atr_multiplier must be positive")
	}

	if !c.Risk.RiskFraction.IsPositive() || c.Risk.RiskFraction.GreaterThan(decimal.NewFromInt(1)) {
		return bad("risk.risk_fraction must be in (0, 1]")
	}
	if c.Risk.MaxRiskPct.IsNegative() || c.Risk.MinRewardRisk.IsNegative() {
		return bad("risk limits must not be negative")
	}

	switch c.Journal.Type {
	case JournalSQLite:
		if c.Journal.DBPath == "" {
			return bad("journal.db_path required for sqlite journal")
		}
	case JournalCSV:
		if c.Journal.PositionsFile == "" || c.Journal.EventsFile == "" {
			return bad("journal.positions_file and journal.events_file required for csv journal")
		}
	case JournalNone:
	default:
		return bad("journal.type must be sqlite, csv or none, got %q", c.Journal.Type)
	}
	return nil
}
