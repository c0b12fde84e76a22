package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/atrbot/errs"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, VenueBinance, cfg.Venue.Name)
	assert.True(t, cfg.Venue.Testnet)
	assert.Equal(t, "1h", cfg.Strategy.Interval)
	assert.Equal(t, 14, cfg.Strategy.ATRPeriod)
	assert.Equal(t, "2.5", cfg.Strategy.Multiplier.String())
	assert.False(t, cfg.HasCredentials())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atrbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
venue:
  name: sim
strategy:
  interval: 4h
  atr_multiplier: "3"
risk:
  risk_fraction: "0.02"
paper:
  balance: "5000"
journal:
  type: none
`), 0o600))
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvTestAPIKey, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.PollInterval)
	assert.Equal(t, VenueSim, cfg.Venue.Name)
	assert.Equal(t, "4h", cfg.Strategy.Interval)
	assert.Equal(t, 14, cfg.Strategy.ATRPeriod)
	assert.True(t, decimal.NewFromInt(3).Equal(cfg.Strategy.Multiplier))
	assert.True(t, decimal.RequireFromString("0.02").Equal(cfg.Risk.RiskFraction))
	assert.True(t, decimal.NewFromInt(5000).Equal(cfg.Paper.Balance))
	assert.Equal(t, JournalNone, cfg.Journal.Type)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unclosed"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, errs.Config)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("venue:\n  name: kraken\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorIs(t, err, errs.Config)
	assert.Contains(t, err.Error(), "kraken")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad venue", func(c *Config) { c.Venue.Name = "ftx" }, "venue.name"},
		{"sim without balance", func(c *Config) { c.Venue.Name = VenueSim; c.Paper.Balance = decimal.Zero }, "paper.balance"},
		{"zero timeout", func(c *Config) { c.Venue.CallTimeout = 0 }, "call_timeout"},
		{"bad interval", func(c *Config) { c.Strategy.Interval = "7m" }, "strategy.interval"},
		{"zero period", func(c *Config) { c.Strategy.ATRPeriod = 0 }, "atr_period"},
		{"limit below period", func(c *Config) { c.Strategy.CandleLimit = 14 }, "candle_limit"},
		{"limit too large", func(c *Config) { c.Strategy.CandleLimit = 2000 }, "candle_limit"},
		{"zero multiplier", func(c *Config) { c.Strategy.Multiplier = decimal.Zero }, "atr_multiplier"},
		{"risk over one", func(c *Config) { c.Risk.RiskFraction = decimal.NewFromInt(2) }, "risk_fraction"},
		{"csv without files", func(c *Config) { c.Journal = JournalConfig{Type: JournalCSV} }, "positions_file"},
		{"sqlite without path", func(c *Config) { c.Journal = JournalConfig{Type: JournalSQLite} }, "db_path"},
		{"unknown journal", func(c *Config) { c.Journal.Type = "mongo" }, "journal.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.Config)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvTestAPIKey:    "test-key",
		EnvTestAPISecret: "test-secret",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "test-key", cfg.Venue.APIKey)
	assert.Equal(t, "test-secret", cfg.Venue.APISecret)
	assert.True(t, cfg.HasCredentials())

	env[EnvAPIKey] = "live-key"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "live-key", cfg.Venue.APIKey)

	cfg = Default()
	cfg.Venue.APIKey = "from-file"
	cfg.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, "from-file", cfg.Venue.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ATRBOT_DOTENV_TEST=loaded\n"), 0o600))
	t.Setenv("ATRBOT_DOTENV_TEST", "")
	os.Unsetenv("ATRBOT_DOTENV_TEST")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("ATRBOT_DOTENV_TEST"))
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")
	t.Setenv(EnvTestAPIKey, "")
	t.Setenv(EnvTestAPISecret, "")

	cfg := Default()
	cfg.Venue.APIKey = "secret-key"
	cfg.Venue.APISecret = "secret"
	cfg.Strategy.Multiplier = decimal.RequireFromString("3.25")
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3.25", loaded.Strategy.Multiplier.String())
	assert.Equal(t, cfg.Server, loaded.Server)
	assert.Empty(t, loaded.Venue.APIKey)
	assert.Equal(t, "secret-key", cfg.Venue.APIKey, "caller config is untouched")
}
