package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/atrbot/config"
	"github.com/rustyeddy/atrbot/journal"
	"github.com/rustyeddy/atrbot/market"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvAPISecret, "")
	t.Setenv(config.EnvTestAPIKey, "")
	t.Setenv(config.EnvTestAPISecret, "")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCandles(t *testing.T, n int) string {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(market.Series, n)
	for i := range s {
		s[i] = market.NewCandle(t0.Add(time.Duration(i)*time.Hour), 100, 101, 99, 100, 10)
	}
	path := filepath.Join(t.TempDir(), "candles.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, market.WriteCandlesCSV(f, s))
	require.NoError(t, f.Close())
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "atrbot (dev)\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atrbot.yaml")

	out, err := run(t, "--log-level", "error", "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, err = run(t, "--log-level", "error", "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "venue: binance")

	_, err = run(t, "--log-level", "error", "config", "validate")
	assert.ErrorContains(t, err, "--file or --config")
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("venue:\n  name: nowhere\n"), 0o600))

	_, err := run(t, "--config", path, "version")
	assert.ErrorContains(t, err, "venue.name")
}

func TestATRFromFile(t *testing.T) {
	path := writeCandles(t, 30)

	out, err := run(t, "--log-level", "error", "atr", "--file", path, "--symbol", "btcusdt")
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "105")
	assert.Contains(t, out, "LOW")

	out, err = run(t, "--log-level", "error", "atr", "--file", path, "--multiplier", "3", "--json")
	require.NoError(t, err)
	var sig map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, "106", sig["take_profit"])
	assert.Equal(t, "98", sig["stop_loss"])
	assert.Equal(t, "2", sig["atr"])
}

func TestATRFromFileErrors(t *testing.T) {
	short := writeCandles(t, 5)
	_, err := run(t, "--log-level", "error", "atr", "--file", short)
	assert.ErrorContains(t, err, "latest ATR undefined")

	_, err = run(t, "--log-level", "error", "atr", "--file", short, "--multiplier=-2")
	assert.ErrorContains(t, err, "--multiplier")

	_, err = run(t, "--log-level", "error", "atr", "--file", filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestJournalCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := journal.NewSQLite(db)
	require.NoError(t, err)

	closed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, j.RecordPosition(journal.PositionRecord{
		PositionID: "01HPOSITION",
		Symbol:     "BTCUSDT",
		Side:       "LONG",
		Size:       decimal.RequireFromString("0.002"),
		EntryPrice: decimal.RequireFromString("50000"),
		ExitPrice:  decimal.RequireFromString("51250"),
		OpenTime:   closed.Add(-time.Hour),
		CloseTime:  closed,
		RealizedPL: decimal.RequireFromString("2.5"),
		Reason:     "TP_HIT",
	}))
	require.NoError(t, j.RecordEvent(journal.Event{
		Time: closed, Symbol: "BTCUSDT", PositionID: "01HPOSITION", Type: journal.EventClosed, Detail: "reason=TP_HIT",
	}))
	require.NoError(t, j.Close())

	out, err := run(t, "--log-level", "error", "--db", db, "journal", "position", "01HPOSITION")
	require.NoError(t, err)
	assert.Contains(t, out, ":ID: 01HPOSITION")
	assert.Contains(t, out, ":REALIZED_PL: 2.50")
	assert.Contains(t, out, "CLOSED reason=TP_HIT")

	out, err = run(t, "--log-level", "error", "--db", db, "journal", "day", "2024-01-15")
	require.NoError(t, err)
	assert.Contains(t, out, "01HPOSITION")

	out, err = run(t, "--log-level", "error", "--db", db, "journal", "day", "2024-01-16")
	require.NoError(t, err)
	assert.NotContains(t, out, "01HPOSITION")

	_, err = run(t, "--log-level", "error", "--db", db, "journal", "day", "15/01/2024")
	assert.ErrorContains(t, err, "date")

	_, err = run(t, "--log-level", "error", "--db", db, "journal", "position", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestBuildVenueSim(t *testing.T) {
	cfg := config.Default()
	cfg.Venue.Name = config.VenueSim
	cfg.Paper.CandleFile = writeCandles(t, 150)
	cfg.Paper.ReplayEvery = time.Millisecond

	v, err := buildVenue(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, v.paper)
	assert.Len(t, v.replay, 50)

	candles, err := v.gw.GetCandles(context.Background(), "BTCUSDT", market.H1, 100)
	require.NoError(t, err)
	assert.Len(t, candles, 100)

	bal, err := v.gw.GetWalletBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10000", bal.String())

	cfg.Paper.CandleFile = filepath.Join(t.TempDir(), "missing.csv")
	_, err = buildVenue(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildVenueBinance(t *testing.T) {
	v, err := buildVenue(config.Default(), zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, v.paper)
	assert.NotNil(t, v.gw)
}

func TestSplitWarmup(t *testing.T) {
	s := make(market.Series, 10)
	seed, rest := splitWarmup(s, false, 4)
	assert.Len(t, seed, 10)
	assert.Empty(t, rest)

	seed, rest = splitWarmup(s, true, 4)
	assert.Len(t, seed, 4)
	assert.Len(t, rest, 6)

	seed, rest = splitWarmup(s, true, 20)
	assert.Len(t, seed, 10)
	assert.Empty(t, rest)
}

func TestOpenJournal(t *testing.T) {
	dir := t.TempDir()

	j, err := openJournal(config.JournalConfig{Type: config.JournalNone})
	require.NoError(t, err)
	assert.IsType(t, journal.Discard{}, j)

	j, err = openJournal(config.JournalConfig{Type: config.JournalSQLite, DBPath: filepath.Join(dir, "j.sqlite")})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = openJournal(config.JournalConfig{
		Type:          config.JournalCSV,
		PositionsFile: filepath.Join(dir, "positions.csv"),
		EventsFile:    filepath.Join(dir, "events.csv"),
	})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = openJournal(config.JournalConfig{Type: "mongo"})
	assert.Error(t, err)
}

func TestDayBounds(t *testing.T) {
	start, end, err := dayBounds(time.UTC, "2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), end)
}
