package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/broker/binance"
	"github.com/rustyeddy/atrbot/broker/sim"
	"github.com/rustyeddy/atrbot/config"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/journal"
	"github.com/rustyeddy/atrbot/market"
)

// venue is the configured gateway, guarded, plus the paper engine when
// one is in use.
type venue struct {
	gw     broker.Gateway
	paper  *sim.Engine
	replay market.Series
}

func buildVenue(cfg *config.Config, log zerolog.Logger) (*venue, error) {
	v := &venue{}

	var raw broker.Gateway
	switch cfg.Venue.Name {
	case config.VenueSim:
		eng := sim.NewEngine(sim.Config{
			Balance:     cfg.Paper.Balance,
			SlippageBps: cfg.Paper.SlippageBps,
		}, log)
		if cfg.Paper.CandleFile != "" {
			series, err := market.OpenCandleFile(cfg.Paper.CandleFile)
			if err != nil {
				return nil, errs.Wrap(errs.KindConfig, "cli.buildVenue", err)
			}
			seed, rest := splitWarmup(series, cfg.Paper.ReplayEvery > 0, cfg.Strategy.CandleLimit)
			eng.SetCandles(cfg.Paper.Symbol, seed)
			v.replay = rest
		}
		v.paper = eng
		raw = eng

	case config.VenueBinance:
		if !cfg.HasCredentials() {
			log.Warn().Msg("no venue credentials; signed endpoints will fail")
		}
		raw = binance.NewClient(binance.Config{
			APIKey:     cfg.Venue.APIKey,
			APISecret:  cfg.Venue.APISecret,
			Testnet:    cfg.Venue.Testnet,
			BaseURL:    cfg.Venue.BaseURL,
			RecvWindow: cfg.Venue.RecvWindow,
			Timeout:    cfg.Venue.CallTimeout,
		}, log)

	default:
		return nil, errs.Ef(errs.KindConfig, "cli.buildVenue", "unknown venue %q", cfg.Venue.Name)
	}

	v.gw = broker.NewGuard(raw, broker.GuardConfig{
		CallTimeout:  cfg.Venue.CallTimeout,
		ReadAttempts: cfg.Venue.ReadAttempts,
		RetryBackoff: cfg.Venue.RetryBackoff,
	}, log)
	return v, nil
}

// splitWarmup keeps the first warmup candles as history when the rest is
// to be replayed.
func splitWarmup(s market.Series, replay bool, warmup int) (seed, rest market.Series) {
	if !replay || len(s) <= warmup {
		return s, nil
	}
	return s[:warmup], s[warmup:]
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case config.JournalSQLite:
		j, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal %s: %w", cfg.DBPath, err)
		}
		return j, nil
	case config.JournalCSV:
		j, err := journal.NewCSV(cfg.PositionsFile, cfg.EventsFile)
		if err != nil {
			return nil, err
		}
		return j, nil
	case config.JournalNone, "":
		return journal.Discard{}, nil
	}
	return nil, errs.Ef(errs.KindConfig, "cli.openJournal", "unknown journal type %q", cfg.Type)
}
