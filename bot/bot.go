// Package bot wires market data, the ATR engine, the signal generator and
// the position controller into the two request flows the service exposes.
package bot

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/indicators"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/position"
	"github.com/rustyeddy/atrbot/signal"
)

const (
	DefaultInterval    = market.H1
	DefaultCandleLimit = 100
)

type Config struct {
	Interval    market.Interval
	Period      int
	CandleLimit int
	Multiplier  decimal.Decimal
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = DefaultInterval
	}
	if c.Period <= 0 {
		c.Period = indicators.DefaultATRPeriod
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = DefaultCandleLimit
	}
	if c.Multiplier.IsZero() {
		c.Multiplier = signal.DefaultMultiplier
	}
}

// Request carries the per-call overrides. Zero fields take the Config value.
type Request struct {
	Symbol     string
	Interval   string
	Period     int
	Multiplier decimal.Decimal
}

type Bot struct {
	gw   broker.Gateway
	ctrl *position.Controller
	cfg  Config
	log  zerolog.Logger
}

func New(gw broker.Gateway, ctrl *position.Controller, cfg Config, log zerolog.Logger) *Bot {
	cfg.defaults()
	return &Bot{gw: gw, ctrl: ctrl, cfg: cfg, log: log.With().Str("component", "bot").Logger()}
}

// Controller exposes the position controller for read endpoints.
func (b *Bot) Controller() *position.Controller { return b.ctrl }

// Gateway exposes the venue for pass-through endpoints.
func (b *Bot) Gateway() broker.Gateway { return b.gw }

type resolved struct {
	symbol     string
	interval   market.Interval
	period     int
	multiplier decimal.Decimal
}

func (b *Bot) resolve(op string, req Request) (resolved, error) {
	sym, err := market.NormalizeSymbol(req.Symbol)
	if err != nil {
		return resolved{}, errs.Wrap(errs.KindInput, op, err)
	}
	r := resolved{symbol: sym, interval: b.cfg.Interval, period: b.cfg.Period, multiplier: b.cfg.Multiplier}
	if req.Interval != "" {
		iv, err := market.ParseInterval(req.Interval)
		if err != nil {
			return resolved{}, errs.Wrap(errs.KindInput, op, err)
		}
		r.interval = iv
	}
	if req.Period < 0 {
		return resolved{}, errs.Ef(errs.KindInput, op, "period must be positive, got %d", req.Period)
	}
	if req.Period > 0 {
		r.period = req.Period
	}
	if req.Multiplier.IsNegative() {
		return resolved{}, errs.Ef(errs.KindInput, op, "atr multiplier must be positive, got %s", req.Multiplier)
	}
	if req.Multiplier.IsPositive() {
		r.multiplier = req.Multiplier
	}
	return r, nil
}

// Analyze fetches candles and the mark price, computes ATR and returns the
// advisory signal. Nothing is traded.
func (b *Bot) Analyze(ctx context.Context, req Request) (signal.Signal, error) {
	r, err := b.resolve("bot.Analyze", req)
	if err != nil {
		return signal.Signal{}, err
	}
	sig, _, err := b.analyze(ctx, r)
	return sig, err
}

func (b *Bot) analyze(ctx context.Context, r resolved) (signal.Signal, float64, error) {
	limit := b.cfg.CandleLimit
	if need := r.period + signal.VolatilityWindow; limit < need {
		limit = need
	}

	var (
		candles market.Series
		price   decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candles, err = b.gw.GetCandles(gctx, r.symbol, r.interval, limit)
		return err
	})
	g.Go(func() error {
		var err error
		price, err = b.gw.GetMarkPrice(gctx, r.symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return signal.Signal{}, 0, errs.Wrap(errs.KindVenue, "bot.analyze", err)
	}

	trs, atrs, err := indicators.ComputeATR(candles, r.period)
	if err != nil {
		return signal.Signal{}, 0, err
	}
	sig, err := signal.Analyze(r.symbol, price, trs, atrs, r.multiplier)
	if err != nil {
		return signal.Signal{}, 0, err
	}
	atr, _ := atrs.Last()

	b.log.Debug().
		Str("symbol", r.symbol).
		Str("interval", string(r.interval)).
		Int("candles", len(candles)).
		Float64("atr", atr).
		Str("price", price.String()).
		Str("volatility", string(sig.Volatility)).
		Msg("analysis")
	return sig, atr, nil
}

// AutoTrade analyses the symbol and hands the result to the position
// controller. An already open position is returned as-is, without reading
// the venue.
func (b *Bot) AutoTrade(ctx context.Context, req Request) (position.Entry, error) {
	r, err := b.resolve("bot.AutoTrade", req)
	if err != nil {
		return position.Entry{}, err
	}
	if p, ok := b.ctrl.Get(r.symbol); ok && p.Status == position.StatusOpen {
		return position.Entry{Action: position.ActionAlreadyOpen, Position: p}, nil
	}
	sig, atr, err := b.analyze(ctx, r)
	if err != nil {
		return position.Entry{}, err
	}
	return b.ctrl.CheckAndEnter(ctx, position.EntryRequest{
		Symbol:       r.symbol,
		CurrentPrice: sig.CurrentPrice,
		ATR:          atr,
		Multiplier:   r.multiplier,
	})
}
