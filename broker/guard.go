package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/metrics"
)

const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultReadAttempts = 3
	DefaultRetryBackoff = 250 * time.Millisecond
)

// GuardConfig tunes Guard. Zero values take the defaults.
type GuardConfig struct {
	CallTimeout  time.Duration
	ReadAttempts int
	RetryBackoff time.Duration
}

// Guard wraps a Gateway so every call has a deadline, failures carry the
// VENUE kind, and read-only calls are retried a bounded number of times.
// Order-mutating calls are attempted exactly once.
type Guard struct {
	next Gateway
	cfg  GuardConfig
	log  zerolog.Logger
}

var _ Gateway = (*Guard)(nil)

// NewGuard wraps next.
func NewGuard(next Gateway, cfg GuardConfig, log zerolog.Logger) *Guard {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ReadAttempts <= 0 {
		cfg.ReadAttempts = DefaultReadAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Guard{next: next, cfg: cfg, log: log.With().Str("component", "gateway").Logger()}
}

// CallTimeout is the per-call deadline applied by the guard.
func (g *Guard) CallTimeout() time.Duration { return g.cfg.CallTimeout }

func (g *Guard) GetCandles(ctx context.Context, symbol string, interval market.Interval, limit int) (market.Series, error) {
	var out market.Series
	err := g.read(ctx, "GetCandles", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetCandles(ctx, symbol, interval, limit)
		return err
	})
	return out, err
}

func (g *Guard) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := g.read(ctx, "GetMarkPrice", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetMarkPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (g *Guard) GetWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := g.read(ctx, "GetWalletBalance", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetWalletBalance(ctx)
		return err
	})
	return out, err
}

func (g *Guard) GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error) {
	var out market.SymbolFilters
	err := g.read(ctx, "GetSymbolFilters", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetSymbolFilters(ctx, symbol)
		return err
	})
	return out, err
}

func (g *Guard) GetPositionRisk(ctx context.Context, symbol string) (PositionRisk, error) {
	var out PositionRisk
	err := g.read(ctx, "GetPositionRisk", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetPositionRisk(ctx, symbol)
		return err
	})
	return out, err
}

func (g *Guard) SubmitOrder(ctx context.Context, req OrderRequest) (OrderFill, error) {
	var out OrderFill
	err := g.once(ctx, "SubmitOrder", func(ctx context.Context) error {
		var err error
		out, err = g.next.SubmitOrder(ctx, req)
		return err
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Type), outcome).Inc()
	return out, err
}

func (g *Guard) CancelOpenOrders(ctx context.Context, symbol string) error {
	return g.once(ctx, "CancelOpenOrders", func(ctx context.Context) error {
		return g.next.CancelOpenOrders(ctx, symbol)
	})
}

func (g *Guard) once(ctx context.Context, op string, call func(context.Context) error) error {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	err := call(cctx)
	g.observe(op, start, err)
	if err != nil {
		return errs.Wrap(errs.KindVenue, "gateway."+op, err)
	}
	return nil
}

func (g *Guard) read(ctx context.Context, op string, call func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= g.cfg.ReadAttempts; attempt++ {
		err = g.once(ctx, op, call)
		if err == nil || !retryable(ctx, err) || attempt == g.cfg.ReadAttempts {
			break
		}
		g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("venue read failed, retrying")
		select {
		case <-time.After(g.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return errs.Wrap(errs.KindVenue, "gateway."+op, ctx.Err())
		}
	}
	return err
}

func (g *Guard) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.VenueCalls.WithLabelValues(op, outcome).Inc()
	metrics.VenueLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// retryable is false once the caller is gone or the failure is not
// transient (bad input, missing config).
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, errs.Input) || errors.Is(err, errs.Config) || errors.Is(err, ErrRejected) {
		return false
	}
	return true
}

// ErrRejected marks a venue refusal that repeating will not fix
// (bad signature, unknown symbol, invalid quantity).
var ErrRejected = errors.New("rejected by venue")
