package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
)

// Reconciler closes positions when a bracket order fills. It implements
// broker.FillHandler.
type Reconciler struct {
	ctrl *Controller
	log  zerolog.Logger
}

var _ broker.FillHandler = (*Reconciler)(nil)

func NewReconciler(ctrl *Controller, log zerolog.Logger) *Reconciler {
	return &Reconciler{ctrl: ctrl, log: log.With().Str("component", "reconciler").Logger()}
}

// OnFillEvent cancels the sibling bracket and closes the owning position.
// Fills of orders the controller does not track are ignored.
func (r *Reconciler) OnFillEvent(ctx context.Context, orderID string) error {
	pos, reason, ok := r.ctrl.FindByOrderID(orderID)
	if !ok {
		r.log.Debug().Str("order_id", orderID).Msg("fill for untracked order")
		return nil
	}

	exit := pos.TakeProfit
	if reason == ReasonStopLoss {
		exit = pos.StopLoss
	}
	_, err := r.ctrl.closeTracked(ctx, pos.Symbol, pos.ID, reason, exit)
	if errors.Is(err, errs.StateConflict) {
		// closed or replaced by someone else in the meantime
		r.log.Debug().Str("order_id", orderID).Str("position_id", pos.ID).Msg("fill for position no longer open")
		return nil
	}
	if err != nil {
		return fmt.Errorf("close on fill of %s: %w", orderID, err)
	}
	return nil
}

var decimalTwo = decimal.NewFromInt(2)

// DefaultPollInterval is how often the Poller compares controller state
// with the venue.
const DefaultPollInterval = 15 * time.Second

// Poller detects positions the venue has closed without a fill
// notification reaching the Reconciler.
type Poller struct {
	ctrl     *Controller
	gw       broker.Gateway
	interval time.Duration
	log      zerolog.Logger
}

func NewPoller(ctrl *Controller, gw broker.Gateway, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		ctrl:     ctrl,
		gw:       gw,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Run sweeps on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := p.Sweep(ctx); err != nil {
				p.log.Warn().Err(err).Msg("position sweep")
			}
		}
	}
}

// Sweep checks every open position once. A position the venue reports flat
// is closed with TP_HIT or SL_HIT depending on which side of the bracket
// midpoint the mark price sits.
func (p *Poller) Sweep(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, pos := range p.ctrl.List() {
		if pos.Status != StatusOpen {
			continue
		}
		pos := pos
		g.Go(func() error {
			return p.check(gctx, pos)
		})
	}
	return g.Wait()
}

func (p *Poller) check(ctx context.Context, pos Position) error {
	pr, err := p.gw.GetPositionRisk(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("position risk %s: %w", pos.Symbol, err)
	}
	if !pr.Flat() {
		return nil
	}

	reason, exit := ReasonStopLoss, pos.StopLoss
	mid := pos.TakeProfit.Add(pos.StopLoss).Div(decimalTwo)
	if pr.MarkPrice.GreaterThanOrEqual(mid) {
		reason, exit = ReasonTakeProfit, pos.TakeProfit
	}

	p.log.Info().
		Str("symbol", pos.Symbol).
		Str("position_id", pos.ID).
		Str("mark", pr.MarkPrice.String()).
		Str("reason", string(reason)).
		Msg("venue is flat, closing position")

	_, err = p.ctrl.closeTracked(ctx, pos.Symbol, pos.ID, reason, exit)
	if errors.Is(err, errs.StateConflict) {
		return nil
	}
	return err
}
