package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/id"
	"github.com/rustyeddy/atrbot/journal"
	"github.com/rustyeddy/atrbot/metrics"
	"github.com/rustyeddy/atrbot/risk"
	"github.com/rustyeddy/atrbot/signal"
)

// DefaultSubmitTimeout bounds each order submission.
const DefaultSubmitTimeout = 10 * time.Second

// EntryRequest asks for a long entry on Symbol at CurrentPrice.
type EntryRequest struct {
	Symbol       string
	CurrentPrice decimal.Decimal
	ATR          float64
	Multiplier   decimal.Decimal // zero means signal.DefaultMultiplier
}

type Config struct {
	Policy        risk.Policy
	SubmitTimeout time.Duration
}

// Controller is the only writer of Position state. Each symbol has its own
// slot; work on one symbol never waits on another.
type Controller struct {
	gw            broker.Gateway
	sizer         risk.Sizer
	policy        risk.Policy
	journal       journal.Journal
	submitTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	// sem is held for a whole check-and-enter or close sequence
	sem chan struct{}

	mu     sync.Mutex
	status Status
	pos    *Position
}

func (s *slot) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slot) release() { <-s.sem }

func (s *slot) snapshot() (Status, *Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return s.status, nil
	}
	p := s.pos.clone()
	return s.status, &p
}

func (s *slot) set(status Status, p *Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if p == nil {
		s.pos = nil
		return
	}
	cp := p.clone()
	s.pos = &cp
}

func NewController(gw broker.Gateway, j journal.Journal, cfg Config, log zerolog.Logger) *Controller {
	if j == nil {
		j = journal.Discard{}
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	return &Controller{
		gw:            gw,
		sizer:         risk.Sizer{Source: gw, RiskFraction: cfg.Policy.RiskFraction},
		policy:        cfg.Policy,
		journal:       j,
		submitTimeout: cfg.SubmitTimeout,
		now:           time.Now,
		log:           log.With().Str("component", "position").Logger(),
		slots:         make(map[string]*slot),
	}
}

func (c *Controller) slot(symbol string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[symbol]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1), status: StatusFlat}
		c.slots[symbol] = s
	}
	return s
}

// CheckAndEnter opens a long position with brackets unless one is already
// open, in which case the existing position is returned untouched.
//
// A bracket failure after the entry fills leaves the position OPEN and
// Unprotected; the Entry is returned together with a VENUE error.
func (c *Controller) CheckAndEnter(ctx context.Context, req EntryRequest) (Entry, error) {
	const op = "position.CheckAndEnter"

	if req.Symbol == "" {
		return Entry{}, errs.E(errs.KindInput, op, "symbol is required")
	}
	if math.IsNaN(req.ATR) || math.IsInf(req.ATR, 0) || req.ATR <= 0 {
		return Entry{}, errs.Ef(errs.KindInput, op, "atr must be a positive number, got %v", req.ATR)
	}
	if !req.CurrentPrice.IsPositive() {
		return Entry{}, errs.Ef(errs.KindInput, op, "current price must be positive, got %s", req.CurrentPrice)
	}
	mult := req.Multiplier
	if mult.IsZero() {
		mult = signal.DefaultMultiplier
	}
	if mult.IsNegative() {
		return Entry{}, errs.Ef(errs.KindInput, op, "multiplier must be positive, got %s", mult)
	}

	s := c.slot(req.Symbol)
	if err := s.acquire(ctx); err != nil {
		return Entry{}, fmt.Errorf("%s: wait for %s: %w", op, req.Symbol, err)
	}
	defer s.release()

	log := c.log.With().Str("symbol", req.Symbol).Logger()

	if status, p := s.snapshot(); status == StatusOpen && p != nil {
		metrics.Entries.WithLabelValues(req.Symbol, "already_open").Inc()
		log.Debug().Str("position_id", p.ID).Msg("position already open")
		return Entry{Action: ActionAlreadyOpen, Position: *p}, nil
	}

	sig, err := signal.Generate(req.Symbol, req.CurrentPrice, req.ATR, mult)
	if err != nil {
		return Entry{}, err
	}

	pos := Position{
		ID:     id.New(),
		Symbol: req.Symbol,
		Side:   SideLong,
		Status: StatusEntering,
		ATR:    sig.ATR,
	}
	s.set(StatusEntering, &pos)

	fail := func(evt journal.EventType, outcome string, err error) (Entry, error) {
		s.set(StatusFlat, nil)
		metrics.Entries.WithLabelValues(req.Symbol, outcome).Inc()
		c.event(pos, evt, err.Error())
		return Entry{}, err
	}

	sizing, err := c.sizer.Size(ctx, req.Symbol, req.CurrentPrice)
	if err != nil {
		return fail(journal.EventEntryFailed, "failed", err)
	}

	decision := risk.Evaluate(c.policy, risk.TradeIntent{
		Symbol:     req.Symbol,
		Quantity:   sizing.Quantity,
		Entry:      req.CurrentPrice,
		Stop:       sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Balance:    sizing.Balance,
	})
	if !decision.Allowed {
		return fail(journal.EventEntryFailed, "refused",
			errs.Ef(errs.KindInsufficientBalance, op, "entry refused by risk policy: %s", decision))
	}

	// Nothing has reached the venue yet, so a caller that gave up can
	// still be honoured.
	if err := ctx.Err(); err != nil {
		return fail(journal.EventEntryFailed, "cancelled", fmt.Errorf("%s: %w", op, err))
	}

	entryID := id.ClientOrderID(id.PurposeEntry, pos.ID)
	fill, err := c.submit(ctx, broker.OrderRequest{
		Symbol:        req.Symbol,
		Side:          broker.Buy,
		Type:          broker.Market,
		Quantity:      sizing.Quantity,
		ClientOrderID: entryID,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Str("qty", sizing.Quantity.String()).Str("client_order_id", entryID).
				Msg("entry order timed out; venue-side effect unconfirmed, check the venue for an open position")
			return fail(journal.EventEntryUnconfirmed, "unconfirmed", errs.Wrap(errs.KindVenue, op, err))
		}
		return fail(journal.EventEntryFailed, "failed", errs.Wrap(errs.KindVenue, op, err))
	}
	if !fill.Filled() {
		log.Warn().Str("order_id", fill.OrderID).Str("status", fill.Status).
			Msg("entry order acknowledged without a fill; venue-side effect unconfirmed")
		return fail(journal.EventEntryUnconfirmed, "unconfirmed",
			errs.Ef(errs.KindVenue, op, "entry order %s not filled (status %s)", fill.OrderID, fill.Status))
	}

	entryPrice := fill.AvgPrice
	if !entryPrice.IsPositive() {
		log.Warn().Str("order_id", fill.OrderID).Msg("fill carried no average price, using requested price")
		entryPrice = req.CurrentPrice
	}
	tick := sizing.Filters.TickSize
	tp, sl := signal.Levels(entryPrice, sig.ATR, mult)

	pos.Status = StatusOpen
	pos.EntryPrice = entryPrice
	pos.Size = fill.FilledQty
	pos.TakeProfit = risk.RoundToTick(tp, tick)
	pos.StopLoss = risk.RoundToTick(sl, tick)
	pos.EntryOrderID = fill.OrderID
	pos.OpenedAt = fill.Time
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = c.now().UTC()
	}
	s.set(StatusOpen, &pos)
	metrics.OpenPositions.Inc()

	c.event(pos, journal.EventEntryFilled,
		fmt.Sprintf("qty=%s avg=%s order=%s", pos.Size, pos.EntryPrice, pos.EntryOrderID))
	log.Info().
		Str("position_id", pos.ID).
		Str("qty", pos.Size.String()).
		Str("entry", pos.EntryPrice.String()).
		Str("tp", pos.TakeProfit.String()).
		Str("sl", pos.StopLoss.String()).
		Msg("entry filled")

	c.placeBrackets(ctx, &pos)
	s.set(StatusOpen, &pos)

	entry := Entry{
		Action:       ActionOpenedLong,
		Position:     pos.clone(),
		Balance:      sizing.Balance,
		RiskFraction: sizing.RiskFraction,
	}
	if pos.Unprotected {
		metrics.Entries.WithLabelValues(req.Symbol, "unprotected").Inc()
		metrics.Unprotected.WithLabelValues(req.Symbol).Set(1)
		log.Error().
			Str("position_id", pos.ID).
			Strs("bracket_errors", pos.BracketErrors).
			Msg("position is open without full bracket protection")
		return entry, errs.Ef(errs.KindVenue, op, "bracket placement failed for %s: %s",
			req.Symbol, strings.Join(pos.BracketErrors, "; "))
	}
	metrics.Entries.WithLabelValues(req.Symbol, "opened").Inc()
	return entry, nil
}

// placeBrackets submits the take-profit and stop-loss orders once each.
// Failures mark the position Unprotected; nothing is retried.
func (c *Controller) placeBrackets(ctx context.Context, pos *Position) {
	legs := []struct {
		purpose id.Purpose
		typ     broker.OrderType
		price   decimal.Decimal
		orderID *string
	}{
		{id.PurposeTakeProfit, broker.TakeProfitMarket, pos.TakeProfit, &pos.TakeProfitOrderID},
		{id.PurposeStopLoss, broker.StopMarket, pos.StopLoss, &pos.StopLossOrderID},
	}

	for _, leg := range legs {
		price := leg.price
		coid := id.ClientOrderID(leg.purpose, pos.ID)
		fill, err := c.submit(ctx, broker.OrderRequest{
			Symbol:        pos.Symbol,
			Side:          broker.Sell,
			Type:          leg.typ,
			Quantity:      pos.Size,
			StopPrice:     &price,
			ReduceOnly:    true,
			ClientOrderID: coid,
		})
		if err != nil {
			msg := fmt.Sprintf("%s at %s client=%s: %v", leg.purpose.Label(), price, coid, err)
			if errors.Is(err, context.DeadlineExceeded) {
				msg += " (timed out, venue state unconfirmed)"
			}
			pos.Unprotected = true
			pos.BracketErrors = append(pos.BracketErrors, msg)
			c.event(*pos, journal.EventBracketFailed, msg)
			continue
		}
		*leg.orderID = fill.OrderID
		c.event(*pos, journal.EventBracketPlaced, fmt.Sprintf("%s at %s order=%s client=%s", leg.purpose.Label(), price, fill.OrderID, coid))
	}
}

// submit sends one order. The caller's cancellation is detached so an
// order the venue may already hold is never abandoned mid-flight; the
// submit timeout still applies.
func (c *Controller) submit(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	defer cancel()
	return c.gw.SubmitOrder(sctx, req)
}

// cancelOrders cancels every resting order on symbol under the submit
// timeout, detached from the caller.
func (c *Controller) cancelOrders(ctx context.Context, symbol string) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	defer cancel()
	return c.gw.CancelOpenOrders(cctx, symbol)
}

// Close closes the open position on symbol. Resting orders are cancelled
// first. A MANUAL close also flattens the exposure with a reduce-only
// market sell; other reasons assume the venue already closed it at the
// bracket price.
func (c *Controller) Close(ctx context.Context, symbol string, reason CloseReason) (Position, error) {
	const op = "position.Close"

	if _, ok := ParseCloseReason(string(reason)); !ok {
		return Position{}, errs.Ef(errs.KindInput, op, "unknown close reason %q", reason)
	}

	s := c.slot(symbol)
	if err := s.acquire(ctx); err != nil {
		return Position{}, fmt.Errorf("%s: wait for %s: %w", op, symbol, err)
	}
	defer s.release()

	status, p := s.snapshot()
	if status != StatusOpen || p == nil {
		return Position{}, errs.Ef(errs.KindStateConflict, op, "no open position for %s (status %s)", symbol, status)
	}
	pos := *p

	if err := c.cancelOrders(ctx, symbol); err != nil {
		if reason == ReasonManual {
			return pos, errs.Wrap(errs.KindVenue, op, err)
		}
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cancel of remaining bracket failed")
	}

	var exit decimal.Decimal
	switch reason {
	case ReasonManual:
		fill, err := c.submit(ctx, broker.OrderRequest{
			Symbol:        symbol,
			Side:          broker.Sell,
			Type:          broker.Market,
			Quantity:      pos.Size,
			ReduceOnly:    true,
			ClientOrderID: id.ClientOrderID(id.PurposeClose, pos.ID),
		})
		if err != nil {
			// brackets are gone and the exposure is still there
			pos.Unprotected = true
			pos.TakeProfitOrderID, pos.StopLossOrderID = "", ""
			pos.BracketErrors = append(pos.BracketErrors, "manual close failed after brackets were cancelled: "+err.Error())
			s.set(StatusOpen, &pos)
			metrics.Unprotected.WithLabelValues(symbol).Set(1)
			c.event(pos, journal.EventBracketFailed, err.Error())
			return pos.clone(), errs.Wrap(errs.KindVenue, op, err)
		}
		exit = fill.AvgPrice
	case ReasonTakeProfit:
		exit = pos.TakeProfit
	case ReasonStopLoss:
		exit = pos.StopLoss
	}

	return c.finalize(s, pos, reason, exit), nil
}

// MarkClosed records a close the venue already performed. No venue call is
// made.
func (c *Controller) MarkClosed(ctx context.Context, symbol string, reason CloseReason, exit decimal.Decimal) (Position, error) {
	const op = "position.MarkClosed"

	s, pos, err := c.lockOpen(ctx, op, symbol, "", reason)
	if err != nil {
		return Position{}, err
	}
	defer s.release()
	return c.finalize(s, pos, reason, exit), nil
}

// closeTracked closes positionID after one of its brackets filled or the
// venue reported it flat. Leftover orders are cancelled while the slot is
// held, so the cancel can never reach a successor's brackets. A failed
// cancel still closes the position and is returned as a VENUE error.
func (c *Controller) closeTracked(ctx context.Context, symbol, positionID string, reason CloseReason, exit decimal.Decimal) (Position, error) {
	const op = "position.closeTracked"

	s, pos, err := c.lockOpen(ctx, op, symbol, positionID, reason)
	if err != nil {
		return Position{}, err
	}
	defer s.release()

	cancelErr := c.cancelOrders(ctx, symbol)
	if cancelErr != nil {
		c.log.Warn().Err(cancelErr).
			Str("symbol", symbol).
			Str("position_id", positionID).
			Msg("cancel of leftover orders failed")
		cancelErr = errs.Wrap(errs.KindVenue, op, cancelErr)
	}
	return c.finalize(s, pos, reason, exit), cancelErr
}

// lockOpen acquires the slot for symbol and returns its open position. When
// positionID is set it must still be the open position. On success the
// caller owns the slot and must release it.
func (c *Controller) lockOpen(ctx context.Context, op, symbol, positionID string, reason CloseReason) (*slot, Position, error) {
	if _, ok := ParseCloseReason(string(reason)); !ok {
		return nil, Position{}, errs.Ef(errs.KindInput, op, "unknown close reason %q", reason)
	}

	s := c.slot(symbol)
	if err := s.acquire(ctx); err != nil {
		return nil, Position{}, fmt.Errorf("%s: wait for %s: %w", op, symbol, err)
	}

	status, p := s.snapshot()
	if status != StatusOpen || p == nil {
		s.release()
		return nil, Position{}, errs.Ef(errs.KindStateConflict, op, "no open position for %s (status %s)", symbol, status)
	}
	if positionID != "" && p.ID != positionID {
		s.release()
		return nil, Position{}, errs.Ef(errs.KindStateConflict, op, "position %s is no longer open on %s", positionID, symbol)
	}
	return s, *p, nil
}

// finalize moves pos through CLOSED, archives it, and leaves the slot FLAT.
func (c *Controller) finalize(s *slot, pos Position, reason CloseReason, exit decimal.Decimal) Position {
	now := c.now().UTC()
	pos.Status = StatusClosed
	pos.CloseReason = reason
	pos.ExitPrice = exit
	pos.ClosedAt = &now
	s.set(StatusClosed, &pos)

	if err := c.journal.RecordPosition(pos.record()); err != nil {
		c.log.Warn().Err(err).Str("position_id", pos.ID).Msg("journal position")
	}
	c.event(pos, journal.EventClosed, fmt.Sprintf("%s exit=%s pl=%s", reason, exit, pos.RealizedPL()))

	metrics.OpenPositions.Dec()
	metrics.Unprotected.DeleteLabelValues(pos.Symbol)

	c.log.Info().
		Str("symbol", pos.Symbol).
		Str("position_id", pos.ID).
		Str("reason", string(reason)).
		Str("exit", exit.String()).
		Str("pl", pos.RealizedPL().String()).
		Msg("position closed")

	s.set(StatusFlat, nil)
	return pos.clone()
}

// Get returns the state of symbol. The bool is false when the symbol is FLAT.
func (c *Controller) Get(symbol string) (Position, bool) {
	c.mu.Lock()
	s, ok := c.slots[symbol]
	c.mu.Unlock()
	if !ok {
		return Position{Symbol: symbol, Status: StatusFlat}, false
	}

	status, p := s.snapshot()
	if p == nil {
		return Position{Symbol: symbol, Status: status}, status != StatusFlat
	}
	return *p, true
}

// List returns every non-flat position ordered by symbol.
func (c *Controller) List() []Position {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.slots))
	for sym := range c.slots {
		symbols = append(symbols, sym)
	}
	c.mu.Unlock()
	sort.Strings(symbols)

	var out []Position
	for _, sym := range symbols {
		if p, ok := c.Get(sym); ok {
			out = append(out, p)
		}
	}
	return out
}

// FindByOrderID returns the open position owning a bracket order and the
// close reason that order's fill implies. orderID may be the venue order
// id or the client order id the bracket was placed with, so a bracket whose
// submit timed out can still be matched.
func (c *Controller) FindByOrderID(orderID string) (Position, CloseReason, bool) {
	if orderID == "" {
		return Position{}, "", false
	}
	purpose, positionID, byClient := id.ParseClientOrderID(orderID)
	for _, p := range c.List() {
		if p.Status != StatusOpen {
			continue
		}
		switch {
		case orderID == p.TakeProfitOrderID:
			return p, ReasonTakeProfit, true
		case orderID == p.StopLossOrderID:
			return p, ReasonStopLoss, true
		case byClient && positionID == p.ID && purpose == id.PurposeTakeProfit:
			return p, ReasonTakeProfit, true
		case byClient && positionID == p.ID && purpose == id.PurposeStopLoss:
			return p, ReasonStopLoss, true
		}
	}
	return Position{}, "", false
}

func (c *Controller) event(p Position, typ journal.EventType, detail string) {
	err := c.journal.RecordEvent(journal.Event{
		Time:       c.now().UTC(),
		Symbol:     p.Symbol,
		PositionID: p.ID,
		Type:       typ,
		Detail:     detail,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("event", string(typ)).Msg("journal event")
	}
}
