// Package sim is an in-memory paper venue. It implements broker.Gateway so
// the trading core can run end to end without touching an exchange.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/id"
	"github.com/rustyeddy/atrbot/market"
)

var (
	ErrNoPrice        = errors.New("no price for symbol")
	ErrWouldTrigger   = fmt.Errorf("%w: order would immediately trigger", broker.ErrRejected)
	ErrReduceOnlyFlat = fmt.Errorf("%w: reduce-only order with no position", broker.ErrRejected)
)

// Config seeds the engine.
type Config struct {
	Balance     decimal.Decimal
	SlippageBps decimal.Decimal // applied against the taker on market fills
	Filters     market.SymbolFilters
}

// DefaultFilters are used for symbols without explicit filters.
var DefaultFilters = market.SymbolFilters{
	StepSize:    decimal.RequireFromString("0.001"),
	MinQty:      decimal.RequireFromString("0.001"),
	TickSize:    decimal.RequireFromString("0.01"),
	MinNotional: decimal.NewFromInt(5),
}

type Engine struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	slippage  decimal.Decimal
	defaults  market.SymbolFilters
	candles   map[string]market.Series
	marks     map[string]decimal.Decimal
	filters   map[string]market.SymbolFilters
	positions map[string]*Position
	orders    map[string]*Order
	handler   broker.FillHandler
	seq       int
	now       func() time.Time
	log       zerolog.Logger
}

var _ broker.Gateway = (*Engine)(nil)

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	defaults := cfg.Filters
	if !defaults.StepSize.IsPositive() {
		defaults = DefaultFilters
	}
	return &Engine{
		balance:   cfg.Balance,
		slippage:  cfg.SlippageBps,
		defaults:  defaults,
		candles:   make(map[string]market.Series),
		marks:     make(map[string]decimal.Decimal),
		filters:   make(map[string]market.SymbolFilters),
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
		now:       time.Now,
		log:       log.With().Str("component", "sim").Logger(),
	}
}

// SetFillHandler registers the receiver of resting-order fills.
func (e *Engine) SetFillHandler(h broker.FillHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// SetCandles replaces the candle history for symbol and marks the price at
// the last close.
func (e *Engine) SetCandles(symbol string, s market.Series) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candles[symbol] = append(market.Series(nil), s...)
	if last, ok := s.Last(); ok {
		e.marks[symbol] = last.Close
	}
}

// SetFilters overrides the trading filters for one symbol.
func (e *Engine) SetFilters(f market.SymbolFilters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[f.Symbol] = f
}

// Balance returns the wallet balance including realized PnL.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// OpenOrders returns the resting orders for symbol ordered by creation.
func (e *Engine) OpenOrders(symbol string) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Order
	for _, o := range e.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// UpdatePrice moves the mark price, fills any resting orders it crosses and
// then notifies the fill handler outside the engine lock.
func (e *Engine) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	e.mu.Lock()
	e.marks[symbol] = price

	var due []*Order
	for _, o := range e.orders {
		if o.Symbol == symbol && o.triggered(price) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	var filled []string
	for _, o := range due {
		if _, ok := e.orders[o.ID]; !ok {
			continue
		}
		delete(e.orders, o.ID)

		qty := o.Quantity
		if o.ReduceOnly {
			pos := e.positions[symbol]
			if pos == nil || pos.Qty.IsZero() {
				e.log.Debug().Str("order_id", o.ID).Msg("reduce-only order expired, no position")
				continue
			}
			qty = decimal.Min(qty, pos.Qty.Abs())
		}
		e.applyFillLocked(symbol, o.Side, qty, price)
		filled = append(filled, o.ID)

		e.log.Info().
			Str("symbol", symbol).
			Str("order_id", o.ID).
			Str("type", string(o.Type)).
			Str("price", price.String()).
			Msg("resting order filled")
	}
	h := e.handler
	e.mu.Unlock()

	if h == nil {
		return nil
	}
	var errList []error
	for _, oid := range filled {
		if err := h.OnFillEvent(ctx, oid); err != nil {
			errList = append(errList, fmt.Errorf("fill %s: %w", oid, err))
		}
	}
	return errors.Join(errList...)
}

// Replay walks candles, advancing the mark price to each close.
func (e *Engine) Replay(ctx context.Context, symbol string, s market.Series, every time.Duration) error {
	var t *time.Ticker
	if every > 0 {
		t = time.NewTicker(every)
		defer t.Stop()
	}
	for _, c := range s {
		if t != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		e.mu.Lock()
		e.candles[symbol] = append(e.candles[symbol], c)
		e.mu.Unlock()

		if err := e.UpdatePrice(ctx, symbol, c.Close); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) GetCandles(ctx context.Context, symbol string, interval market.Interval, limit int) (market.Series, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.candles[symbol]
	if !ok {
		return nil, errs.Ef(errs.KindInput, "sim.GetCandles", "unknown symbol %s", symbol)
	}
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return append(market.Series(nil), s...), nil
}

func (e *Engine) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	px, err := e.markLocked(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return px, nil
}

func (e *Engine) markLocked(symbol string) (decimal.Decimal, error) {
	px, ok := e.marks[symbol]
	if !ok {
		return decimal.Zero, &errs.Error{Kind: errs.KindInput, Op: "sim", Err: fmt.Errorf("%w: %s", ErrNoPrice, symbol)}
	}
	return px, nil
}

func (e *Engine) GetWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	return e.Balance(), nil
}

func (e *Engine) GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.filters[symbol]; ok {
		return f, nil
	}
	f := e.defaults
	f.Symbol = symbol
	return f, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	const op = "sim.SubmitOrder"
	if err := ctx.Err(); err != nil {
		return broker.OrderFill{}, err
	}
	if req.Symbol == "" || req.Side == "" || req.Type == "" {
		return broker.OrderFill{}, errs.E(errs.KindInput, op, "symbol, side and type are required")
	}
	if !req.Quantity.IsPositive() {
		return broker.OrderFill{}, errs.Ef(errs.KindInput, op, "quantity must be positive, got %s", req.Quantity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	mark, err := e.markLocked(req.Symbol)
	if err != nil {
		return broker.OrderFill{}, err
	}
	now := e.now().UTC()

	switch req.Type {
	case broker.Market:
		qty := req.Quantity
		if req.ReduceOnly {
			pos := e.positions[req.Symbol]
			if pos == nil || pos.Qty.IsZero() {
				return broker.OrderFill{}, ErrReduceOnlyFlat
			}
			qty = decimal.Min(qty, pos.Qty.Abs())
		}
		px := e.slip(req.Side, mark)
		e.applyFillLocked(req.Symbol, req.Side, qty, px)
		return broker.OrderFill{
			OrderID:       id.New(),
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Status:        "FILLED",
			AvgPrice:      px,
			FilledQty:     qty,
			Time:          now,
		}, nil

	case broker.StopMarket, broker.TakeProfitMarket, broker.Limit:
		o := &Order{
			ID:            id.New(),
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Type:          req.Type,
			Quantity:      req.Quantity,
			ReduceOnly:    req.ReduceOnly,
			Created:       now,
		}
		switch {
		case req.Type == broker.Limit && req.Price != nil:
			o.Price = *req.Price
		case req.Type.IsTrigger() && req.StopPrice != nil:
			o.Price = *req.StopPrice
		default:
			return broker.OrderFill{}, errs.Ef(errs.KindInput, op, "%s order needs a price", req.Type)
		}
		if req.Type.IsTrigger() && o.triggered(mark) {
			return broker.OrderFill{}, ErrWouldTrigger
		}
		e.seq++
		o.seq = e.seq
		e.orders[o.ID] = o

		return broker.OrderFill{
			OrderID:       o.ID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Status:        "NEW",
			Time:          now,
		}, nil
	}
	return broker.OrderFill{}, errs.Ef(errs.KindInput, op, "unsupported order type %s", req.Type)
}

func (e *Engine) CancelOpenOrders(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for oid, o := range e.orders {
		if o.Symbol == symbol {
			delete(e.orders, oid)
		}
	}
	return nil
}

func (e *Engine) GetPositionRisk(ctx context.Context, symbol string) (broker.PositionRisk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := broker.PositionRisk{Symbol: symbol, Leverage: 1}
	pos := e.positions[symbol]
	if pos == nil {
		return out, nil
	}
	out.PositionAmt = pos.Qty
	out.EntryPrice = pos.Entry
	if mark, err := e.markLocked(symbol); err == nil {
		out.MarkPrice = mark
		out.UnrealizedProfit = pos.UnrealizedPL(mark)
	}
	return out, nil
}

// slip moves px against the taker by the configured basis points.
func (e *Engine) slip(side broker.Side, px decimal.Decimal) decimal.Decimal {
	if !e.slippage.IsPositive() {
		return px
	}
	adj := px.Mul(e.slippage).Div(decimal.NewFromInt(10000))
	if side == broker.Buy {
		return px.Add(adj)
	}
	return px.Sub(adj)
}

// applyFillLocked updates the net position and books realized PnL.
func (e *Engine) applyFillLocked(symbol string, side broker.Side, qty, px decimal.Decimal) {
	pos := e.positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol}
		e.positions[symbol] = pos
	}
	delta := qty
	if side == broker.Sell {
		delta = qty.Neg()
	}
	e.balance = e.balance.Add(pos.apply(delta, px))
}
