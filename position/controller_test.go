package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/id"
	"github.com/rustyeddy/atrbot/journal"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/risk"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeGateway is a scriptable venue. Market orders fill at fillPrice.
type fakeGateway struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	filters   market.SymbolFilters
	fillPrice decimal.Decimal
	submitErr map[broker.OrderType]error
	cancelErr error
	delay     time.Duration
	onSubmit  func(broker.OrderRequest)
	onCancel  func(symbol string)
	risk      broker.PositionRisk

	orders  []broker.OrderRequest
	cancels []string
	nextID  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balance:   d("10000"),
		filters:   market.SymbolFilters{StepSize: d("0.001"), MinQty: d("0.001"), TickSize: d("0.1")},
		fillPrice: d("50010.5"),
		submitErr: map[broker.OrderType]error{},
		risk:      broker.PositionRisk{PositionAmt: d("0.002")},
	}
}

func (f *fakeGateway) GetCandles(ctx context.Context, symbol string, interval market.Interval, limit int) (market.Series, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fillPrice, nil
}

func (f *fakeGateway) GetWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeGateway) GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.filters
	out.Symbol = symbol
	return out, nil
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	if f.onSubmit != nil {
		f.onSubmit(req)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.record(req)
			return broker.OrderFill{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if err := f.submitErr[req.Type]; err != nil {
		return broker.OrderFill{}, err
	}
	f.nextID++
	fill := broker.OrderFill{
		OrderID:       fmt.Sprintf("ord-%d", f.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        "NEW",
	}
	if req.Type == broker.Market {
		fill.Status = "FILLED"
		fill.AvgPrice = f.fillPrice
		fill.FilledQty = req.Quantity
		fill.Time = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return fill, nil
}

func (f *fakeGateway) record(req broker.OrderRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
}

func (f *fakeGateway) CancelOpenOrders(ctx context.Context, symbol string) error {
	if f.onCancel != nil {
		f.onCancel(symbol)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, symbol)
	return f.cancelErr
}

func (f *fakeGateway) GetPositionRisk(ctx context.Context, symbol string) (broker.PositionRisk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.risk
	out.Symbol = symbol
	return out, nil
}

func (f *fakeGateway) ordersOfType(t broker.OrderType) []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.OrderRequest
	for _, o := range f.orders {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeGateway) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func newTestController(t *testing.T, gw broker.Gateway) (*Controller, *journal.Memory) {
	t.Helper()
	j := &journal.Memory{}
	c := NewController(gw, j, Config{Policy: risk.DefaultPolicy()}, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }
	return c, j
}

var btcEntry = EntryRequest{
	Symbol:       "BTCUSDT",
	CurrentPrice: d("50000"),
	ATR:          500,
	Multiplier:   d("2.5"),
}

func TestCheckAndEnterOpensWithBrackets(t *testing.T) {
	gw := newFakeGateway()
	c, j := newTestController(t, gw)

	entry, err := c.CheckAndEnter(context.Background(), btcEntry)
	require.NoError(t, err)

	assert.Equal(t, ActionOpenedLong, entry.Action)
	p := entry.Position
	assert.Equal(t, StatusOpen, p.Status)
	assert.Equal(t, SideLong, p.Side)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "50010.5", p.EntryPrice.String(), "entry uses the fill price")
	assert.Equal(t, "0.002", p.Size.String())
	assert.Equal(t, "51260.5", p.TakeProfit.String())
	assert.Equal(t, "49510.5", p.StopLoss.String())
	assert.False(t, p.Unprotected)
	assert.Empty(t, p.BracketErrors)
	assert.Equal(t, "ord-1", p.EntryOrderID)
	assert.Equal(t, "ord-2", p.TakeProfitOrderID)
	assert.Equal(t, "ord-3", p.StopLossOrderID)
	assert.Equal(t, "10000", entry.Balance.String())

	require.Equal(t, 3, gw.orderCount())
	mkt := gw.ordersOfType(broker.Market)
	require.Len(t, mkt, 1)
	assert.Equal(t, broker.Buy, mkt[0].Side)
	assert.Equal(t, "0.002", mkt[0].Quantity.String())
	assert.Equal(t, id.ClientOrderID(id.PurposeEntry, p.ID), mkt[0].ClientOrderID)

	tp := gw.ordersOfType(broker.TakeProfitMarket)
	require.Len(t, tp, 1)
	assert.Equal(t, broker.Sell, tp[0].Side)
	assert.True(t, tp[0].ReduceOnly)
	assert.Equal(t, "51260.5", tp[0].StopPrice.String())
	assert.Equal(t, "0.002", tp[0].Quantity.String())

	sl := gw.ordersOfType(broker.StopMarket)
	require.Len(t, sl, 1)
	assert.True(t, sl[0].ReduceOnly)
	assert.Equal(t, "49510.5", sl[0].StopPrice.String())

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)

	assert.Equal(t, []journal.EventType{
		journal.EventEntryFilled,
		journal.EventBracketPlaced,
		journal.EventBracketPlaced,
	}, j.EventTypes())
}

func TestCheckAndEnterBracketsRoundToTick(t *testing.T) {
	gw := newFakeGateway()
	gw.filters.TickSize = d("1")
	c, _ := newTestController(t, gw)

	entry, err := c.CheckAndEnter(context.Background(), btcEntry)
	require.NoError(t, err)
	assert.Equal(t, "51260", entry.Position.TakeProfit.String())
	assert.Equal(t, "49510", entry.Position.StopLoss.String())
}

func TestCheckAndEnterIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)
	ctx := context.Background()

	first, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)
	second, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)

	assert.Equal(t, ActionOpenedLong, first.Action)
	assert.Equal(t, ActionAlreadyOpen, second.Action)
	assert.Equal(t, first.Position.ID, second.Position.ID)
	assert.True(t, first.Position.EntryPrice.Equal(second.Position.EntryPrice))
	assert.Len(t, gw.ordersOfType(broker.Market), 1)
	assert.Equal(t, 3, gw.orderCount())
}

func TestCheckAndEnterConcurrentSingleEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.delay = 10 * time.Millisecond
	c, _ := newTestController(t, gw)

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		actions = map[Action]int{}
		ids     = map[string]bool{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := c.CheckAndEnter(context.Background(), btcEntry)
			assert.NoError(t, err)
			mu.Lock()
			actions[entry.Action]++
			ids[entry.Position.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, gw.ordersOfType(broker.Market), 1)
	assert.Equal(t, 1, actions[ActionOpenedLong])
	assert.Equal(t, callers-1, actions[ActionAlreadyOpen])
	assert.Len(t, ids, 1)
}

func TestCheckAndEnterSymbolsIndependent(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)

	// hold BTCUSDT as if an entry were in flight
	require.NoError(t, c.slot("BTCUSDT").acquire(context.Background()))
	defer c.slot("BTCUSDT").release()

	eth := btcEntry
	eth.Symbol = "ETHUSDT"
	eth.CurrentPrice = d("2500")
	eth.ATR = 20
	gw.fillPrice = d("2500")

	entry, err := c.CheckAndEnter(context.Background(), eth)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", entry.Position.Symbol)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.CheckAndEnter(ctx, btcEntry)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBracketFailureLeavesPositionOpen(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr[broker.StopMarket] = errs.Wrap(errs.KindVenue, "gateway.SubmitOrder", errors.New("order would immediately trigger"))
	c, j := newTestController(t, gw)

	entry, err := c.CheckAndEnter(context.Background(), btcEntry)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Venue)
	assert.Contains(t, err.Error(), "stop loss")

	p := entry.Position
	assert.Equal(t, ActionOpenedLong, entry.Action)
	assert.Equal(t, StatusOpen, p.Status)
	assert.True(t, p.Unprotected)
	require.Len(t, p.BracketErrors, 1)
	assert.Contains(t, p.BracketErrors[0], "stop loss at 49510.5")
	assert.NotEmpty(t, p.TakeProfitOrderID)
	assert.Empty(t, p.StopLossOrderID)

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, got.Status)
	assert.True(t, got.Unprotected)

	assert.Contains(t, j.EventTypes(), journal.EventBracketFailed)

	// no retry and no second entry
	again, err := c.CheckAndEnter(context.Background(), btcEntry)
	require.NoError(t, err)
	assert.Equal(t, ActionAlreadyOpen, again.Action)
	assert.Len(t, gw.ordersOfType(broker.StopMarket), 1)
	assert.Len(t, gw.ordersOfType(broker.Market), 1)
}

func TestBothBracketsFail(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr[broker.StopMarket] = errors.New("sl down")
	gw.submitErr[broker.TakeProfitMarket] = errors.New("tp down")
	c, _ := newTestController(t, gw)

	entry, err := c.CheckAndEnter(context.Background(), btcEntry)
	assert.ErrorIs(t, err, errs.Venue)
	assert.Len(t, entry.Position.BracketErrors, 2)
	assert.Equal(t, StatusOpen, entry.Position.Status)
}

func TestEntryFailureReturnsToFlat(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr[broker.Market] = errors.New("insufficient margin")
	c, j := newTestController(t, gw)

	entry, err := c.CheckAndEnter(context.Background(), btcEntry)
	assert.ErrorIs(t, err, errs.Venue)
	assert.Contains(t, err.Error(), "insufficient margin")
	assert.Empty(t, entry.Position.ID)

	got, ok := c.Get("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, StatusFlat, got.Status)
	assert.Empty(t, c.List())
	assert.Equal(t, []journal.EventType{journal.EventEntryFailed}, j.EventTypes())
	assert.Empty(t, gw.ordersOfType(broker.StopMarket))

	// a later attempt can enter again
	delete(gw.submitErr, broker.Market)
	entry, err = c.CheckAndEnter(context.Background(), btcEntry)
	require.NoError(t, err)
	assert.Equal(t, ActionOpenedLong, entry.Action)
}

func TestEntryTimeoutIsUnconfirmed(t *testing.T) {
	gw := newFakeGateway()
	gw.delay = 200 * time.Millisecond
	j := &journal.Memory{}
	c := NewController(gw, j, Config{Policy: risk.DefaultPolicy(), SubmitTimeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := c.CheckAndEnter(context.Background(), btcEntry)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Venue)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := c.Get("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, []journal.EventType{journal.EventEntryUnconfirmed}, j.EventTypes())
}

func TestCallerCancelAfterSubmitDoesNotAbandonOrder(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.onSubmit = func(req broker.OrderRequest) {
		if req.Type == broker.Market {
			cancel()
		}
	}

	entry, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, entry.Position.Status)
	assert.False(t, entry.Position.Unprotected)
	assert.Equal(t, 3, gw.orderCount())
}

func TestCallerCancelBeforeSubmit(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CheckAndEnter(ctx, btcEntry)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gw.orderCount())
	_, ok := c.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestCheckAndEnterValidation(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)

	tests := []struct {
		name string
		mod  func(*EntryRequest)
	}{
		{"empty symbol", func(r *EntryRequest) { r.Symbol = "" }},
		{"nan atr", func(r *EntryRequest) { r.ATR = math.NaN() }},
		{"zero atr", func(r *EntryRequest) { r.ATR = 0 }},
		{"zero price", func(r *EntryRequest) { r.CurrentPrice = decimal.Zero }},
		{"negative multiplier", func(r *EntryRequest) { r.Multiplier = d("-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := btcEntry
			tt.mod(&req)
			_, err := c.CheckAndEnter(context.Background(), req)
			assert.ErrorIs(t, err, errs.Input)
		})
	}
	assert.Zero(t, gw.orderCount())
}

func TestCheckAndEnterInsufficientBalance(t *testing.T) {
	gw := newFakeGateway()
	gw.balance = d("1")
	c, j := newTestController(t, gw)

	_, err := c.CheckAndEnter(context.Background(), btcEntry)
	assert.ErrorIs(t, err, errs.InsufficientBalance)
	assert.Zero(t, gw.orderCount())
	assert.Equal(t, []journal.EventType{journal.EventEntryFailed}, j.EventTypes())
}

func TestCheckAndEnterRefusedByPolicy(t *testing.T) {
	gw := newFakeGateway()
	j := &journal.Memory{}
	policy := risk.DefaultPolicy()
	policy.MinRewardRisk = d("3")
	c := NewController(gw, j, Config{Policy: policy}, zerolog.Nop())

	_, err := c.CheckAndEnter(context.Background(), btcEntry)
	assert.ErrorIs(t, err, errs.InsufficientBalance)
	assert.NotErrorIs(t, err, errs.Input)
	assert.Contains(t, err.Error(), "RR_TOO_LOW")
	assert.Zero(t, gw.orderCount())
}

func TestManualClose(t *testing.T) {
	gw := newFakeGateway()
	c, j := newTestController(t, gw)
	ctx := context.Background()

	opened, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)

	gw.fillPrice = d("50510.5")
	closed, err := c.Close(ctx, "BTCUSDT", ReasonManual)
	require.NoError(t, err)

	assert.Equal(t, opened.Position.ID, closed.ID)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, ReasonManual, closed.CloseReason)
	assert.Equal(t, "50510.5", closed.ExitPrice.String())
	assert.Equal(t, "1", closed.RealizedPL().String())
	require.NotNil(t, closed.ClosedAt)

	assert.Equal(t, []string{"BTCUSDT"}, gw.cancels)
	mkt := gw.ordersOfType(broker.Market)
	require.Len(t, mkt, 2)
	assert.Equal(t, broker.Sell, mkt[1].Side)
	assert.True(t, mkt[1].ReduceOnly)
	assert.Equal(t, "0.002", mkt[1].Quantity.String())

	_, ok := c.Get("BTCUSDT")
	assert.False(t, ok)

	recs := j.Positions()
	require.Len(t, recs, 1)
	assert.Equal(t, "MANUAL", recs[0].Reason)
	assert.Equal(t, "1", recs[0].RealizedPL.String())

	// FLAT again, so a new entry is accepted
	again, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)
	assert.Equal(t, ActionOpenedLong, again.Action)
	assert.NotEqual(t, opened.Position.ID, again.Position.ID)
}

func TestCloseWhenFlat(t *testing.T) {
	c, _ := newTestController(t, newFakeGateway())

	_, err := c.Close(context.Background(), "BTCUSDT", ReasonManual)
	assert.ErrorIs(t, err, errs.StateConflict)

	_, err = c.MarkClosed(context.Background(), "BTCUSDT", ReasonTakeProfit, d("1"))
	assert.ErrorIs(t, err, errs.StateConflict)

	_, err = c.Close(context.Background(), "BTCUSDT", CloseReason("BOGUS"))
	assert.ErrorIs(t, err, errs.Input)
}

func TestManualCloseCancelFailureKeepsPosition(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)
	ctx := context.Background()

	_, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)

	gw.cancelErr = errors.New("venue unavailable")
	_, err = c.Close(ctx, "BTCUSDT", ReasonManual)
	assert.ErrorIs(t, err, errs.Venue)

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, got.Status)
	assert.False(t, got.Unprotected)
}

func TestManualCloseFlattenFailureIsUnprotected(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)
	ctx := context.Background()

	_, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)

	gw.submitErr[broker.Market] = errors.New("rejected")
	p, err := c.Close(ctx, "BTCUSDT", ReasonManual)
	assert.ErrorIs(t, err, errs.Venue)
	assert.Equal(t, StatusOpen, p.Status)
	assert.True(t, p.Unprotected)
	assert.Empty(t, p.StopLossOrderID)

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, got.Unprotected)
}

func TestCloseAtBracket(t *testing.T) {
	gw := newFakeGateway()
	c, j := newTestController(t, gw)
	ctx := context.Background()

	_, err := c.CheckAndEnter(ctx, btcEntry)
	require.NoError(t, err)

	closed, err := c.Close(ctx, "BTCUSDT", ReasonStopLoss)
	require.NoError(t, err)
	assert.Equal(t, "49510.5", closed.ExitPrice.String())
	assert.Equal(t, "-1", closed.RealizedPL().String())
	assert.Len(t, gw.ordersOfType(broker.Market), 1, "no flatten order for a bracket close")
	assert.Len(t, j.Positions(), 1)
}

func TestGetReturnsCopy(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr[broker.StopMarket] = errors.New("down")
	c, _ := newTestController(t, gw)

	_, _ = c.CheckAndEnter(context.Background(), btcEntry)

	p, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	p.Status = StatusClosed
	p.BracketErrors[0] = "mutated"

	again, _ := c.Get("BTCUSDT")
	assert.Equal(t, StatusOpen, again.Status)
	assert.NotEqual(t, "mutated", again.BracketErrors[0])
}

func TestListOrdersBySymbol(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestController(t, gw)
	ctx := context.Background()

	for _, sym := range []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"} {
		req := btcEntry
		req.Symbol = sym
		_, err := c.CheckAndEnter(ctx, req)
		require.NoError(t, err)
	}
	_, err := c.Close(ctx, "ETHUSDT", ReasonManual)
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "BTCUSDT", list[0].Symbol)
	assert.Equal(t, "SOLUSDT", list[1].Symbol)
}
