// Package broker defines the exchange gateway the trading core talks to.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/market"
)

// Gateway is the venue boundary. Implementations must honour ctx deadlines.
type Gateway interface {
	GetCandles(ctx context.Context, symbol string, interval market.Interval, limit int) (market.Series, error)
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetWalletBalance(ctx context.Context) (decimal.Decimal, error)
	GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
	CancelOpenOrders(ctx context.Context, symbol string) error
	GetPositionRisk(ctx context.Context, symbol string) (PositionRisk, error)
}

// FillHandler receives fill notifications for resting orders so the sibling
// bracket order can be cancelled.
type FillHandler interface {
	OnFillEvent(ctx context.Context, orderID string) error
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Market           OrderType = "MARKET"
	Limit            OrderType = "LIMIT"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// IsTrigger reports whether the order rests until a stop price is crossed.
func (t OrderType) IsTrigger() bool {
	return t == StopMarket || t == TakeProfitMarket
}

type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	StopPrice     *decimal.Decimal
	TimeInForce   string
	ReduceOnly    bool
	ClientOrderID string
}

// OrderFill is the venue acknowledgement. For resting orders AvgPrice and
// FilledQty are zero and Status is NEW.
type OrderFill struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        string
	AvgPrice      decimal.Decimal
	FilledQty     decimal.Decimal
	Time          time.Time
}

// Filled reports whether the acknowledgement carries an executed quantity.
func (f OrderFill) Filled() bool {
	return f.FilledQty.IsPositive()
}

// PositionRisk is the venue's view of the net position on a symbol.
type PositionRisk struct {
	Symbol           string          `json:"symbol"`
	PositionAmt      decimal.Decimal `json:"position_amt"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	UnrealizedProfit decimal.Decimal `json:"unrealized_profit"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Leverage         int             `json:"leverage"`
}

// Flat reports whether the venue holds no position.
func (p PositionRisk) Flat() bool {
	return p.PositionAmt.IsZero()
}
