package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/broker"
)

// Position is the engine's net position on one symbol. Qty is signed.
type Position struct {
	Symbol string
	Qty    decimal.Decimal
	Entry  decimal.Decimal
}

// UnrealizedPL is the open profit at mark.
func (p Position) UnrealizedPL(mark decimal.Decimal) decimal.Decimal {
	return mark.Sub(p.Entry).Mul(p.Qty)
}

// apply adds a signed quantity at px and returns the realized PnL.
func (p *Position) apply(delta, px decimal.Decimal) decimal.Decimal {
	if p.Qty.IsZero() || p.Qty.Sign() == delta.Sign() {
		total := p.Qty.Add(delta)
		p.Entry = p.Entry.Mul(p.Qty.Abs()).Add(px.Mul(delta.Abs())).Div(total.Abs())
		p.Qty = total
		return decimal.Zero
	}

	closing := decimal.Min(p.Qty.Abs(), delta.Abs())
	realized := px.Sub(p.Entry).Mul(closing)
	if p.Qty.IsNegative() {
		realized = realized.Neg()
	}

	rest := p.Qty.Add(delta)
	switch {
	case rest.IsZero():
		p.Entry = decimal.Zero
	case rest.Sign() != p.Qty.Sign():
		// flipped through zero
		p.Entry = px
	}
	p.Qty = rest
	return realized
}

// Order is a resting order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          broker.Side
	Type          broker.OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal // limit or stop price
	ReduceOnly    bool
	Created       time.Time

	seq int
}

// triggered reports whether mark crosses the order's price.
func (o *Order) triggered(mark decimal.Decimal) bool {
	switch o.Type {
	case broker.StopMarket:
		if o.Side == broker.Sell {
			return mark.LessThanOrEqual(o.Price)
		}
		return mark.GreaterThanOrEqual(o.Price)
	case broker.TakeProfitMarket:
		if o.Side == broker.Sell {
			return mark.GreaterThanOrEqual(o.Price)
		}
		return mark.LessThanOrEqual(o.Price)
	case broker.Limit:
		if o.Side == broker.Buy {
			return mark.LessThanOrEqual(o.Price)
		}
		return mark.GreaterThanOrEqual(o.Price)
	}
	return false
}
