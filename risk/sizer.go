package risk

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
)

// DefaultRiskFraction is the share of wallet balance committed per entry.
var DefaultRiskFraction = decimal.NewFromFloat(0.01)

// SizePosition converts a balance into an order quantity:
//
//	raw = balance * riskFraction / price
//	qty = raw - (raw mod stepSize)
//
// The quantity is always floored, never rounded up.
func SizePosition(balance, price, riskFraction, stepSize decimal.Decimal) (decimal.Decimal, error) {
	const op = "risk.SizePosition"

	if !price.IsPositive() {
		return decimal.Zero, errs.Ef(errs.KindInput, op, "price must be positive, got %s", price)
	}
	if !stepSize.IsPositive() {
		return decimal.Zero, errs.Ef(errs.KindInput, op, "step size must be positive, got %s", stepSize)
	}
	if !riskFraction.IsPositive() || riskFraction.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errs.Ef(errs.KindInput, op, "risk fraction must be in (0, 1], got %s", riskFraction)
	}

	raw := balance.Mul(riskFraction).Div(price)
	qty := raw.Sub(raw.Mod(stepSize))
	if !qty.IsPositive() {
		return decimal.Zero, errs.Ef(errs.KindInsufficientBalance, op,
			"balance %s at price %s sizes to %s, below step %s", balance, price, raw, stepSize)
	}
	return qty, nil
}

// AccountSource is the slice of the exchange gateway the sizer reads.
type AccountSource interface {
	GetWalletBalance(ctx context.Context) (decimal.Decimal, error)
	GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error)
}

// Sizing is the outcome of Sizer.Size.
type Sizing struct {
	Quantity     decimal.Decimal
	Balance      decimal.Decimal
	RiskFraction decimal.Decimal
	Filters      market.SymbolFilters
}

// Sizer sizes entries against live balance and symbol filters.
type Sizer struct {
	Source       AccountSource
	RiskFraction decimal.Decimal
}

// Size fetches balance and filters concurrently and sizes an entry at price.
func (s Sizer) Size(ctx context.Context, symbol string, price decimal.Decimal) (Sizing, error) {
	const op = "risk.Sizer"

	frac := s.RiskFraction
	if frac.IsZero() {
		frac = DefaultRiskFraction
	}

	var (
		balance decimal.Decimal
		filters market.SymbolFilters
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = s.Source.GetWalletBalance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		filters, err = s.Source.GetSymbolFilters(gctx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return Sizing{}, errs.Wrap(errs.KindVenue, op, err)
	}

	if !filters.StepSize.IsPositive() {
		return Sizing{}, errs.Ef(errs.KindConfig, op, "no LOT_SIZE step size for %s", symbol)
	}

	qty, err := SizePosition(balance, price, frac, filters.StepSize)
	if err != nil {
		return Sizing{}, err
	}
	if filters.MinQty.IsPositive() && qty.LessThan(filters.MinQty) {
		return Sizing{}, errs.Ef(errs.KindInsufficientBalance, op,
			"quantity %s below minimum %s for %s", qty, filters.MinQty, symbol)
	}
	if filters.MaxQty.IsPositive() && qty.GreaterThan(filters.MaxQty) {
		qty = filters.MaxQty.Sub(filters.MaxQty.Mod(filters.StepSize))
	}
	if filters.MinNotional.IsPositive() && qty.Mul(price).LessThan(filters.MinNotional) {
		return Sizing{}, errs.Ef(errs.KindInsufficientBalance, op,
			"notional %s below minimum %s for %s", qty.Mul(price), filters.MinNotional, symbol)
	}

	return Sizing{
		Quantity:     qty,
		Balance:      balance,
		RiskFraction: frac,
		Filters:      filters,
	}, nil
}
