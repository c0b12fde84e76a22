package risk

import (
	"github.com/shopspring/decimal"
)

// RewardRisk is |takeProfit-entry| / |entry-stop|, zero when the stop sits
// on the entry.
func RewardRisk(entry, stop, takeProfit decimal.Decimal) decimal.Decimal {
	r := entry.Sub(stop).Abs()
	if r.IsZero() {
		return decimal.Zero
	}
	return takeProfit.Sub(entry).Abs().Div(r)
}

// PlannedRisk is the account-currency loss if the stop is hit.
func PlannedRisk(qty, entry, stop decimal.Decimal) decimal.Decimal {
	return qty.Mul(entry.Sub(stop).Abs())
}

// RiskPct is plannedRisk as a fraction of balance. A non-positive balance
// yields -1 so callers can treat it as unbounded.
func RiskPct(plannedRisk, balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.NewFromInt(-1)
	}
	return plannedRisk.Div(balance)
}

// RoundToTick floors price to a multiple of tick. A zero tick leaves the
// price unchanged.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Sub(price.Mod(tick))
}
