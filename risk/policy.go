package risk

import "github.com/shopspring/decimal"

type Policy struct {
	// Share of wallet balance committed per entry, e.g. 0.01.
	RiskFraction decimal.Decimal `yaml:"risk_fraction"`
	// Hard ceiling on the loss at the stop, as a fraction of balance.
	MaxRiskPct decimal.Decimal `yaml:"max_risk_pct"`
	// Minimum reward/risk of the bracket, e.g. 1.5. Zero disables the check.
	MinRewardRisk decimal.Decimal `yaml:"min_reward_risk"`
}

// DefaultPolicy commits 1% of balance and allows at most 1% loss at the
// stop. The reward/risk floor is off.
func DefaultPolicy() Policy {
	return Policy{
		RiskFraction: DefaultRiskFraction,
		MaxRiskPct:   decimal.NewFromFloat(0.01),
	}
}

// TradeIntent describes an entry about to be placed.
type TradeIntent struct {
	Symbol     string
	Quantity   decimal.Decimal
	Entry      decimal.Decimal
	Stop       decimal.Decimal
	TakeProfit decimal.Decimal
	Balance    decimal.Decimal
}
