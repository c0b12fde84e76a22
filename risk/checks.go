package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    decimal.Decimal
	PlannedRiskPct decimal.Decimal
	PlannedRR      decimal.Decimal
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// String joins the violation messages.
func (d Decision) String() string {
	msgs := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		msgs[i] = v.Code + ": " + v.Msg
	}
	return strings.Join(msgs, "; ")
}

// Evaluate runs the pre-trade checks for an intent.
func Evaluate(p Policy, intent TradeIntent) Decision {
	d := Decision{Allowed: true}

	if !intent.Entry.IsPositive() || !intent.Stop.IsPositive() {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be positive")
		return d
	}
	if !intent.Quantity.IsPositive() {
		d.add("NO_QUANTITY", "quantity must be positive")
		return d
	}
	if !intent.Stop.LessThan(intent.Entry) {
		d.add("STOP_ABOVE_ENTRY", fmt.Sprintf("stop %s not below entry %s", intent.Stop, intent.Entry))
	}

	d.PlannedRisk = PlannedRisk(intent.Quantity, intent.Entry, intent.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, intent.Balance)
	d.PlannedRR = RewardRisk(intent.Entry, intent.Stop, intent.TakeProfit)

	if p.MaxRiskPct.IsPositive() {
		if d.PlannedRiskPct.IsNegative() || d.PlannedRiskPct.GreaterThan(p.MaxRiskPct) {
			d.add("RISK_TOO_HIGH",
				fmt.Sprintf("planned risk %s%% exceeds max %s%%",
					pct(d.PlannedRiskPct), pct(p.MaxRiskPct)))
		}
	}
	if p.MinRewardRisk.IsPositive() && d.PlannedRR.LessThan(p.MinRewardRisk) {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %s below minimum %s", d.PlannedRR.StringFixed(2), p.MinRewardRisk.StringFixed(2)))
	}

	return d
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2)
}
