// Package signal turns a price and an ATR reading into advisory bracket
// levels and a volatility classification.
package signal

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/indicators"
	"github.com/rustyeddy/atrbot/risk"
)

// DefaultMultiplier is the take-profit distance in ATRs.
var DefaultMultiplier = decimal.NewFromFloat(2.5)

// StopLossATRs is the stop distance in ATRs. It is fixed and independent of
// the take-profit multiplier.
var StopLossATRs = decimal.NewFromInt(1)

// VolatilityWindow is how many recent ATR values the classification averages.
const VolatilityWindow = 5

// AnalysisWindow is how many trailing TR/ATR values an analysis reports.
const AnalysisWindow = 5

// Volatility classifies the current ATR against its recent history.
type Volatility string

const (
	VolatilityHigh Volatility = "HIGH"
	VolatilityLow  Volatility = "LOW"
)

// Signal is derived per request and never stored.
type Signal struct {
	Symbol          string          `json:"symbol"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	ATR             decimal.Decimal `json:"atr"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	RiskRewardRatio decimal.Decimal `json:"risk_reward_ratio"`
	Volatility      Volatility      `json:"volatility_status"`

	TRValues  []float64 `json:"tr_values,omitempty"`
	ATRValues []float64 `json:"atr_values,omitempty"`
}

// Generate computes bracket levels for a long entry at currentPrice.
// A zero multiplier means DefaultMultiplier. Volatility is left empty; use
// Analyze when the ATR history is available.
func Generate(symbol string, currentPrice decimal.Decimal, atr float64, multiplier decimal.Decimal) (Signal, error) {
	const op = "signal.Generate"

	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr <= 0 {
		return Signal{}, errs.Ef(errs.KindInput, op, "atr must be a positive number, got %v", atr)
	}
	if !currentPrice.IsPositive() {
		return Signal{}, errs.Ef(errs.KindInput, op, "current price must be positive, got %s", currentPrice)
	}
	if multiplier.IsZero() {
		multiplier = DefaultMultiplier
	}
	if multiplier.IsNegative() {
		return Signal{}, errs.Ef(errs.KindInput, op, "multiplier must be positive, got %s", multiplier)
	}

	a := decimal.NewFromFloat(atr)
	tp, sl := Levels(currentPrice, a, multiplier)

	return Signal{
		Symbol:          symbol,
		CurrentPrice:    currentPrice,
		ATR:             a,
		TakeProfit:      tp,
		StopLoss:        sl,
		RiskRewardRatio: risk.RewardRisk(currentPrice, sl, tp),
	}, nil
}

// Levels returns take-profit and stop-loss prices for a long entry.
func Levels(entry, atr, multiplier decimal.Decimal) (takeProfit, stopLoss decimal.Decimal) {
	takeProfit = entry.Add(atr.Mul(multiplier))
	stopLoss = entry.Sub(atr.Mul(StopLossATRs))
	return takeProfit, stopLoss
}

// Classify reports HIGH when the latest defined ATR exceeds the mean of the
// most recent VolatilityWindow defined ATR values, LOW otherwise.
func Classify(atrs indicators.Series) Volatility {
	recent := atrs.DefinedTail(VolatilityWindow)
	if len(recent) == 0 {
		return VolatilityLow
	}
	current := recent[len(recent)-1]
	if current > indicators.Mean(recent) {
		return VolatilityHigh
	}
	return VolatilityLow
}

// Analyze builds a complete Signal from the TR and ATR series of a request.
// The latest ATR must be defined; otherwise an InsufficientData error is
// returned.
func Analyze(symbol string, currentPrice decimal.Decimal, trs, atrs indicators.Series, multiplier decimal.Decimal) (Signal, error) {
	atr, ok := atrs.Last()
	if !ok {
		return Signal{}, errs.Ef(errs.KindInsufficientData, "signal.Analyze",
			"latest ATR undefined for %s (%d candles)", symbol, len(atrs))
	}

	sig, err := Generate(symbol, currentPrice, atr, multiplier)
	if err != nil {
		return Signal{}, err
	}
	sig.Volatility = Classify(atrs)
	sig.TRValues = finite(trs.Tail(AnalysisWindow))
	sig.ATRValues = finite(atrs.Tail(AnalysisWindow))
	return sig, nil
}

// finite drops NaN entries so the values survive JSON encoding.
func finite(s indicators.Series) []float64 {
	out := make([]float64, 0, len(s))
	for _, v := range s {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
