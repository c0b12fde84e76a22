package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
)

// DefaultATRPeriod is the rolling window used when none is given.
const DefaultATRPeriod = 14

// TrueRanges returns the True Range of every candle. Index 0 has no previous
// close and is NaN.
func TrueRanges(candles market.Series) Series {
	out := make(Series, len(candles))
	for i := range candles {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = trueRange(candles[i], candles[i-1])
	}
	return out
}

// ComputeATR returns the True Range series and the ATR series for candles.
// ATR[i] is the simple moving average of TR[i-period+1..i]; it is NaN
// until period defined True Ranges exist, so at least period+1 candles are
// needed for one defined value. Wilder smoothing is deliberately not used.
func ComputeATR(candles market.Series, period int) (trs, atrs Series, err error) {
	if period <= 0 {
		return nil, nil, errs.Ef(errs.KindInput, "indicators.ComputeATR", "period must be positive, got %d", period)
	}
	trs = TrueRanges(candles)
	return trs, SMA(trs, period), nil
}

// LatestATR returns the most recent ATR value, or an InsufficientData error
// when the series is too short to define it.
func LatestATR(candles market.Series, period int) (float64, error) {
	_, atrs, err := ComputeATR(candles, period)
	if err != nil {
		return 0, err
	}
	v, ok := atrs.Last()
	if !ok {
		return 0, errs.Ef(errs.KindInsufficientData, "indicators.LatestATR",
			"not enough candles: need %d, got %d", period+1, len(candles))
	}
	return v, nil
}

// ATR is a streaming Average True Range indicator with the same simple
// moving average semantics as ComputeATR.
type ATR struct {
	period      int
	window      []float64 // ring of the last period true ranges
	next        int
	count       int
	sum         float64
	prevClose   float64
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	return &ATR{
		period: period,
		window: make([]float64, period),
	}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// Need period+1 candles because TR requires previous candle
	return a.period + 1
}

func (a *ATR) Reset() {
	for i := range a.window {
		a.window[i] = 0
	}
	a.next = 0
	a.count = 0
	a.sum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(c market.Candle) {
	if !a.hasPrevious {
		a.prevClose = c.CloseF()
		a.hasPrevious = true
		return
	}

	tr := trueRangeF(c.HighF(), c.LowF(), a.prevClose)
	a.prevClose = c.CloseF()

	if a.count == a.period {
		a.sum -= a.window[a.next]
	} else {
		a.count++
	}
	a.window[a.next] = tr
	a.sum += tr
	a.next = (a.next + 1) % a.period
}

// Calculate feeds candles in order and returns the final value.
func (a *ATR) Calculate(candles market.Series) float64 {
	for _, c := range candles {
		a.Update(c)
	}
	return a.Value()
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return math.NaN()
	}
	return a.sum / float64(a.period)
}

// trueRange calculates the True Range for a candle given the previous candle
func trueRange(current, previous market.Candle) float64 {
	return trueRangeF(current.HighF(), current.LowF(), previous.CloseF())
}

func trueRangeF(high, low, prevClose float64) float64 {
	highLow := high - low
	highClose := math.Abs(high - prevClose)
	lowClose := math.Abs(low - prevClose)

	return math.Max(highLow, math.Max(highClose, lowClose))
}
