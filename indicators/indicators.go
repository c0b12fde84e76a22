// Package indicators provides technical analysis indicators for trading
package indicators

import (
	"math"

	"github.com/rustyeddy/atrbot/market"
)

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live and offline analysis.
type Indicator interface {
	// Name returns a stable identifier like "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, NaN until Ready().
	Value() float64
}

// Series is an indicator output aligned with its input candles.
// Undefined entries are NaN, never zero.
type Series []float64

// Defined reports whether index i holds a value.
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s) && !math.IsNaN(s[i])
}

// Last returns the final value and whether it is defined.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return math.NaN(), false
	}
	v := s[len(s)-1]
	return v, !math.IsNaN(v)
}

// Tail returns up to n trailing entries, undefined ones included.
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return append(Series(nil), s...)
	}
	return append(Series(nil), s[len(s)-n:]...)
}

// DefinedTail returns up to n trailing defined values, oldest first.
func (s Series) DefinedTail(n int) []float64 {
	out := make([]float64, 0, n)
	for i := len(s) - 1; i >= 0 && len(out) < n; i-- {
		if !math.IsNaN(s[i]) {
			out = append(out, s[i])
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// SMA is the simple moving average of values over a trailing window of n,
// aligned with values. Windows containing NaN are NaN.
func SMA(values []float64, n int) Series {
	out := make(Series, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}

	for i := n - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for _, v := range values[i-n+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// Mean is the arithmetic mean of values, NaN when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
