// Package market holds the price data types shared by the indicators,
// the sizer and the venue gateways.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV bar. Values are copied, never mutated.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// HighF, LowF and CloseF return float64 views for indicator math.
func (c Candle) HighF() float64  { return c.High.InexactFloat64() }
func (c Candle) LowF() float64   { return c.Low.InexactFloat64() }
func (c Candle) CloseF() float64 { return c.Close.InexactFloat64() }

// Series is an ordered sequence of candles, oldest first.
type Series []Candle

// Validate checks ordering and basic OHLC sanity.
func (s Series) Validate() error {
	for i, c := range s {
		if c.High.LessThan(c.Low) {
			return fmt.Errorf("candle %d: high %s below low %s", i, c.High, c.Low)
		}
		if i > 0 && !c.OpenTime.After(s[i-1].OpenTime) {
			return fmt.Errorf("candle %d: open time %s not after %s",
				i, c.OpenTime.Format(time.RFC3339), s[i-1].OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

// Last returns the most recent candle.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// NewCandle builds a candle from float prices. Useful for fixtures and
// simulated feeds; venue data should be parsed from strings instead.
func NewCandle(openTime time.Time, open, high, low, close, volume float64) Candle {
	return Candle{
		OpenTime: openTime,
		Open:     decimal.NewFromFloat(open),
		High:     decimal.NewFromFloat(high),
		Low:      decimal.NewFromFloat(low),
		Close:    decimal.NewFromFloat(close),
		Volume:   decimal.NewFromFloat(volume),
	}
}
