package market

import (
	"fmt"
	"time"
)

// Interval is a kline interval as the futures venue names it.
type Interval string

const (
	M1  Interval = "1m"
	M3  Interval = "3m"
	M5  Interval = "5m"
	M15 Interval = "15m"
	M30 Interval = "30m"
	H1  Interval = "1h"
	H2  Interval = "2h"
	H4  Interval = "4h"
	H6  Interval = "6h"
	H8  Interval = "8h"
	H12 Interval = "12h"
	D1  Interval = "1d"
	D3  Interval = "3d"
	W1  Interval = "1w"
)

var intervalDurations = map[Interval]time.Duration{
	M1:  time.Minute,
	M3:  3 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H2:  2 * time.Hour,
	H4:  4 * time.Hour,
	H6:  6 * time.Hour,
	H8:  8 * time.Hour,
	H12: 12 * time.Hour,
	D1:  24 * time.Hour,
	D3:  72 * time.Hour,
	W1:  7 * 24 * time.Hour,
}

// ParseInterval validates s against the supported intervals.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// Duration returns the bar length, or 0 for an unknown interval.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

func (iv Interval) String() string { return string(iv) }
