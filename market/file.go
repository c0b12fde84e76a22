package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ulikunitz/xz"
)

// CSV columns: open_time,open,high,low,close,volume
// open_time is RFC3339 or unix milliseconds. A header row is optional.

// OpenCandleFile loads candles from a CSV file. Files ending in ".xz" are
// decompressed on the fly.
func OpenCandleFile(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		r = xr
	}

	s, err := ReadCandlesCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadCandlesCSV parses candles from r and validates the resulting series.
func ReadCandlesCSV(r io.Reader) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out Series
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if len(rec) == 0 || strings.HasPrefix(rec[0], "#") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "open_time") {
			continue
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: want at least 5 fields, got %d", line, len(rec))
		}

		c, err := parseCandleRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteCandlesCSV writes s with a header row.
func WriteCandlesCSV(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"open_time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range s {
		if err := cw.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCandleRecord(rec []string) (Candle, error) {
	ts, err := parseOpenTime(strings.TrimSpace(rec[0]))
	if err != nil {
		return Candle{}, err
	}

	vals := make([]decimal.Decimal, 5)
	for i := 1; i < len(rec) && i <= 5; i++ {
		d, err := decimal.NewFromString(strings.TrimSpace(rec[i]))
		if err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-1] = d
	}

	return Candle{
		OpenTime: ts,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func parseOpenTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse open_time %q: %w", s, err)
	}
	return t.UTC(), nil
}
