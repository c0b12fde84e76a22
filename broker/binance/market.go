package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
)

// GetCandles fetches the most recent closed and open klines, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol string, interval market.Interval, limit int) (market.Series, error) {
	if symbol == "" {
		return nil, errs.E(errs.KindInput, "binance.GetCandles", "symbol is required")
	}
	if limit <= 0 || limit > maxKlines {
		return nil, errs.Ef(errs.KindInput, "binance.GetCandles", "limit must be in 1..%d, got %d", maxKlines, limit)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/klines", params, false, &raw); err != nil {
		return nil, err
	}

	candles := make(market.Series, 0, len(raw))
	for i, k := range raw {
		cdl, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, cdl)
	}
	return candles, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(k []json.RawMessage) (market.Candle, error) {
	if len(k) < 6 {
		return market.Candle{}, fmt.Errorf("want at least 6 fields, got %d", len(k))
	}

	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return market.Candle{}, fmt.Errorf("parse open time: %w", err)
	}

	vals := make([]decimal.Decimal, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := range vals {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return market.Candle{}, fmt.Errorf("parse %s: %w", names[i], err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return market.Candle{}, fmt.Errorf("parse %s price: %w", names[i], err)
		}
		vals[i] = d
	}

	return market.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

type premiumIndex struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
}

// GetMarkPrice returns the exchange mark price for symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Zero, errs.E(errs.KindInput, "binance.GetMarkPrice", "symbol is required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)

	var pi premiumIndex
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false, &pi); err != nil {
		return decimal.Zero, err
	}
	px, err := decimal.NewFromString(pi.MarkPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse mark price %q: %w", pi.MarkPrice, err)
	}
	return px, nil
}

type exchangeFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	TickSize    string `json:"tickSize"`
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}

type symbolInfo struct {
	Symbol  string           `json:"symbol"`
	Status  string           `json:"status"`
	Filters []exchangeFilter `json:"filters"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

// GetSymbolFilters returns the lot and price filters for symbol. Exchange
// info is fetched once and cached for the life of the client. A symbol
// without a LOT_SIZE filter is a configuration error.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (market.SymbolFilters, error) {
	const op = "binance.GetSymbolFilters"

	info, ok := c.cachedSymbol(symbol)
	if !ok {
		var ei exchangeInfo
		if err := c.do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false, &ei); err != nil {
			return market.SymbolFilters{}, err
		}
		c.mu.Lock()
		for _, s := range ei.Symbols {
			c.filters[s.Symbol] = s
		}
		info, ok = c.filters[symbol]
		c.mu.Unlock()
		if !ok {
			return market.SymbolFilters{}, errs.Ef(errs.KindInput, op, "unknown symbol %s", symbol)
		}
	}

	out := market.SymbolFilters{Symbol: symbol}
	haveLot := false
	for _, f := range info.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			haveLot = true
			out.StepSize = parseDec(f.StepSize)
			out.MinQty = parseDec(f.MinQty)
			out.MaxQty = parseDec(f.MaxQty)
		case "PRICE_FILTER":
			out.TickSize = parseDec(f.TickSize)
		case "MIN_NOTIONAL":
			out.MinNotional = parseDec(f.Notional)
			if out.MinNotional.IsZero() {
				out.MinNotional = parseDec(f.MinNotional)
			}
		}
	}
	if !haveLot || !out.StepSize.IsPositive() {
		return market.SymbolFilters{}, errs.Ef(errs.KindConfig, op, "no LOT_SIZE filter for %s", symbol)
	}
	return out, nil
}

func (c *Client) cachedSymbol(symbol string) (symbolInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.filters[symbol]
	return s, ok
}

// parseDec parses s, treating empty or malformed values as zero.
func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
