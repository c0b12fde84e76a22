package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
)

type accountInfo struct {
	TotalWalletBalance string `json:"totalWalletBalance"`
	AvailableBalance   string `json:"availableBalance"`
}

// GetWalletBalance returns totalWalletBalance from the futures account.
func (c *Client) GetWalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var acct accountInfo
	if err := c.do(ctx, http.MethodGet, "/fapi/v2/account", nil, true, &acct); err != nil {
		return decimal.Zero, err
	}
	bal, err := decimal.NewFromString(acct.TotalWalletBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse wallet balance %q: %w", acct.TotalWalletBalance, err)
	}
	return bal, nil
}

type positionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

// GetPositionRisk returns the venue's net position for symbol. In hedge
// mode the LONG leg is reported.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (broker.PositionRisk, error) {
	if symbol == "" {
		return broker.PositionRisk{}, errs.E(errs.KindInput, "binance.GetPositionRisk", "symbol is required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)

	var rows []positionRisk
	if err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true, &rows); err != nil {
		return broker.PositionRisk{}, err
	}

	out := broker.PositionRisk{Symbol: symbol}
	for _, r := range rows {
		if r.Symbol != symbol {
			continue
		}
		if r.PositionSide != "" && r.PositionSide != "BOTH" && r.PositionSide != "LONG" {
			continue
		}
		lev, _ := strconv.Atoi(r.Leverage)
		out = broker.PositionRisk{
			Symbol:           r.Symbol,
			PositionAmt:      parseDec(r.PositionAmt),
			EntryPrice:       parseDec(r.EntryPrice),
			MarkPrice:        parseDec(r.MarkPrice),
			UnrealizedProfit: parseDec(r.UnRealizedProfit),
			LiquidationPrice: parseDec(r.LiquidationPrice),
			Leverage:         lev,
		}
		break
	}
	return out, nil
}
