package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
)

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	UpdateTime    int64  `json:"updateTime"`
}

// SubmitOrder places a new order. Market orders request the RESULT response
// type so the fill price and quantity come back in the acknowledgement.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	const op = "binance.SubmitOrder"

	if req.Symbol == "" || req.Side == "" || req.Type == "" {
		return broker.OrderFill{}, errs.E(errs.KindInput, op, "symbol, side and type are required")
	}
	if !req.Quantity.IsPositive() {
		return broker.OrderFill{}, errs.Ef(errs.KindInput, op, "quantity must be positive, got %s", req.Quantity)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.Price != nil {
		params.Set("price", req.Price.String())
	}
	if req.StopPrice != nil {
		params.Set("stopPrice", req.StopPrice.String())
	}
	tif := req.TimeInForce
	if tif == "" && req.Type == broker.Limit {
		tif = "GTC"
	}
	if tif != "" {
		params.Set("timeInForce", tif)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if req.Type == broker.Market {
		params.Set("newOrderRespType", "RESULT")
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return broker.OrderFill{}, err
	}

	c.log.Info().
		Str("symbol", resp.Symbol).
		Str("type", string(req.Type)).
		Int64("order_id", resp.OrderID).
		Str("status", resp.Status).
		Str("executed_qty", resp.ExecutedQty).
		Str("avg_price", resp.AvgPrice).
		Msg("order accepted")

	return broker.OrderFill{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Status:        resp.Status,
		AvgPrice:      parseDec(resp.AvgPrice),
		FilledQty:     parseDec(resp.ExecutedQty),
		Time:          time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

// CancelOpenOrders cancels every resting order on symbol.
func (c *Client) CancelOpenOrders(ctx context.Context, symbol string) error {
	if symbol == "" {
		return errs.E(errs.KindInput, "binance.CancelOpenOrders", "symbol is required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	return c.do(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true, nil)
}
