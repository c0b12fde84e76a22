package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/atrbot/bot"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/position"
	"github.com/rustyeddy/atrbot/signal"
)

type analysisQuery struct {
	Symbol   string `form:"symbol"`
	Interval string `form:"interval"`
	Period   int    `form:"period"`
}

type analysisResponse struct {
	Status string `json:"status"`
	signal.Signal
}

func (s *Server) atrAnalysis(c *gin.Context) {
	var q analysisQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, errs.Wrap(errs.KindInput, "api.atrAnalysis", err), nil)
		return
	}
	if q.Symbol == "" {
		q.Symbol = DefaultSymbol
	}

	sig, err := s.bot.Analyze(c.Request.Context(), bot.Request{
		Symbol:   q.Symbol,
		Interval: q.Interval,
		Period:   q.Period,
	})
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, analysisResponse{Status: "success", Signal: sig})
}

type autoTradeQuery struct {
	Symbol     string `form:"symbol"`
	Multiplier string `form:"atr_multiplier"`
	Interval   string `form:"interval"`
}

func (s *Server) autoTrade(c *gin.Context) {
	const op = "api.autoTrade"

	var q autoTradeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, errs.Wrap(errs.KindInput, op, err), nil)
		return
	}
	if q.Symbol == "" {
		q.Symbol = DefaultSymbol
	}
	var mult decimal.Decimal
	if q.Multiplier != "" {
		m, err := decimal.NewFromString(q.Multiplier)
		if err != nil {
			fail(c, errs.Ef(errs.KindInput, op, "atr_multiplier %q is not a number", q.Multiplier), nil)
			return
		}
		if !m.IsPositive() {
			fail(c, errs.Ef(errs.KindInput, op, "atr_multiplier must be positive, got %s", m), nil)
			return
		}
		mult = m
	}

	entry, err := s.bot.AutoTrade(c.Request.Context(), bot.Request{
		Symbol:     q.Symbol,
		Interval:   q.Interval,
		Multiplier: mult,
	})
	if err != nil {
		// an open but unprotected position is reported with the error
		if entry.Position.ID != "" {
			fail(c, err, gin.H{"position": entry.Position})
			return
		}
		fail(c, err, nil)
		return
	}

	msg := "position opened"
	if entry.Action == position.ActionAlreadyOpen {
		msg = "position already open"
	}
	success(c, gin.H{
		"message":        msg,
		"symbol":         entry.Position.Symbol,
		"atr":            entry.Position.ATR,
		"trading_result": entry,
	})
}

func symbolParam(op, raw string) (string, error) {
	if raw == "" {
		raw = DefaultSymbol
	}
	sym, err := market.NormalizeSymbol(raw)
	if err != nil {
		return "", errs.Wrap(errs.KindInput, op, err)
	}
	return sym, nil
}

// positions lists the controller's positions. With a symbol it also
// reports the venue's view of that symbol.
func (s *Server) positions(c *gin.Context) {
	ctrl := s.bot.Controller()

	raw := c.Query("symbol")
	if raw == "" {
		success(c, gin.H{"positions": ctrl.List()})
		return
	}
	sym, err := symbolParam("api.positions", raw)
	if err != nil {
		fail(c, err, nil)
		return
	}

	var out []position.Position
	if p, ok := ctrl.Get(sym); ok {
		out = append(out, p)
	}
	venue, err := s.bot.Gateway().GetPositionRisk(c.Request.Context(), sym)
	if err != nil {
		fail(c, errs.Wrap(errs.KindVenue, "api.positions", err), gin.H{"positions": out})
		return
	}
	success(c, gin.H{"positions": out, "venue": venue})
}

func (s *Server) closePosition(c *gin.Context) {
	sym, err := symbolParam("api.closePosition", c.Param("symbol"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	p, err := s.bot.Controller().Close(c.Request.Context(), sym, position.ReasonManual)
	if err != nil {
		if p.ID != "" {
			fail(c, err, gin.H{"position": p})
			return
		}
		fail(c, err, nil)
		return
	}
	success(c, gin.H{
		"message":     "position closed",
		"position":    p,
		"realized_pl": p.RealizedPL(),
	})
}

// cancelOrders cancels resting orders on a symbol the controller holds no
// position on. Brackets of an open position are removed by closing it.
func (s *Server) cancelOrders(c *gin.Context) {
	const op = "api.cancelOrders"

	sym, err := symbolParam(op, c.Query("symbol"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	if p, ok := s.bot.Controller().Get(sym); ok {
		fail(c, errs.Ef(errs.KindStateConflict, op, "%s has an open position; close it instead", sym), gin.H{"position": p})
		return
	}
	if err := s.bot.Gateway().CancelOpenOrders(c.Request.Context(), sym); err != nil {
		fail(c, errs.Wrap(errs.KindVenue, op, err), nil)
		return
	}
	success(c, gin.H{"message": "all open orders cancelled", "symbol": sym})
}

func (s *Server) balance(c *gin.Context) {
	bal, err := s.bot.Gateway().GetWalletBalance(c.Request.Context())
	if err != nil {
		fail(c, errs.Wrap(errs.KindVenue, "api.balance", err), nil)
		return
	}
	success(c, gin.H{"asset": "USDT", "balance": bal})
}

func (s *Server) marketPrice(c *gin.Context) {
	sym, err := symbolParam("api.marketPrice", c.Query("symbol"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	px, err := s.bot.Gateway().GetMarkPrice(c.Request.Context(), sym)
	if err != nil {
		fail(c, errs.Wrap(errs.KindVenue, "api.marketPrice", err), nil)
		return
	}
	success(c, gin.H{"symbol": sym, "price": px})
}
