// Package api exposes the bot over HTTP.
//
// Every response is a JSON object whose "status" is "success" or "error".
// Errors also carry the error kind and message, and the HTTP status is
// derived from the kind.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/atrbot/bot"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/metrics"
)

// DefaultSymbol is used when a request names no symbol.
const DefaultSymbol = "BTCUSDT"

const shutdownTimeout = 15 * time.Second

type Server struct {
	bot    *bot.Bot
	log    zerolog.Logger
	engine *gin.Engine
}

func NewServer(b *bot.Bot, log zerolog.Logger) *Server {
	s := &Server{
		bot:    b,
		log:    log.With().Str("component", "api").Logger(),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.log))
	s.routes(s.engine)
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { success(c, gin.H{}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/atr-analysis", s.atrAnalysis)
	r.POST("/auto-trade", s.autoTrade)

	r.GET("/positions", s.positions)
	r.DELETE("/positions/:symbol", s.closePosition)
	r.DELETE("/cancel-orders", s.cancelOrders)

	r.GET("/balance", s.balance)
	r.GET("/market-price", s.marketPrice)
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInput:
		return http.StatusBadRequest
	case errs.KindInsufficientData, errs.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case errs.KindStateConflict:
		return http.StatusConflict
	case errs.KindVenue:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func success(c *gin.Context, body gin.H) {
	body["status"] = "success"
	c.JSON(http.StatusOK, body)
}

// fail writes the error envelope. extra is merged into the body.
func fail(c *gin.Context, err error, extra gin.H) {
	body := gin.H{
		"status":  "error",
		"kind":    errs.KindOf(err),
		"message": err.Error(),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(StatusFor(err), body)
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		} else if status >= http.StatusBadRequest {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
