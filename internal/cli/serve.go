package cli

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/atrbot/api"
	"github.com/rustyeddy/atrbot/bot"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/position"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, bracket reconciliation and position polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				ro.cfg.Server.Addr = addr
			}
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, ro)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, ro *rootOptions) error {
	cfg, log := ro.cfg, ro.log

	v, err := buildVenue(cfg, log)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	ctrl := position.NewController(v.gw, j, position.Config{
		Policy:        cfg.Risk,
		SubmitTimeout: cfg.Venue.CallTimeout,
	}, log)
	if v.paper != nil {
		v.paper.SetFillHandler(position.NewReconciler(ctrl, log))
	}

	iv, err := market.ParseInterval(cfg.Strategy.Interval)
	if err != nil {
		return err
	}
	b := bot.New(v.gw, ctrl, bot.Config{
		Interval:    iv,
		Period:      cfg.Strategy.ATRPeriod,
		CandleLimit: cfg.Strategy.CandleLimit,
		Multiplier:  cfg.Strategy.Multiplier,
	}, log)

	if log.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(b, log)

	log.Info().
		Str("venue", cfg.Venue.Name).
		Bool("testnet", cfg.Venue.Testnet).
		Str("journal", cfg.Journal.Type).
		Str("addr", cfg.Server.Addr).
		Msg("starting atrbot")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })
	if cfg.Server.PollInterval > 0 {
		poller := position.NewPoller(ctrl, v.gw, cfg.Server.PollInterval, log)
		g.Go(func() error { return ignoreCancel(poller.Run(gctx)) })
	}
	if v.paper != nil && len(v.replay) > 0 {
		g.Go(func() error {
			err := v.paper.Replay(gctx, cfg.Paper.Symbol, v.replay, cfg.Paper.ReplayEvery)
			if err == nil {
				log.Info().Int("candles", len(v.replay)).Msg("paper replay finished")
			}
			return ignoreCancel(err)
		})
	}

	err = g.Wait()
	for _, p := range ctrl.List() {
		log.Warn().
			Str("symbol", p.Symbol).
			Str("position_id", p.ID).
			Bool("unprotected", p.Unprotected).
			Msg("position still open at shutdown; brackets remain at the venue")
	}
	return err
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
