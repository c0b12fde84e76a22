package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/atrbot/bot"
	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/indicators"
	"github.com/rustyeddy/atrbot/market"
	"github.com/rustyeddy/atrbot/signal"
)

type atrOptions struct {
	symbol     string
	interval   string
	period     int
	multiplier string
	file       string
	asJSON     bool
}

func newATRCmd(ro *rootOptions) *cobra.Command {
	o := atrOptions{}

	cmd := &cobra.Command{
		Use:   "atr",
		Short: "Compute ATR and bracket levels for a symbol",
		Long: `Compute the ATR, take-profit and stop-loss levels and the volatility
classification for a symbol. Candles come from the configured venue, or
from a CSV file (optionally .xz compressed) with --file, in which case the
last close is used as the current price. Nothing is traded.

Examples:
  atrbot atr --symbol BTCUSDT --interval 1h
  atrbot atr --file btc-1h.csv.xz --period 14 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := o.run(cmd, ro)
			if err != nil {
				return err
			}
			return printSignal(cmd.OutOrStdout(), sig, o.asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.symbol, "symbol", "BTCUSDT", "Futures symbol")
	f.StringVar(&o.interval, "interval", "", "Candle interval (default from config)")
	f.IntVar(&o.period, "period", 0, "ATR period (default from config)")
	f.StringVar(&o.multiplier, "multiplier", "", "Take-profit distance in ATRs (default from config)")
	f.StringVar(&o.file, "file", "", "Read candles from a CSV or CSV.xz file instead of the venue")
	f.BoolVar(&o.asJSON, "json", false, "Print JSON")
	return cmd
}

func (o atrOptions) run(cmd *cobra.Command, ro *rootOptions) (signal.Signal, error) {
	const op = "cli.atr"

	mult := ro.cfg.Strategy.Multiplier
	if o.multiplier != "" {
		m, err := decimal.NewFromString(o.multiplier)
		if err != nil || !m.IsPositive() {
			return signal.Signal{}, errs.Ef(errs.KindInput, op, "--multiplier must be a positive number, got %q", o.multiplier)
		}
		mult = m
	}
	period := ro.cfg.Strategy.ATRPeriod
	if o.period != 0 {
		period = o.period
	}

	if o.file == "" {
		v, err := buildVenue(ro.cfg, ro.log)
		if err != nil {
			return signal.Signal{}, err
		}
		iv, err := market.ParseInterval(ro.cfg.Strategy.Interval)
		if err != nil {
			return signal.Signal{}, err
		}
		b := bot.New(v.gw, nil, bot.Config{
			Interval:    iv,
			Period:      period,
			CandleLimit: ro.cfg.Strategy.CandleLimit,
			Multiplier:  mult,
		}, ro.log)
		return b.Analyze(cmd.Context(), bot.Request{Symbol: o.symbol, Interval: o.interval})
	}

	sym, err := market.NormalizeSymbol(o.symbol)
	if err != nil {
		return signal.Signal{}, errs.Wrap(errs.KindInput, op, err)
	}
	series, err := market.OpenCandleFile(o.file)
	if err != nil {
		return signal.Signal{}, errs.Wrap(errs.KindInput, op, err)
	}
	last, ok := series.Last()
	if !ok {
		return signal.Signal{}, errs.Ef(errs.KindInsufficientData, op, "%s has no candles", o.file)
	}
	trs, atrs, err := indicators.ComputeATR(series, period)
	if err != nil {
		return signal.Signal{}, err
	}
	return signal.Analyze(sym, last.Close, trs, atrs, mult)
}

func printSignal(w io.Writer, sig signal.Signal, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sig)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "symbol\t%s\n", sig.Symbol)
	fmt.Fprintf(tw, "price\t%s\n", sig.CurrentPrice)
	fmt.Fprintf(tw, "atr\t%s\n", sig.ATR.Round(8))
	fmt.Fprintf(tw, "take profit\t%s\n", sig.TakeProfit.Round(8))
	fmt.Fprintf(tw, "stop loss\t%s\n", sig.StopLoss.Round(8))
	fmt.Fprintf(tw, "reward/risk\t%s\n", sig.RiskRewardRatio.Round(4))
	fmt.Fprintf(tw, "volatility\t%s\n", sig.Volatility)
	return tw.Flush()
}
