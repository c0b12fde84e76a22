// Package cli is the atrbot command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/atrbot/config"
	"github.com/rustyeddy/atrbot/internal/logging"
)

const version = "dev"

// rootOptions holds the persistent flags and what PersistentPreRunE
// derives from them.
type rootOptions struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	NoColor    bool

	cfg *config.Config
	log zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "atrbot",
		Short:         "ATR bracket bot for Binance USDⓈ-M futures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.DBPath, "db", "", "SQLite journal database (overrides config)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().BoolVar(&ro.NoColor, "no-color", false, "Log JSON lines instead of console output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ro.load()
	}

	cmd.AddCommand(
		newServeCmd(ro),
		newATRCmd(ro),
		newConfigCmd(ro),
		newJournalCmd(ro),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "atrbot (%s)\n", version)
			},
		},
	)
	return cmd
}

// load reads .env and the config file, then applies flag overrides.
func (ro *rootOptions) load() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(ro.ConfigPath)
	if err != nil {
		return err
	}
	if ro.DBPath != "" {
		cfg.Journal.Type = config.JournalSQLite
		cfg.Journal.DBPath = ro.DBPath
	}
	if ro.LogLevel != "" {
		cfg.Log.Level = ro.LogLevel
	}
	if ro.NoColor {
		cfg.Log.Console = false
	}
	ro.cfg = cfg
	ro.log = logging.New(cfg.Log.Level, cfg.Log.Console)
	return nil
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
