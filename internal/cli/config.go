package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/atrbot/config"
)

func newConfigCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created default configuration: %s\n", output)
			fmt.Fprintln(out, "credentials are read from BINANCE_API_KEY and BINANCE_API_SECRET (or .env)")
			fmt.Fprintf(out, "run with:\n  atrbot serve --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "atrbot.yaml", "Output config file path")

	var file string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = ro.ConfigPath
			}
			if path == "" {
				return fmt.Errorf("--file or --config is required")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %s\n", path)
			fmt.Fprintf(out, "  venue: %s (testnet %t, credentials %t)\n", cfg.Venue.Name, cfg.Venue.Testnet, cfg.HasCredentials())
			fmt.Fprintf(out, "  strategy: %s ATR(%d) x%s\n", cfg.Strategy.Interval, cfg.Strategy.ATRPeriod, cfg.Strategy.Multiplier)
			fmt.Fprintf(out, "  risk: %s of balance per entry\n", cfg.Risk.RiskFraction)
			fmt.Fprintf(out, "  journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "Config file to validate (default --config)")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
