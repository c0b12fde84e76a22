package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/atrbot/config"
	"github.com/rustyeddy/atrbot/journal"
)

func newJournalCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite position journal",
		Long: `Query closed positions recorded in the SQLite journal.

Examples:
  atrbot journal position <position-id>
  atrbot journal today
  atrbot journal day 2024-01-15`,
	}

	open := func() (*journal.SQLite, error) {
		if ro.cfg.Journal.Type != config.JournalSQLite {
			return nil, fmt.Errorf("journal queries need a sqlite journal (configured: %s)", ro.cfg.Journal.Type)
		}
		j, err := journal.NewSQLite(ro.cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "position <position-id>",
			Short: "Show one position and its events",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				rec, err := j.GetPosition(args[0])
				if err != nil {
					return fmt.Errorf("get position: %w", err)
				}
				events, err := j.ListEvents(rec.PositionID)
				if err != nil {
					return fmt.Errorf("list events: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, journal.FormatPositionOrg(rec))
				for _, e := range events {
					fmt.Fprintf(out, "- %s %s %s\n", e.Time.Format(time.RFC3339), e.Type, e.Detail)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "today",
			Short: "List positions closed today",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listDay(cmd, open, time.Now().In(time.Local).Format("2006-01-02"))
			},
		},
		&cobra.Command{
			Use:   "day <YYYY-MM-DD>",
			Short: "List positions closed on a day",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return listDay(cmd, open, args[0])
			},
		},
	)
	return cmd
}

func listDay(cmd *cobra.Command, open func() (*journal.SQLite, error), day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	j, err := open()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListPositionsClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatPositionsOrg(recs))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
