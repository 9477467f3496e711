package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/domain/usage"
)

func newSummaryCmd(o *globalOptions) *cobra.Command {
	var (
		ff                 filterFlags
		today, week, month bool
		byModel, asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals and the per-model breakdown",
		Long: `Aggregate calls, tokens and cost over a period.

Without a period the whole ledger is summarized. Weeks start on Monday;
all days are UTC.

Examples:
  costledger summary --today
  costledger summary --month --by-model
  costledger summary --start 2025-01-01 --end 2025-01-31 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}

			window := ""
			for name, set := range map[string]bool{app.WindowToday: today, app.WindowWeek: week, app.WindowMonth: month} {
				if set {
					window = name
				}
			}
			if window != "" && (ff.start != "" || ff.end != "") {
				return errors.New("--today, --week and --month cannot be combined with --start or --end")
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if window != "" {
				wf, err := a.Service.Window(window)
				if err != nil {
					return err
				}
				f.Start, f.End = wf.Start, wf.End
			}

			s, err := a.Service.Summary(cmd.Context(), f)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), newSummaryDoc(f, s))
			}
			printSummary(cmd.OutOrStdout(), s, summaryTitle(window, f), byModel)
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().BoolVar(&today, "today", false, "current UTC day")
	cmd.Flags().BoolVar(&week, "week", false, "current week (Monday start)")
	cmd.Flags().BoolVar(&month, "month", false, "current month")
	cmd.Flags().BoolVar(&byModel, "by-model", false, "detailed per-model table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.MarkFlagsMutuallyExclusive("today", "week", "month")

	return cmd
}

func summaryTitle(window string, f usage.Filter) string {
	switch window {
	case app.WindowToday:
		return fmt.Sprintf("(today %s)", f.Start.Format(usage.DateLayout))
	case app.WindowWeek:
		return fmt.Sprintf("(week of %s)", f.Start.Format(usage.DateLayout))
	case app.WindowMonth:
		return fmt.Sprintf("(%s)", f.Start.Format("January 2006"))
	}

	switch {
	case f.Start.IsZero() && f.End.IsZero():
		return "(all time)"
	case f.End.IsZero():
		return fmt.Sprintf("(since %s)", f.Start.Format(usage.DateLayout))
	case f.Start.IsZero():
		return fmt.Sprintf("(through %s)", f.End.Format(usage.DateLayout))
	default:
		return fmt.Sprintf("(%s to %s)", f.Start.Format(usage.DateLayout), f.End.Format(usage.DateLayout))
	}
}
