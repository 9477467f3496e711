package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/bootstrap"
)

func newAlertCmd(o *globalOptions) *cobra.Command {
	var (
		daily, monthly float64
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Check spend against daily and monthly limits",
		Long: `Compare today's and this month's spend (UTC) with the limits.

Limits default to limits.daily and limits.monthly from the config file.
Exits with status 2 when any limit is reached, so scripts can react.

Examples:
  costledger alert --daily-limit 5
  costledger alert --daily-limit 5 --monthly-limit 100 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daily < 0 {
				return fmt.Errorf("invalid --daily-limit %v: must be >= 0", daily)
			}
			if monthly < 0 {
				return fmt.Errorf("invalid --monthly-limit %v: must be >= 0", monthly)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			limits := bootstrap.LimitsFrom(a.Config)
			if cmd.Flags().Changed("daily-limit") {
				limits.Daily = daily
			}
			if cmd.Flags().Changed("monthly-limit") {
				limits.Monthly = monthly
			}

			report, err := a.Service.Alert(cmd.Context(), limits)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				doc := struct {
					app.AlertReport
					Limits   app.Limits `json:"limits"`
					Breached bool       `json:"breached"`
				}{report, limits, report.Breached()}
				if err := writeJSON(out, doc); err != nil {
					return err
				}
			} else if len(report.Results()) == 0 {
				fmt.Fprintln(out, "No limits set. Pass --daily-limit or --monthly-limit, or set limits in the config file.")
			} else {
				printAlert(out, report)
			}

			if report.Breached() {
				return app.ErrThresholdBreached
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&daily, "daily-limit", 0, "daily limit in USD (0 disables)")
	cmd.Flags().Float64Var(&monthly, "monthly-limit", 0, "monthly limit in USD (0 disables)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	return cmd
}
