package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTrendCmd(o *globalOptions) *cobra.Command {
	var (
		days   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show daily spend for the last N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("invalid --days %d: must be >= 1", days)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			buckets, err := a.Service.Trend(cmd.Context(), days)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), buckets)
			}
			printTrend(cmd.OutOrStdout(), buckets)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "number of days, today included")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	return cmd
}
