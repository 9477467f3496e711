package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCmd(o *globalOptions) *cobra.Command {
	var textfile string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Write ledger metrics for node_exporter",
		Long: `Write this month's ledger and budget gauges in the Prometheus text
format, for node_exporter's textfile collector.

Example:
  costledger metrics --textfile /var/lib/node_exporter/costledger.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if textfile == "" {
				return errors.New("--textfile is required")
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.RefreshMetrics(cmd.Context(), a.Limits()); err != nil {
				return err
			}
			if err := a.Metrics.WriteTextfile(textfile); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote metrics to %s\n", textfile)
			return nil
		},
	}

	cmd.Flags().StringVar(&textfile, "textfile", "", "output .prom file (required)")

	return cmd
}
