package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/domain/usage"
)

func newPurgeCmd(o *globalOptions) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove records older than a date",
		Long: `Remove every record stamped before the start of the given UTC day.

The ledger is rewritten atomically. Purge is not coordinated with other
processes: a record appended by another process while purge runs can be
lost. Run it when nothing else is logging.

Example:
  costledger purge --before 2025-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if before == "" {
				return errors.New("--before is required")
			}
			cutoff, err := usage.ParseTime(before, false)
			if err != nil {
				return fmt.Errorf("invalid --before: %w", err)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.Service.Purge(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s records before %s\n",
				formatNumber(int64(removed)), cutoff.Format(usage.DateLayout))
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "cutoff date (YYYY-MM-DD); older records are removed")

	return cmd
}
