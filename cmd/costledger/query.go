package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd(o *globalOptions) *cobra.Command {
	var (
		ff     filterFlags
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List ledger records",
		Long: `List records oldest first, optionally filtered by date range and model.

Examples:
  costledger query --start 2025-01-01 --end 2025-01-31
  costledger query --model gpt-4o --limit 20 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("invalid --limit %d: must be >= 0", limit)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Service.Query(cmd.Context(), f, limit)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries(records))
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the most recent N records (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	return cmd
}
