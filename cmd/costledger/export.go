package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/domain/export"
)

func newExportCmd(o *globalOptions) *cobra.Command {
	var (
		ff     filterFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records",
		Long: fmt.Sprintf(`Write matching records to a file or stdout.

Formats: %s

Examples:
  costledger export --format csv --output usage.csv
  costledger export --format jsonl --output - --model gpt-4o`, strings.Join(export.List(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			if _, err := export.Lookup(format); err != nil {
				return fmt.Errorf("invalid --format: %w", err)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "-" {
				n, err := a.Service.Export(cmd.Context(), cmd.OutOrStdout(), format, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records\n", n)
				return nil
			}

			n, err := exportToFile(output, func(w io.Writer) (int, error) {
				return a.Service.Export(cmd.Context(), w, format, f)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", n, output)
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "output format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, or - for stdout (required)")
	cmd.MarkFlagRequired("output")

	return cmd
}

// exportToFile writes through a temp file in the target directory and
// renames it into place, so a failed export never leaves a partial file.
func exportToFile(path string, write func(io.Writer) (int, error)) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := write(tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}
