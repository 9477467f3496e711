package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

func newLogCmd(o *globalOptions) *cobra.Command {
	var (
		in       app.LogInput
		meta     []string
		metaJSON string
		at       string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record one API call",
		Long: `Append one usage record to the ledger.

Examples:
  costledger log --model gpt-4o --prompt-tokens 120 --completion-tokens 40 --cost 0.0011
  costledger log --model m1 --cost 0.2 --id gen-123 --meta project=alpha --meta-json '{"retries":2}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := buildMetadata(metaJSON, meta)
			if err != nil {
				return err
			}
			in.Metadata = md

			if at != "" {
				ts, err := usage.ParseTime(at, false)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				in.Timestamp = ts
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Service.Log(cmd.Context(), in)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), wire.FromRecord(r))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged %s: %s + %s tokens, %s\n",
				r.Model, formatNumber(r.PromptTokens), formatNumber(r.CompletionTokens), formatCost(r.Cost))
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Model, "model", "m", "", "model name (required)")
	cmd.Flags().Int64Var(&in.PromptTokens, "prompt-tokens", 0, "prompt (input) tokens")
	cmd.Flags().Int64Var(&in.CompletionTokens, "completion-tokens", 0, "completion (output) tokens")
	cmd.Flags().Float64Var(&in.Cost, "cost", 0, "cost in USD")
	cmd.Flags().StringVar(&in.ID, "id", "", "upstream generation or request id")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	cmd.Flags().StringVar(&metaJSON, "meta-json", "", "metadata as a JSON object")
	cmd.Flags().StringVar(&at, "at", "", "record timestamp (default now)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored record as JSON")
	cmd.MarkFlagRequired("model")

	return cmd
}

// buildMetadata merges --meta-json with --meta pairs; pairs win.
// Pair values are stored as JSON strings.
func buildMetadata(metaJSON string, pairs []string) (usage.Metadata, error) {
	md := usage.Metadata{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &md); err != nil {
			return nil, fmt.Errorf("invalid --meta-json: must be a JSON object: %w", err)
		}
		if md == nil {
			return nil, fmt.Errorf("invalid --meta-json %q: must be a JSON object", metaJSON)
		}
	}

	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", p)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("invalid --meta %q: %w", p, err)
		}
		md[key] = raw
	}

	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}
