package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/artpar/costledger/bootstrap"
	"github.com/artpar/costledger/config"
	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	ledgerPath string
	driver     string
	logLevel   string

	// Injected in tests; production uses the real clock and UUIDs.
	clock ports.Clock
	ids   ports.IDGenerator
}

func newRootCmd(o *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "costledger",
		Short: "Local cost and usage ledger for metered API calls",
		Long: `costledger records the token usage and cost of metered API calls in a
local append-only ledger and reports on it.

Quick start:
  costledger log --model gpt-4o --prompt-tokens 120 --completion-tokens 40 --cost 0.0011
  costledger summary --today
  costledger alert --daily-limit 5

Reporting:
  costledger query     # List records
  costledger summary   # Totals and per-model breakdown
  costledger trend     # Daily spend chart
  costledger export    # Export as csv, json, jsonl or yaml
  costledger serve     # Read-only HTTP report server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "config file path (default ~/.costledger/config.yaml)")
	flags.StringVar(&o.ledgerPath, "ledger", "", "ledger path (overrides config and COSTLEDGER_LEDGER_PATH)")
	flags.StringVar(&o.driver, "driver", "", "ledger driver: jsonl, sqlite or memory")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newLogCmd(o),
		newQueryCmd(o),
		newSummaryCmd(o),
		newTrendCmd(o),
		newExportCmd(o),
		newPurgeCmd(o),
		newAlertCmd(o),
		newServeCmd(o),
		newMetricsCmd(o),
		newVersionCmd(),
	)
	return root
}

// resolvedConfigPath returns --config, or the default location under the
// home directory. The default may not exist; that is not an error.
func (o *globalOptions) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, config.DefaultDir, "config.yaml")
}

func (o *globalOptions) configOptions() []config.Option {
	return []config.Option{
		config.WithLedgerPath(o.ledgerPath),
		config.WithDriver(o.driver),
		config.WithLogLevel(o.logLevel),
	}
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.resolvedConfigPath(), o.configOptions()...)
}

// openApp loads configuration and wires the ledger. Callers must Close it.
func (o *globalOptions) openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
		LogOutput: cmd.ErrOrStderr(),
		Clock:     o.clock,
		IDs:       o.ids,
	})
}

// parseFilter builds a filter from the common --start/--end/--model flags,
// naming the offending flag on error.
func parseFilter(start, end, model string) (usage.Filter, error) {
	s, err := usage.ParseTime(start, false)
	if err != nil {
		return usage.Filter{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := usage.ParseTime(end, true)
	if err != nil {
		return usage.Filter{}, fmt.Errorf("invalid --end: %w", err)
	}
	f := usage.Filter{Model: model, Start: s, End: e}
	if err := f.Validate(); err != nil {
		return usage.Filter{}, err
	}
	return f, nil
}

// filterFlags registers --start, --end and --model on cmd.
type filterFlags struct {
	start string
	end   string
	model string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "start date (YYYY-MM-DD or RFC 3339), inclusive")
	cmd.Flags().StringVar(&f.end, "end", "", "end date (YYYY-MM-DD or RFC 3339), inclusive")
	cmd.Flags().StringVar(&f.model, "model", "", "only this model")
}

func (f *filterFlags) filter() (usage.Filter, error) {
	return parseFilter(f.start, f.end, f.model)
}
