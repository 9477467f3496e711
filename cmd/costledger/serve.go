package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/costledger/bootstrap"
	"github.com/artpar/costledger/config"
)

func newServeCmd(o *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP report server",
		Long: `Serve ledger reports as JSON until interrupted.

Endpoints:
  GET /health
  GET /v1/records?start&end&model&limit
  GET /v1/summary?start&end&model&window
  GET /v1/trend?days
  GET /v1/alert?daily_limit&monthly_limit
  GET /metrics              (when metrics.enabled)

The config file is watched; limits and the log level reload on change
or SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			holder, err := config.NewHolder(o.resolvedConfigPath(), a.Logger, o.configOptions()...)
			if err != nil {
				return err
			}

			return bootstrap.NewServer(a, holder, addr).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.host and server.port)")

	return cmd
}
