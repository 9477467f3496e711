// Package bootstrap wires the ledger from configuration: logger, store,
// service, metrics and, for serve, the report server.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/artpar/costledger/adapters/clock"
	"github.com/artpar/costledger/adapters/idgen"
	"github.com/artpar/costledger/adapters/jsonl"
	"github.com/artpar/costledger/adapters/memory"
	"github.com/artpar/costledger/adapters/metrics"
	"github.com/artpar/costledger/adapters/sqlite"
	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/config"
	"github.com/artpar/costledger/ports"
)

// App is a wired ledger.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   ports.LedgerStore
	Service *app.LedgerService
	Metrics *metrics.Collector

	logCloser io.Closer
}

// Options customizes New. Zero values select the production adapters.
type Options struct {
	LogOutput io.Writer // default stderr
	Clock     ports.Clock
	IDs       ports.IDGenerator
}

// New wires an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger, logCloser := NewLogger(cfg.Logging, opts.LogOutput)

	store, err := OpenStore(ctx, cfg.Ledger, logger)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.UUID{}
	}

	logger.Debug().
		Str("driver", cfg.Ledger.Driver).
		Str("path", cfg.Ledger.Path).
		Msg("ledger opened")

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Service:   app.NewLedgerService(store, clk, ids, logger),
		Metrics:   metrics.New(),
		logCloser: logCloser,
	}, nil
}

// OpenStore opens the ledger backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.LedgerConfig, logger zerolog.Logger) (ports.LedgerStore, error) {
	switch cfg.Driver {
	case config.DriverJSONL, "":
		return jsonl.New(cfg.Path, logger), nil
	case config.DriverSQLite:
		return sqlite.OpenLedgerStore(ctx, cfg.Path, logger)
	case config.DriverMemory:
		return memory.NewLedgerStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// Limits returns the configured spend limits.
func (a *App) Limits() app.Limits {
	return LimitsFrom(a.Config)
}

// LimitsFrom converts configured limits.
func LimitsFrom(cfg *config.Config) app.Limits {
	return app.Limits{Daily: cfg.Limits.Daily, Monthly: cfg.Limits.Monthly}
}

// RefreshMetrics loads the current month and updates the ledger and budget
// gauges.
func (a *App) RefreshMetrics(ctx context.Context, limits app.Limits) error {
	f, err := a.Service.Window(app.WindowMonth)
	if err != nil {
		return err
	}
	summary, err := a.Service.Summary(ctx, f)
	if err != nil {
		return err
	}
	report, err := a.Service.Alert(ctx, limits)
	if err != nil {
		return err
	}

	a.Metrics.Observe(summary)
	a.Metrics.ObserveBudget(report.Results()...)
	return nil
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("ledger close error")
			firstErr = err
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
