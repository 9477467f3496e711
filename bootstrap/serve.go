package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "github.com/artpar/costledger/adapters/http"
	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/config"
)

// Server runs the read-only report server over an App. Limits and the log
// level follow the config holder; everything else is fixed at startup.
type Server struct {
	App        *App
	Holder     *config.Holder
	HTTPServer *http.Server
}

// NewServer builds the HTTP server for a. The listen address is taken from
// the holder's config unless addr is set.
func NewServer(a *App, holder *config.Holder, addr string) *Server {
	cfg := holder.Get()
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	s := &Server{App: a, Holder: holder}

	limits := func() app.Limits { return LimitsFrom(s.Holder.Get()) }
	handler := apihttp.NewReportHandler(a.Service, limits, a.Logger)

	routerCfg := apihttp.RouterConfig{RequestTimeout: cfg.Server.WriteTimeout}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = s.metricsHandler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	s.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      apihttp.NewRouter(handler, a.Logger, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder.OnChange(func(c *config.Config) {
		SetLogLevel(c.Logging.Level)
	})
	holder.OnReload(func(err error) {
		a.Metrics.RecordConfigReload(err == nil, time.Now())
	})

	return s
}

// metricsHandler refreshes the ledger gauges before every scrape.
func (s *Server) metricsHandler() http.Handler {
	inner := s.App.Metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.App.RefreshMetrics(r.Context(), LimitsFrom(s.Holder.Get())); err != nil {
			s.App.Logger.Error().Err(err).Msg("refresh metrics")
			http.Error(w, "failed to read ledger", http.StatusInternalServerError)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound, with the bound address.
func (s *Server) Start() (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", s.HTTPServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.App.Logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("starting report server")
		if err := s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return ln.Addr(), errCh, nil
}

// Run starts the server, watches the config file and SIGHUP, and blocks
// until ctx is done, SIGINT/SIGTERM arrives or the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s.Holder.Path() != "" {
		if err := s.Holder.WatchFile(); err != nil {
			s.App.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
	}
	s.Holder.WatchSignals()

	_, errCh, err := s.Start()
	if err != nil {
		return err
	}

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			s.Shutdown()
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.App.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		s.App.Logger.Info().Msg("shutting down")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and the config watchers.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Holder.Stop()

	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.App.Logger.Error().Err(err).Msg("http server shutdown error")
		return err
	}

	s.App.Logger.Info().Msg("shutdown complete")
	return nil
}
