package bootstrap_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/artpar/costledger/adapters/clock"
	"github.com/artpar/costledger/adapters/idgen"
	"github.com/artpar/costledger/bootstrap"
	"github.com/artpar/costledger/config"
)

const serveConfig = `
ledger:
  driver: memory
limits:
  daily: 0.003
metrics:
  enabled: true
`

func startServer(t *testing.T, content string) (*bootstrap.Server, string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "costledger.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	a, err := bootstrap.New(context.Background(), holder.Get(), bootstrap.Options{
		LogOutput: io.Discard,
		Clock:     clock.NewFake(baseTime),
		IDs:       idgen.NewSequential("s-"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	srv := bootstrap.NewServer(a, holder, "127.0.0.1:0")
	addr, _, err := srv.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown() })

	return srv, "http://" + addr.String(), path
}

func TestServer_Reports(t *testing.T) {
	srv, base, _ := startServer(t, serveConfig)
	seed(t, srv.App.Store, "m1", 0.002)
	seed(t, srv.App.Store, "m2", 0.003)

	if status, _ := httpGet(t, base+"/health"); status != http.StatusOK {
		t.Errorf("/health status = %d", status)
	}

	status, body := httpGet(t, base+"/v1/summary?window=today")
	if status != http.StatusOK || !strings.Contains(body, `"total_calls":2`) {
		t.Errorf("/v1/summary = %d %s", status, body)
	}

	// Limits default to the configured daily limit.
	status, body = httpGet(t, base+"/v1/alert")
	if status != http.StatusOK || !strings.Contains(body, `"breached":true`) {
		t.Errorf("/v1/alert = %d %s", status, body)
	}
}

func TestServer_MetricsScrapeRefreshesGauges(t *testing.T) {
	srv, base, _ := startServer(t, serveConfig)
	seed(t, srv.App.Store, "m1", 0.25)

	status, body := httpGet(t, base+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("/metrics status = %d", status)
	}
	if !strings.Contains(body, `costledger_cost_usd{model="m1"} 0.25`) {
		t.Errorf("/metrics missing cost gauge:\n%s", body)
	}
	if !strings.Contains(body, `costledger_budget_breached{window="daily"} 1`) {
		t.Errorf("/metrics missing budget gauge:\n%s", body)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	_, base, _ := startServer(t, "ledger:\n  driver: memory\n")

	if status, _ := httpGet(t, base+"/metrics"); status != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 when disabled", status)
	}
}

func TestServer_ReloadAppliesLimits(t *testing.T) {
	srv, base, path := startServer(t, serveConfig)
	seed(t, srv.App.Store, "m1", 0.005)

	if _, body := httpGet(t, base+"/v1/alert"); !strings.Contains(body, `"breached":true`) {
		t.Fatalf("expected breach before reload: %s", body)
	}

	updated := strings.Replace(serveConfig, "daily: 0.003", "daily: 1", 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := srv.Holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, body := httpGet(t, base+"/v1/alert"); !strings.Contains(body, `"breached":false`) {
		t.Errorf("expected no breach after reload: %s", body)
	}
	if got := testutil.ToFloat64(srv.App.Metrics.ConfigReloads); got != 1 {
		t.Errorf("config reloads = %v, want 1", got)
	}

	// A broken file is counted and the previous limits stay.
	if err := os.WriteFile(path, []byte("limits:\n  daily: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := srv.Holder.Reload(); err == nil {
		t.Fatal("Reload should fail")
	}
	if got := testutil.ToFloat64(srv.App.Metrics.ConfigReloadErrors); got != 1 {
		t.Errorf("config reload errors = %v, want 1", got)
	}
	if _, body := httpGet(t, base+"/v1/alert"); !strings.Contains(body, `"daily_limit":1`) {
		t.Errorf("limits should survive a failed reload: %s", body)
	}
}

func TestServer_RunStopsOnContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costledger.yaml")
	if err := os.WriteFile(path, []byte(serveConfig), 0644); err != nil {
		t.Fatal(err)
	}
	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	a, err := bootstrap.New(context.Background(), holder.Get(), bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	srv := bootstrap.NewServer(a, holder, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Run(ctx); err != nil {
		t.Errorf("Run = %v, want clean shutdown", err)
	}
}
