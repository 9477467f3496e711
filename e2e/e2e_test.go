// Package e2e provides end-to-end tests for the complete ledger flow.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/costledger/adapters/clock"
	"github.com/artpar/costledger/adapters/idgen"
	"github.com/artpar/costledger/adapters/jsonl"
	"github.com/artpar/costledger/app"
	"github.com/artpar/costledger/bootstrap"
	"github.com/artpar/costledger/config"
	"github.com/artpar/costledger/domain/usage"
)

var baseTime = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

// completion stands in for a metered API response.
type completion struct {
	Model  string
	In     int64
	Out    int64
	Cost   float64
	GenID  string
	Answer string
}

func completionUsage(c completion) (app.Usage, bool) {
	return app.Usage{
		Model:            c.Model,
		PromptTokens:     c.In,
		CompletionTokens: c.Out,
		Cost:             c.Cost,
		ID:               c.GenID,
	}, c.Model != ""
}

// TestE2E_FullLedgerFlow tests the complete flow:
// 1. Load config from a file and wire the app
// 2. Record calls through Track and a Session
// 3. Serve reports over HTTP and check them
// 4. Purge, then export what remains
func TestE2E_FullLedgerFlow(t *testing.T) {
	for _, driver := range []string{config.DriverJSONL, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			runFullFlow(t, driver)
		})
	}
}

func runFullFlow(t *testing.T, driver string) {
	ctx := context.Background()

	// 1. Config and app
	a, holder := setupTestApp(t, driver, "limits:\n  daily: 0.003\nmetrics:\n  enabled: true\n")
	svc := a.Service

	// 2. Record calls
	call := func(c completion) func(context.Context) (completion, error) {
		return func(context.Context) (completion, error) { return c, nil }
	}

	got, err := app.Track(ctx, svc, call(completion{Model: "m1", In: 10, Out: 5, Cost: 0.002, GenID: "gen-1", Answer: "hi"}), completionUsage)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if got.Answer != "hi" {
		t.Errorf("Track should return the call result, got %+v", got)
	}

	report, err := svc.WithSession(func(s *app.Session) error {
		_, err := app.Track(ctx, s, call(completion{Model: "m2", In: 20, Out: 10, Cost: 0.003}), completionUsage)
		return err
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if report.Summary.Calls != 1 || report.Summary.Cost != 0.003 {
		t.Errorf("session report = %+v", report.Summary)
	}

	// A failed call records nothing.
	_, err = app.Track(ctx, svc, func(context.Context) (completion, error) {
		return completion{}, errors.New("upstream timeout")
	}, completionUsage)
	if err == nil {
		t.Fatal("Track should return the call error")
	}

	// An old record for the purge step.
	if _, err := svc.Log(ctx, app.LogInput{Model: "m0", Cost: 1, Timestamp: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	// 3. Reports over HTTP
	base := startServer(t, a, holder)

	var summary struct {
		Summary struct {
			Calls  int64   `json:"total_calls"`
			Tokens int64   `json:"total_tokens"`
			Cost   float64 `json:"total_cost"`
		} `json:"summary"`
	}
	getJSON(t, base+"/v1/summary?window=today", &summary)
	if summary.Summary.Calls != 2 || summary.Summary.Tokens != 45 {
		t.Errorf("today summary = %+v", summary.Summary)
	}

	var records struct {
		Records []struct {
			Model    string                     `json:"model"`
			ID       string                     `json:"id"`
			Metadata map[string]json.RawMessage `json:"metadata"`
		} `json:"records"`
	}
	getJSON(t, base+"/v1/records?start=2025-03-01", &records)
	if len(records.Records) != 2 {
		t.Fatalf("records = %+v", records.Records)
	}
	if records.Records[0].ID != "gen-1" {
		t.Errorf("records[0].id = %q, want gen-1", records.Records[0].ID)
	}
	if string(records.Records[1].Metadata[app.SessionMetadataKey]) != fmt.Sprintf("%q", report.ID) {
		t.Errorf("session tag = %s, want %q", records.Records[1].Metadata[app.SessionMetadataKey], report.ID)
	}

	var alert struct {
		Breached bool `json:"breached"`
		Daily    struct {
			Overage float64 `json:"overage"`
		} `json:"daily"`
	}
	getJSON(t, base+"/v1/alert", &alert)
	if !alert.Breached || alert.Daily.Overage < 0.0019 || alert.Daily.Overage > 0.0021 {
		t.Errorf("alert = %+v, want daily breach over by 0.002", alert)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `costledger_calls{model="m2"} 1`) {
		t.Errorf("/metrics:\n%s", body)
	}

	// 4. Purge and export
	removed, err := svc.Purge(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || removed != 1 {
		t.Fatalf("Purge = %d, %v; want 1", removed, err)
	}

	var csv strings.Builder
	n, err := svc.Export(ctx, &csv, "csv", usage.Filter{})
	if err != nil || n != 2 {
		t.Fatalf("Export = %d, %v; want 2", n, err)
	}
	if strings.Contains(csv.String(), "m0") {
		t.Errorf("purged record exported:\n%s", csv.String())
	}
}

// TestE2E_ConcurrentWritersShareLedger checks that independent store
// instances appending to one file never interleave lines.
func TestE2E_ConcurrentWritersShareLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	ctx := context.Background()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			store := jsonl.New(path, zerolog.Nop())
			defer store.Close()
			svc := app.NewLedgerService(store, clock.NewTicking(baseTime, time.Millisecond), idgen.NewSequential("s-"), zerolog.Nop())
			for i := 0; i < perWriter; i++ {
				if _, err := svc.Log(ctx, app.LogInput{
					Model: fmt.Sprintf("writer-%d", w), PromptTokens: 1, Cost: 0.125,
				}); err != nil {
					t.Errorf("Log: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	records, skipped, err := jsonl.New(path, zerolog.Nop()).Scan(ctx, usage.Filter{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped %d corrupt lines", skipped)
	}
	s := usage.Summarize(records)
	if s.Calls != writers*perWriter || s.Cost != writers*perWriter*0.125 {
		t.Errorf("summary = %d calls, $%v", s.Calls, s.Cost)
	}
	if len(s.ByModel) != writers {
		t.Errorf("models = %d, want %d", len(s.ByModel), writers)
	}
}

// TestE2E_HealthEndpoints tests the liveness endpoint and an unknown path.
func TestE2E_HealthEndpoints(t *testing.T) {
	a, holder := setupTestApp(t, config.DriverMemory, "")
	base := startServer(t, a, holder)

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/v1/unknown")
	if err != nil {
		t.Fatalf("GET /v1/unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/v1/unknown status = %d, want 404", resp.StatusCode)
	}
}

// Helper functions

func setupTestApp(t *testing.T, driver, extra string) (*bootstrap.App, *config.Holder) {
	t.Helper()
	dir := t.TempDir()

	ledger := filepath.Join(dir, "usage.jsonl")
	if driver == config.DriverSQLite {
		ledger = filepath.Join(dir, "usage.db")
	}
	content := fmt.Sprintf("ledger:\n  driver: %s\n  path: %s\n%s", driver, ledger, extra)

	cfgPath := filepath.Join(dir, "costledger.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder, err := config.NewHolder(cfgPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a, err := bootstrap.New(context.Background(), holder.Get(), bootstrap.Options{
		LogOutput: io.Discard,
		Clock:     clock.NewTicking(baseTime, time.Second),
		IDs:       idgen.NewSequential("sess-"),
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return a, holder
}

func startServer(t *testing.T, a *bootstrap.App, holder *config.Holder) string {
	t.Helper()

	srv := bootstrap.NewServer(a, holder, "127.0.0.1:0")
	addr, _, err := srv.Start()
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown() })

	base := "http://" + addr.String()
	waitForServer(t, base)
	return base
}

func waitForServer(t *testing.T, base string) {
	t.Helper()
	client := &http.Client{Timeout: 100 * time.Millisecond}

	for i := 0; i < 50; i++ {
		resp, err := client.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become ready", base)
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
