package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artpar/costledger/adapters/metrics"
	"github.com/artpar/costledger/domain/threshold"
	"github.com/artpar/costledger/domain/usage"
)

func scenarioSummary() usage.Summary {
	return usage.Summary{
		Calls: 2,
		Cost:  0.005,
		ByModel: map[string]usage.ModelSummary{
			"m1": {Calls: 1, PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20, Cost: 0.001},
			"m2": {Calls: 1, PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25, Cost: 0.004},
		},
	}
}

func TestObserve(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.Observe(scenarioSummary())

	if got := testutil.ToFloat64(m.Cost.WithLabelValues("m2")); got != 0.004 {
		t.Errorf("cost{m2} = %v, want 0.004", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("m2", "completion")); got != 5 {
		t.Errorf("tokens{m2,completion} = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.Calls.WithLabelValues("m1")); got != 1 {
		t.Errorf("calls{m1} = %v, want 1", got)
	}
}

func TestObserve_ReplacesSnapshot(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.Observe(scenarioSummary())
	m.Observe(usage.Summary{ByModel: map[string]usage.ModelSummary{
		"m3": {Calls: 4, Cost: 1},
	}})

	if got := testutil.CollectAndCount(m.Cost); got != 1 {
		t.Errorf("cost series = %d, want 1 after replacing snapshot", got)
	}
}

func TestObserveBudget(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveBudget(
		threshold.CheckWindow(threshold.WindowDaily, 0.003, usage.Summary{Cost: 0.005}),
		threshold.CheckWindow(threshold.WindowMonthly, 10, usage.Summary{Cost: 4}),
	)

	if got := testutil.ToFloat64(m.BudgetBreached.WithLabelValues("daily")); got != 1 {
		t.Errorf("breached{daily} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BudgetBreached.WithLabelValues("monthly")); got != 0 {
		t.Errorf("breached{monthly} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.BudgetRemaining.WithLabelValues("monthly")); got != 6 {
		t.Errorf("remaining{monthly} = %v, want 6", got)
	}
}

func TestRecordConfigReload(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	m.RecordConfigReload(true, at)
	m.RecordConfigReload(true, at)
	m.RecordConfigReload(false, at)

	if got := testutil.ToFloat64(m.ConfigReloads); got != 2 {
		t.Errorf("ConfigReloads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadErrors); got != 1 {
		t.Errorf("ConfigReloadErrors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigLastReload); got != 1700000000 {
		t.Errorf("ConfigLastReload = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.Observe(scenarioSummary())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `costledger_cost_usd{model="m1"} 0.001`) {
		t.Errorf("body missing cost series:\n%s", rec.Body.String())
	}
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.Observe(scenarioSummary())

	path := filepath.Join(t.TempDir(), "costledger.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `costledger_calls{model="m2"} 1`) {
		t.Errorf("textfile missing calls series:\n%s", data)
	}
}
