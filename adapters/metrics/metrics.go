// Package metrics exposes ledger state as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/costledger/domain/threshold"
	"github.com/artpar/costledger/domain/usage"
)

const namespace = "costledger"

// Collector holds all Prometheus metrics for the ledger.
// Ledger gauges describe a snapshot; each Observe call replaces the
// previous one so models that drop out of the window disappear.
type Collector struct {
	registry *prometheus.Registry
	mu       sync.Mutex

	// Ledger snapshot
	Cost   *prometheus.GaugeVec
	Tokens *prometheus.GaugeVec
	Calls  *prometheus.GaugeVec

	// Budget
	BudgetRemaining *prometheus.GaugeVec
	BudgetBreached  *prometheus.GaugeVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector on a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registered on reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		Cost: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cost_usd",
				Help:      "Spend in USD over the observed window, by model",
			},
			[]string{"model"},
		),
		Tokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tokens",
				Help:      "Tokens over the observed window, by model and kind",
			},
			[]string{"model", "kind"},
		),
		Calls: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls",
				Help:      "Metered calls over the observed window, by model",
			},
			[]string{"model"},
		),

		BudgetRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_remaining_usd",
				Help:      "Budget left before the limit is reached (negative when over)",
			},
			[]string{"window"},
		),
		BudgetBreached: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_breached",
				Help:      "1 when spend has reached the limit for the window",
			},
			[]string{"window"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of the last config reload",
			},
		),
	}
}

// Observe replaces the ledger gauges with the contents of s.
func (c *Collector) Observe(s usage.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Cost.Reset()
	c.Tokens.Reset()
	c.Calls.Reset()

	for model, m := range s.ByModel {
		c.Cost.WithLabelValues(model).Set(m.Cost)
		c.Calls.WithLabelValues(model).Set(float64(m.Calls))
		c.Tokens.WithLabelValues(model, "prompt").Set(float64(m.PromptTokens))
		c.Tokens.WithLabelValues(model, "completion").Set(float64(m.CompletionTokens))
	}
}

// ObserveBudget replaces the budget gauges with the given check results.
// Windows without a result are dropped.
func (c *Collector) ObserveBudget(results ...threshold.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.BudgetRemaining.Reset()
	c.BudgetBreached.Reset()

	for _, r := range results {
		window := string(r.Window)
		c.BudgetRemaining.WithLabelValues(window).Set(r.Limit - r.Current)
		breached := 0.0
		if r.Breached {
			breached = 1
		}
		c.BudgetBreached.WithLabelValues(window).Set(breached)
	}
}

// RecordConfigReload counts a reload attempt.
func (c *Collector) RecordConfigReload(success bool, at time.Time) {
	if !success {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for node_exporter's textfile collector. The write is atomic.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Gatherer exposes the underlying registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}
