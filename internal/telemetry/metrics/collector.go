// Package metrics exposes Prometheus metrics for stale-key checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

const namespace = "iamkeycheck"

// Compile-time interface satisfaction check.
var _ driven.CheckRecorder = (*Collector)(nil)

// Collector owns a private registry with the check metrics plus the standard
// Go and process collectors.
type Collector struct {
	registry *prometheus.Registry

	checks       prometheus.Counter
	records      prometheus.Counter
	failures     prometheus.Counter
	staleKeys    prometheus.Counter
	lastStale    prometheus.Gauge
	checkSeconds prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics. If registry is
// nil a new one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Completed stale key checks.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_checked_total",
			Help:      "Credential records processed across all checks.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Credential records whose identity lookups failed.",
		}),
		staleKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_keys_found_total",
			Help:      "Stale access keys reported across all checks.",
		}),
		lastStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_check_stale_keys",
			Help:      "Stale access keys reported by the most recent check.",
		}),
		checkSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Wall time of a stale key check.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	registry.MustRegister(c.checks, c.records, c.failures, c.staleKeys, c.lastStale, c.checkSeconds)

	return c
}

// RecordCheck records the summary of one completed check.
func (c *Collector) RecordCheck(records, failures, stale int, duration time.Duration) {
	c.checks.Inc()
	c.records.Add(float64(records))
	c.failures.Add(float64(failures))
	c.staleKeys.Add(float64(stale))
	c.lastStale.Set(float64(stale))
	c.checkSeconds.Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
