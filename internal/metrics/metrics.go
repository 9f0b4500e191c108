// Package metrics exposes Prometheus collectors for the scanner.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/skinscout/internal/logger"
)

const (
	namespace = "skinscout"
	subsystem = "scanner"
)

// Request outcomes
const (
	OutcomeOK      = "ok"
	OutcomeProxy   = "proxy"
	OutcomeTimeout = "timeout"
	OutcomeStatus  = "status"
	OutcomeError   = "error"
)

// Collector groups every scanner metric.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	alertsTotal     *prometheus.CounterVec
	passesTotal     *prometheus.CounterVec
	tasksInFlight   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	catalogUpserts  prometheus.Counter
}

// New creates a Collector registered on a fresh registry.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Outbound requests by client and outcome",
			},
			[]string{"client", "outcome"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Outbound request duration including gate waits",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"client"},
		),

		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alerts_total",
				Help:      "Alerts delivered by scan mode",
			},
			[]string{"mode"},
		),

		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "passes_total",
				Help:      "Completed passes over the target list by scan mode",
			},
			[]string{"mode"},
		),

		tasksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tasks_in_flight",
				Help:      "Per-target scan tasks currently running",
			},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_lookups_total",
				Help:      "Decoration price cache lookups by result",
			},
			[]string{"result"},
		),

		catalogUpserts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "catalog_upserts_total",
				Help:      "Decoration prices written to the catalog",
			},
		),
	}

	collectors := []prometheus.Collector{
		c.requestsTotal,
		c.requestDuration,
		c.alertsTotal,
		c.passesTotal,
		c.tasksInFlight,
		c.cacheLookups,
		c.catalogUpserts,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry returns the underlying registry, or nil for a nil Collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one outbound request.
func (c *Collector) ObserveRequest(client, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(client, outcome).Inc()
	c.requestDuration.WithLabelValues(client).Observe(d.Seconds())
}

// IncAlerts records one delivered alert.
func (c *Collector) IncAlerts(mode string) {
	if c == nil {
		return
	}
	c.alertsTotal.WithLabelValues(mode).Inc()
}

// IncPasses records one completed pass.
func (c *Collector) IncPasses(mode string) {
	if c == nil {
		return
	}
	c.passesTotal.WithLabelValues(mode).Inc()
}

// TaskStarted and TaskDone track running scan tasks.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksInFlight.Inc()
}

func (c *Collector) TaskDone() {
	if c == nil {
		return
	}
	c.tasksInFlight.Dec()
}

// ObserveCacheLookup records a cache lookup; result is "hit", "miss" or "error".
func (c *Collector) ObserveCacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// AddCatalogUpserts records n catalog writes.
func (c *Collector) AddCatalogUpserts(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.catalogUpserts.Add(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	if c == nil {
		return errors.New("metrics collector is not initialized")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
