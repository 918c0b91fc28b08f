// Package metrics exposes Prometheus metrics for demonstration runs, HTTP
// requests and worker pool occupancy.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
)

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec
	phaseWorkers    *prometheus.GaugeVec
	phasesTotal     *prometheus.CounterVec

	poolWorkers *prometheus.GaugeVec
	poolQueued  *prometheus.GaugeVec
	poolJobs    *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncdemo_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncdemo_http_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
			},
			[]string{"route"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncdemo_phase_duration_seconds",
				Help:    "Duration of comparison phases",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"phase"},
		),
		phaseWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncdemo_phase_distinct_workers",
				Help: "Distinct workers used by the most recent phase",
			},
			[]string{"phase"},
		),
		phasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncdemo_phases_total",
				Help: "Total number of finished comparison phases",
			},
			[]string{"phase"},
		),
		poolWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncdemo_pool_workers",
				Help: "Workers per pool by state (live, busy, idle, max, available)",
			},
			[]string{"pool", "state"},
		),
		poolQueued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncdemo_pool_queue_length",
				Help: "Jobs waiting in the pool queue",
			},
			[]string{"pool"},
		),
		poolJobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncdemo_pool_jobs",
				Help: "Cumulative job counts per pool (submitted, completed, panicked)",
			},
			[]string{"pool", "kind"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.phaseDuration,
		m.phaseWorkers,
		m.phasesTotal,
		m.poolWorkers,
		m.poolQueued,
		m.poolJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished API request
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObservePhase records a finished comparison phase
func (m *Metrics) ObservePhase(phase demo.Phase, elapsed time.Duration, distinctWorkers int) {
	m.phasesTotal.WithLabelValues(string(phase)).Inc()
	m.phaseDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
	m.phaseWorkers.WithLabelValues(string(phase)).Set(float64(distinctWorkers))
}

// ObservePool copies a pool's statistics into the gauges
func (m *Metrics) ObservePool(stats workers.Stats) {
	m.poolWorkers.WithLabelValues(stats.Name, "live").Set(float64(stats.Live))
	m.poolWorkers.WithLabelValues(stats.Name, "busy").Set(float64(stats.Busy))
	m.poolWorkers.WithLabelValues(stats.Name, "idle").Set(float64(stats.Idle))
	m.poolWorkers.WithLabelValues(stats.Name, "max").Set(float64(stats.Max))
	m.poolWorkers.WithLabelValues(stats.Name, "available").Set(float64(stats.Available))
	m.poolQueued.WithLabelValues(stats.Name).Set(float64(stats.Queued))
	m.poolJobs.WithLabelValues(stats.Name, "submitted").Set(float64(stats.Submitted))
	m.poolJobs.WithLabelValues(stats.Name, "completed").Set(float64(stats.Completed))
	m.poolJobs.WithLabelValues(stats.Name, "panicked").Set(float64(stats.Panicked))
}

// Collect samples both scheduler pools every interval until ctx ends
func (m *Metrics) Collect(ctx context.Context, sched *workers.Scheduler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.ObservePool(sched.General().Stats())
		m.ObservePool(sched.Completion().Stats())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
