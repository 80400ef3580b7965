// Package metrics exports Prometheus metrics for batch jobs, gateway
// callbacks and HTTP requests.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/propledger/backend/internal/domain/job"
)

// Metrics holds the registered collectors
type Metrics struct {
	registry   prometheus.Gatherer
	registerer prometheus.Registerer

	// Batch jobs
	JobRuns     *prometheus.CounterVec
	JobItems    *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Gateway
	Callbacks *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New registers every collector on reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "propledger"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry:   reg,
		registerer: reg,
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Batch job runs by job and result",
			},
			[]string{"job", "result"}, // result: success, failure
		),
		JobItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "items_total",
				Help:      "Batch job candidates by job and outcome",
			},
			[]string{"job", "outcome"}, // outcome: created, updated, skipped, failed
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Batch job wall time",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"job"},
		),
		Callbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mpesa",
				Name:      "callbacks_total",
				Help:      "Gateway callbacks by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// ObserveRun records a finished batch job
func (m *Metrics) ObserveRun(run *job.Run) {
	name := string(run.Job)
	result := "success"
	if !run.Success {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(name, result).Inc()
	m.JobItems.WithLabelValues(name, "created").Add(float64(run.Created))
	m.JobItems.WithLabelValues(name, "updated").Add(float64(run.Updated))
	m.JobItems.WithLabelValues(name, "failed").Add(float64(run.Errors))
	skipped := 0
	for _, n := range run.Skipped {
		skipped += n
	}
	m.JobItems.WithLabelValues(name, "skipped").Add(float64(skipped))
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		m.JobDuration.WithLabelValues(name).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

// ObserveCallback counts a processed gateway callback
func (m *Metrics) ObserveCallback(outcome string) {
	m.Callbacks.WithLabelValues(outcome).Inc()
}

// GinMiddleware records request counts and latency by route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// RegisterDBStats exports the connection pool statistics of db
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) error {
	return m.registerer.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ job.Observer = (*Metrics)(nil)
