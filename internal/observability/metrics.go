package observability

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Pipeline names used for run summaries.
const (
	PipelineIngestion  = "ingestion"
	PipelineSlaMonitor = "sla_monitor"
)

// RunSummary is the outcome of one scheduled or triggered pipeline run.
type RunSummary struct {
	Pipeline   string         `json:"pipeline"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Tenants    int            `json:"tenants"`
	Counts     map[string]int `json:"counts"`
	Errors     []string       `json:"errors,omitempty"`
}

// Duration reports how long the run took.
func (r RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Metrics keeps the latest run of each pipeline for the ops API and exports
// request and pipeline counters on its own Prometheus registry.
type Metrics struct {
	mu       sync.Mutex
	lastRuns map[string]RunSummary

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runMessages     *prometheus.CounterVec
	runErrors       *prometheus.CounterVec
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	m := &Metrics{
		lastRuns: make(map[string]RunSummary),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supporthub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supporthub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supporthub",
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supporthub",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs.",
		}, []string{"pipeline"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supporthub",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"pipeline"}),
		runMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supporthub",
			Name:      "pipeline_items_total",
			Help:      "Items handled by pipeline runs, by outcome.",
		}, []string{"pipeline", "outcome"}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supporthub",
			Name:      "pipeline_tenant_errors_total",
			Help:      "Tenants whose batch aborted during a run.",
		}, []string{"pipeline"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.runs, m.runDuration, m.runMessages, m.runErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordRun keeps summary as the latest run of its pipeline.
func (m *Metrics) RecordRun(summary RunSummary) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastRuns[summary.Pipeline] = summary
	m.mu.Unlock()

	m.runs.WithLabelValues(summary.Pipeline).Inc()
	if d := summary.Duration(); d > 0 {
		m.runDuration.WithLabelValues(summary.Pipeline).Observe(d.Seconds())
	}
	for outcome, n := range summary.Counts {
		m.runMessages.WithLabelValues(summary.Pipeline, outcome).Add(float64(n))
	}
	if len(summary.Errors) > 0 {
		m.runErrors.WithLabelValues(summary.Pipeline).Add(float64(len(summary.Errors)))
	}
}

// LastRuns returns the latest summary of every pipeline that has run, by name.
func (m *Metrics) LastRuns() []RunSummary {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunSummary, 0, len(m.lastRuns))
	for _, run := range m.lastRuns {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out
}

// RunCount returns how many runs of pipeline were recorded.
func (m *Metrics) RunCount(pipeline string) int64 {
	if m == nil {
		return 0
	}
	return counterValue(m.runs.WithLabelValues(pipeline))
}

// RequestCount returns the request counter for one route, method and status.
func (m *Metrics) RequestCount(route, method string, status int) int64 {
	if m == nil {
		return 0
	}
	return counterValue(m.requests.WithLabelValues(route, method, strconv.Itoa(status)))
}

func counterValue(c prometheus.Counter) int64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return int64(out.GetCounter().GetValue())
}
