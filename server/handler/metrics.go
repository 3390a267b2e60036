package handler

// Best-effort observability counters. Metrics never affect the inference
// path: updates are lock-cheap and failures are impossible by construction.

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry
	requests prometheus.Counter
	errors   prometheus.Counter
	latency  prometheus.Histogram

	lock           sync.Mutex
	totalRequests  int64
	totalErrors    int64
	totalLatencyMS float64
}

// Snapshot is a point-in-time read of the counters, served by the status API.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

func NewMetrics(modelID string) *Metrics {
	labels := prometheus.Labels{"model_id": modelID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "modelhost_requests_total",
			Help:        "Inference requests processed",
			ConstLabels: labels,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "modelhost_errors_total",
			Help:        "Inference requests that produced an error response",
			ConstLabels: labels,
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "modelhost_request_latency_ms",
			Help:        "End-to-end request latency in milliseconds",
			ConstLabels: labels,
			Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
	m.registry.MustRegister(m.requests, m.errors, m.latency)
	return m
}

func (m *Metrics) Observe(latencyMS float64, isError bool) {
	m.requests.Inc()
	if isError {
		m.errors.Inc()
	}
	m.latency.Observe(latencyMS)

	m.lock.Lock()
	m.totalRequests++
	if isError {
		m.totalErrors++
	}
	m.totalLatencyMS += latencyMS
	m.lock.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	s := Snapshot{
		TotalRequests: m.totalRequests,
		TotalErrors:   m.totalErrors,
	}
	if m.totalRequests > 0 {
		s.AvgLatencyMS = m.totalLatencyMS / float64(m.totalRequests)
		s.ErrorRate = float64(m.totalErrors) / float64(m.totalRequests)
	}
	return s
}

// Registry exposes the Prometheus registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
