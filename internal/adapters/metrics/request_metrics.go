package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetricsCollector times requests dispatched through the mediator
type RequestMetricsCollector struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

func NewRequestMetricsCollector() *RequestMetricsCollector {
	return &RequestMetricsCollector{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Mediator request duration distribution",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"request", "status"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Mediator requests by type and status",
			},
			[]string{"request", "status"},
		),
	}
}

// Register registers the request metrics with the Prometheus registry
func (c *RequestMetricsCollector) Register() error {
	return register(c.requestDuration, c.requestsTotal)
}

func (c *RequestMetricsCollector) RecordRequest(name string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.requestDuration.WithLabelValues(name, status).Observe(duration)
	c.requestsTotal.WithLabelValues(name, status).Inc()
}
