package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// circuitStates lists every breaker position so the gauge never keeps a stale 1
var circuitStates = []string{"closed", "open", "half-open"}

// PlatformMetricsCollector watches the connector's calls to the platform API.
// Endpoints are labelled by their first path segment ("/gameserver",
// "/variables") so ids never reach a label.
type PlatformMetricsCollector struct {
	calls         *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	rateLimitWait prometheus.Histogram
	circuit       *prometheus.GaugeVec
}

func NewPlatformMetricsCollector() *PlatformMetricsCollector {
	return &PlatformMetricsCollector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "platform",
				Name:      "calls_total",
				Help:      "Platform API responses by endpoint, method and status class",
			},
			[]string{"endpoint", "method", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "platform",
				Name:      "call_duration_seconds",
				Help:      "Round trip of a single platform API attempt",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "platform",
				Name:      "retries_total",
				Help:      "Platform API attempts repeated after a transient failure",
			},
			[]string{"endpoint", "reason"},
		),
		rateLimitWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "platform",
				Name:      "rate_limit_wait_seconds",
				Help:      "Time a call spent queued behind the client-side rate limiter",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		circuit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "platform",
				Name:      "circuit_state",
				Help:      "1 for the current platform circuit breaker position",
			},
			[]string{"state"},
		),
	}
}

func (c *PlatformMetricsCollector) Register() error {
	if err := register(c.calls, c.latency, c.retries, c.rateLimitWait, c.circuit); err != nil {
		return err
	}
	c.SetCircuitState("closed")
	return nil
}

func (c *PlatformMetricsCollector) RecordCall(endpoint, method string, statusCode int, duration time.Duration) {
	c.calls.WithLabelValues(endpoint, method, StatusClass(statusCode)).Inc()
	c.latency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (c *PlatformMetricsCollector) RecordRetry(endpoint, reason string) {
	c.retries.WithLabelValues(endpoint, reason).Inc()
}

func (c *PlatformMetricsCollector) RecordRateLimitWait(d time.Duration) {
	c.rateLimitWait.Observe(d.Seconds())
}

// SetCircuitState moves the 1 to state and zeroes the others
func (c *PlatformMetricsCollector) SetCircuitState(state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.circuit.WithLabelValues(s).Set(v)
	}
}

// StatusClass folds an HTTP status into a bounded label. 429 keeps its own
// value because it drives the retry loop differently from other 4xx.
func StatusClass(code int) string {
	switch {
	case code == 429:
		return "429"
	case code >= 100 && code < 600:
		return fmt.Sprintf("%dxx", code/100)
	default:
		return "unknown"
	}
}
