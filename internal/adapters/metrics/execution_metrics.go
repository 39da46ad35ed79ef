package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutionMetricsCollector tracks queued jobs and function runs
type ExecutionMetricsCollector struct {
	jobsEnqueued      *prometheus.CounterVec
	duplicateJobs     *prometheus.CounterVec
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
}

func NewExecutionMetricsCollector() *ExecutionMetricsCollector {
	return &ExecutionMetricsCollector{
		jobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_enqueued_total",
				Help:      "Jobs accepted by the queue backend by queue",
			},
			[]string{"queue"},
		),
		duplicateJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duplicate_jobs_total",
				Help:      "Redelivered jobs skipped because they already ran",
			},
			[]string{"queue"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "executions_total",
				Help:      "Function executions by trigger kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Function execution duration distribution",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"kind"},
		),
	}
}

func (c *ExecutionMetricsCollector) Register() error {
	return register(c.jobsEnqueued, c.duplicateJobs, c.executionsTotal, c.executionDuration)
}

func (c *ExecutionMetricsCollector) RecordJobEnqueued(queue string) {
	c.jobsEnqueued.WithLabelValues(queue).Inc()
}

func (c *ExecutionMetricsCollector) RecordDuplicateJob(queue string) {
	c.duplicateJobs.WithLabelValues(queue).Inc()
}

func (c *ExecutionMetricsCollector) RecordExecution(kind string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.executionsTotal.WithLabelValues(kind, outcome).Inc()
	c.executionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
