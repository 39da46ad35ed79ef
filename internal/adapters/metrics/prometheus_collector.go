package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace for all metrics
	namespace = "takaro"
	// Subsystem for connector metrics
	subsystem = "connector"
)

var (
	// Registry is the global Prometheus registry for all metrics
	Registry *prometheus.Registry

	// globalConnectorCollector is set by SetGlobalConnectorCollector when metrics are enabled
	globalConnectorCollector ConnectorMetricsRecorder

	// globalExecutionCollector is set by SetGlobalExecutionCollector when metrics are enabled
	globalExecutionCollector ExecutionMetricsRecorder

	globalPlatformCollector *PlatformMetricsCollector
)

// ConnectorMetricsRecorder records game connection events
type ConnectorMetricsRecorder interface {
	RecordEventForwarded(eventType string)
	RecordEmitterError(gameType string)
}

// ExecutionMetricsRecorder records queue and function execution events
type ExecutionMetricsRecorder interface {
	RecordJobEnqueued(queue string)
	RecordExecution(kind string, success bool, duration time.Duration)
	RecordDuplicateJob(queue string)
}

// InitRegistry initializes the Prometheus registry
// Should be called once at application startup if metrics are enabled
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

// GetRegistry returns the global Prometheus registry
// Returns nil if metrics are not initialized
func GetRegistry() *prometheus.Registry {
	return Registry
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Registry != nil
}

// Reset drops the registry and every global collector
func Reset() {
	Registry = nil
	globalConnectorCollector = nil
	globalExecutionCollector = nil
	globalPlatformCollector = nil
}

func SetGlobalConnectorCollector(collector ConnectorMetricsRecorder) {
	globalConnectorCollector = collector
}

func SetGlobalExecutionCollector(collector ExecutionMetricsRecorder) {
	globalExecutionCollector = collector
}

func SetGlobalPlatformCollector(collector *PlatformMetricsCollector) {
	globalPlatformCollector = collector
}

// RecordEventForwarded counts a game event relayed onto the events queue
func RecordEventForwarded(eventType string) {
	if globalConnectorCollector != nil {
		globalConnectorCollector.RecordEventForwarded(eventType)
	}
}

// RecordEmitterError counts an error event raised by an emitter
func RecordEmitterError(gameType string) {
	if globalConnectorCollector != nil {
		globalConnectorCollector.RecordEmitterError(gameType)
	}
}

func RecordJobEnqueued(queue string) {
	if globalExecutionCollector != nil {
		globalExecutionCollector.RecordJobEnqueued(queue)
	}
}

// RecordExecution records the outcome and duration of one function run
func RecordExecution(kind string, success bool, duration time.Duration) {
	if globalExecutionCollector != nil {
		globalExecutionCollector.RecordExecution(kind, success, duration)
	}
}

func RecordDuplicateJob(queue string) {
	if globalExecutionCollector != nil {
		globalExecutionCollector.RecordDuplicateJob(queue)
	}
}

// RecordPlatformCall records one answered platform API attempt
func RecordPlatformCall(endpoint, method string, statusCode int, duration time.Duration) {
	if globalPlatformCollector != nil {
		globalPlatformCollector.RecordCall(endpoint, method, statusCode, duration)
	}
}

func RecordPlatformRetry(endpoint, reason string) {
	if globalPlatformCollector != nil {
		globalPlatformCollector.RecordRetry(endpoint, reason)
	}
}

func RecordRateLimitWait(duration time.Duration) {
	if globalPlatformCollector != nil {
		globalPlatformCollector.RecordRateLimitWait(duration)
	}
}

func SetPlatformCircuitState(state string) {
	if globalPlatformCollector != nil {
		globalPlatformCollector.SetCircuitState(state)
	}
}

func register(collectors ...prometheus.Collector) error {
	if Registry == nil {
		return nil // Metrics not enabled
	}
	for _, c := range collectors {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
