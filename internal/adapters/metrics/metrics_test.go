package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/application/common"
)

type fixedCounts map[string]int

func (f fixedCounts) StatusCounts() map[string]int { return f }

func TestRecordFunctions_NoopWhenDisabled(t *testing.T) {
	Reset()

	assert.NotPanics(t, func() {
		RecordEventForwarded("chat-message")
		RecordExecution("command", true, time.Second)
		RecordPlatformCall("/gameserver", "GET", 200, time.Millisecond)
		SetPlatformCircuitState("open")
	})
	assert.False(t, IsEnabled())
}

func TestExecutionMetricsCollector_RecordsOutcomes(t *testing.T) {
	// Arrange
	InitRegistry()
	defer Reset()
	collector := NewExecutionMetricsCollector()
	require.NoError(t, collector.Register())
	SetGlobalExecutionCollector(collector)

	// Act
	RecordExecution("command", true, 10*time.Millisecond)
	RecordExecution("command", false, 20*time.Millisecond)
	RecordExecution("hook", false, time.Millisecond)
	RecordJobEnqueued("commands")

	// Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.executionsTotal.WithLabelValues("command", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.executionsTotal.WithLabelValues("command", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsEnqueued.WithLabelValues("commands")))
}

func TestPlatformMetricsCollector_LabelsStayBounded(t *testing.T) {
	// Arrange
	InitRegistry()
	defer Reset()
	collector := NewPlatformMetricsCollector()
	require.NoError(t, collector.Register())
	SetGlobalPlatformCollector(collector)

	// Act
	RecordPlatformCall("/gameserver", "POST", 200, 5*time.Millisecond)
	RecordPlatformCall("/gameserver", "POST", 201, 5*time.Millisecond)
	RecordPlatformCall("/gameserver", "POST", 429, time.Millisecond)
	RecordPlatformCall("/gameserver", "POST", 503, time.Millisecond)
	RecordPlatformRetry("/gameserver", "server_error")
	SetPlatformCircuitState("open")

	// Assert
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.calls.WithLabelValues("/gameserver", "POST", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.calls.WithLabelValues("/gameserver", "POST", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.calls.WithLabelValues("/gameserver", "POST", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.retries.WithLabelValues("/gameserver", "server_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.circuit.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.circuit.WithLabelValues("closed")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "4xx", StatusClass(404))
	assert.Equal(t, "429", StatusClass(429))
	assert.Equal(t, "unknown", StatusClass(0))
}

func TestConnectorMetricsCollector_PollsStatuses(t *testing.T) {
	InitRegistry()
	defer Reset()
	collector := NewConnectorMetricsCollector(fixedCounts{"CONNECTED": 2, "FAILED": 1})
	require.NoError(t, collector.Register())

	collector.Start(context.Background(), time.Hour)
	collector.Stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.connections.WithLabelValues("CONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.connections.WithLabelValues("FAILED")))
}

type sampleRequest struct{}

func TestPrometheusMiddleware_RecordsRequestName(t *testing.T) {
	InitRegistry()
	defer Reset()
	collector := NewRequestMetricsCollector()
	require.NoError(t, collector.Register())
	mw := PrometheusMiddleware(collector)

	_, err := mw(context.Background(), &sampleRequest{}, func(ctx context.Context, r common.Request) (common.Response, error) {
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("sampleRequest", "success")))
}
