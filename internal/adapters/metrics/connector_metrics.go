package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusCounter reports how many connections are in each lifecycle status
type StatusCounter interface {
	StatusCounts() map[string]int
}

// ConnectorMetricsCollector tracks game server connections and the events
// they forward
type ConnectorMetricsCollector struct {
	connections     *prometheus.GaugeVec
	eventsForwarded *prometheus.CounterVec
	emitterErrors   *prometheus.CounterVec

	source     StatusCounter
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

func NewConnectorMetricsCollector(source StatusCounter) *ConnectorMetricsCollector {
	return &ConnectorMetricsCollector{
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "connections",
				Help:      "Game server connections by lifecycle status",
			},
			[]string{"status"},
		),
		eventsForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_forwarded_total",
				Help:      "Game events relayed onto the events queue by type",
			},
			[]string{"type"},
		),
		emitterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emitter_errors_total",
				Help:      "Error events raised by game emitters",
			},
			[]string{"game_type"},
		),
		source: source,
	}
}

func (c *ConnectorMetricsCollector) Register() error {
	return register(c.connections, c.eventsForwarded, c.emitterErrors)
}

// Start polls the connection snapshot every interval until Stop
func (c *ConnectorMetricsCollector) Start(ctx context.Context, interval time.Duration) {
	c.ctx, c.cancelFunc = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			c.updateConnections()
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (c *ConnectorMetricsCollector) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}

func (c *ConnectorMetricsCollector) updateConnections() {
	if c.source == nil {
		return
	}
	// Reset so statuses with no connections left drop to absent
	c.connections.Reset()
	for status, n := range c.source.StatusCounts() {
		c.connections.WithLabelValues(status).Set(float64(n))
	}
}

func (c *ConnectorMetricsCollector) RecordEventForwarded(eventType string) {
	c.eventsForwarded.WithLabelValues(eventType).Inc()
}

func (c *ConnectorMetricsCollector) RecordEmitterError(gameType string) {
	c.emitterErrors.WithLabelValues(gameType).Inc()
}
