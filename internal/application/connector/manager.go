// Package connector keeps exactly one live emitter per managed game server
// and forwards what they emit onto the events queue.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrescamacho/takaro-connector/internal/adapters/metrics"
	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// DefaultStopTimeout bounds how long a single emitter may take to stop
const DefaultStopTimeout = 10 * time.Second

// Manager owns the emitter of every managed game server.
//
// Invariants:
// - at most one connection per game server id
// - add, remove and update for the same id never interleave
// - only the manager starts or stops emitters
type Manager struct {
	registry gameserver.EmitterFactory
	source   gameserver.ConfigSource
	events   *queue.Queue[queue.EventJob]
	logger   *slog.Logger
	clock    shared.Clock

	StopTimeout time.Duration

	// forwarding context, cancelled by Shutdown so blocked enqueues return
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	connections map[string]*Connection
	locks       keyedMutex
}

func NewManager(
	registry gameserver.EmitterFactory,
	source gameserver.ConfigSource,
	fabric *queue.Fabric,
	logger *slog.Logger,
	clock shared.Clock,
) *Manager {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:    registry,
		source:      source,
		events:      fabric.Events,
		logger:      common.OrDiscard(logger),
		clock:       clock,
		StopTimeout: DefaultStopTimeout,
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[string]*Connection),
	}
}

// Init connects every server of every domain. Per-server failures are logged
// and do not stop the others.
func (m *Manager) Init(ctx context.Context) error {
	domains, err := m.source.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	for _, domainID := range domains {
		servers, err := m.source.ListByDomain(ctx, domainID)
		if err != nil {
			m.logger.Error("failed to list game servers", "domain_id", domainID, "error", err)
			continue
		}
		for _, server := range servers {
			if !server.Enabled {
				continue
			}
			if err := m.Add(ctx, domainID, server.ID); err != nil {
				m.logger.Error("failed to add game server", "domain_id", domainID, "gameserver_id", server.ID, "error", err)
			}
		}
	}

	m.logger.Info("connection manager initialized", "domains", len(domains), "connections", m.Count())
	return nil
}

// Add connects gameServerID. An existing connection for the id is stopped
// first. A start failure leaves a FAILED connection registered and returns
// nil; unknown game types and missing servers return an error and register
// nothing.
func (m *Manager) Add(ctx context.Context, domainID, gameServerID string) error {
	unlock := m.locks.Lock(gameServerID)
	defer unlock()
	return m.add(ctx, domainID, gameServerID)
}

func (m *Manager) add(ctx context.Context, domainID, gameServerID string) error {
	m.remove(ctx, gameServerID)

	server, err := m.source.Get(ctx, domainID, gameServerID)
	if err != nil {
		return fmt.Errorf("failed to load game server %s: %w", gameServerID, err)
	}

	emitter, err := m.registry.New(server.Type, server.ConnectionInfo)
	if err != nil {
		return err
	}

	conn := newConnection(server, emitter, m.clock)
	m.subscribe(conn)

	logger := m.logger.With("domain_id", domainID, "gameserver_id", gameServerID, "game_type", server.Type.String())
	if err := emitter.Start(ctx); err != nil {
		_ = conn.lifecycle.MarkFailed(err)
		logger.Error("emitter failed to start", "error", err)
	} else {
		_ = conn.lifecycle.MarkConnected()
		logger.Info("emitter connected")
	}

	m.mu.Lock()
	m.connections[gameServerID] = conn
	m.mu.Unlock()
	return nil
}

// Remove stops and forgets gameServerID. Unknown ids are a no-op.
func (m *Manager) Remove(ctx context.Context, gameServerID string) error {
	unlock := m.locks.Lock(gameServerID)
	defer unlock()

	if !m.remove(ctx, gameServerID) {
		m.logger.Warn("no connection to remove", "gameserver_id", gameServerID)
	}
	return nil
}

func (m *Manager) remove(ctx context.Context, gameServerID string) bool {
	m.mu.Lock()
	conn, ok := m.connections[gameServerID]
	delete(m.connections, gameServerID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.stop(ctx, conn)
	return true
}

// Update reconnects gameServerID with its current configuration
func (m *Manager) Update(ctx context.Context, domainID, gameServerID string) error {
	unlock := m.locks.Lock(gameServerID)
	defer unlock()

	m.remove(ctx, gameServerID)
	return m.add(ctx, domainID, gameServerID)
}

func (m *Manager) stop(ctx context.Context, conn *Connection) {
	stopCtx, cancel := context.WithTimeout(ctx, m.StopTimeout)
	defer cancel()

	if err := conn.emitter.Stop(stopCtx); err != nil {
		m.logger.Warn("emitter did not stop cleanly", "gameserver_id", conn.ID, "error", err)
	}
	_ = conn.lifecycle.MarkStopped()
}

// Shutdown stops every emitter
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			m.stop(ctx, conn)
		}(conn)
	}
	wg.Wait()

	m.logger.Info("connection manager stopped", "stopped", len(conns))
	return ctx.Err()
}

// subscribe wires the connection's emitter to the events queue. Handlers
// capture conn so a replaced connection keeps forwarding under its own ids
// until it is stopped.
func (m *Manager) subscribe(conn *Connection) {
	for _, eventType := range gameserver.ForwardedEventTypes {
		conn.emitter.On(eventType, func(ev gameserver.Event) {
			m.forward(conn, ev)
		})
	}
	// Emitters only report errors that end their session
	conn.emitter.OnError(func(err error) {
		metrics.RecordEmitterError(conn.GameType.String())
		m.logger.Error("emitter error", "domain_id", conn.DomainID, "gameserver_id", conn.ID, "error", err)
		_ = conn.lifecycle.MarkFailed(err)
	})
}

func (m *Manager) forward(conn *Connection, ev gameserver.Event) {
	job := queue.EventJob{
		ID:           uuid.NewString(),
		Type:         ev.Type,
		Event:        ev,
		DomainID:     conn.DomainID,
		GameServerID: conn.ID,
	}
	if err := m.events.Add(m.ctx, job); err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Error("failed to forward event", "gameserver_id", conn.ID, "type", string(ev.Type), "error", err)
		}
		return
	}
	metrics.RecordEventForwarded(string(ev.Type))
}

// Get returns the connection for gameServerID
func (m *Manager) Get(gameServerID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[gameServerID]
	return conn, ok
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// List returns a snapshot of all connections ordered by id
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.connections))
	for _, conn := range m.connections {
		infos = append(infos, conn.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// StatusCounts implements metrics.StatusCounter
func (m *Manager) StatusCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]int{
		string(shared.LifecycleStatusConnecting): 0,
		string(shared.LifecycleStatusConnected):  0,
		string(shared.LifecycleStatusFailed):     0,
	}
	for _, conn := range m.connections {
		counts[string(conn.Status())]++
	}
	return counts
}
