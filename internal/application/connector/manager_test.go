package connector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adaptergs "github.com/andrescamacho/takaro-connector/internal/adapters/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

type fakeSource struct {
	servers map[string]*gameserver.GameServer
}

func newFakeSource(servers ...*gameserver.GameServer) *fakeSource {
	s := &fakeSource{servers: make(map[string]*gameserver.GameServer)}
	for _, srv := range servers {
		s.servers[srv.ID] = srv
	}
	return s
}

func (s *fakeSource) ListDomains(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, srv := range s.servers {
		if !seen[srv.DomainID] {
			seen[srv.DomainID] = true
			out = append(out, srv.DomainID)
		}
	}
	return out, nil
}

func (s *fakeSource) ListByDomain(ctx context.Context, domainID string) ([]*gameserver.GameServer, error) {
	var out []*gameserver.GameServer
	for _, srv := range s.servers {
		if srv.DomainID == domainID {
			out = append(out, &gameserver.GameServer{ID: srv.ID, DomainID: srv.DomainID, Type: srv.Type, Enabled: srv.Enabled})
		}
	}
	return out, nil
}

func (s *fakeSource) Get(ctx context.Context, domainID, id string) (*gameserver.GameServer, error) {
	srv, ok := s.servers[id]
	if !ok || srv.DomainID != domainID {
		return nil, shared.NewNotFoundError("game server", id)
	}
	return srv, nil
}

type recordingBackend struct {
	mu     sync.Mutex
	bodies map[queue.Name][][]byte
}

func (b *recordingBackend) Enqueue(ctx context.Context, name queue.Name, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bodies == nil {
		b.bodies = make(map[queue.Name][][]byte)
	}
	b.bodies[name] = append(b.bodies[name], body)
	return nil
}

func (b *recordingBackend) Consume(ctx context.Context, name queue.Name, concurrency int, h queue.Handler) error {
	<-ctx.Done()
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func (b *recordingBackend) events(t *testing.T) []queue.EventJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	var jobs []queue.EventJob
	for _, body := range b.bodies[queue.Events] {
		var job queue.EventJob
		require.NoError(t, json.Unmarshal(body, &job))
		jobs = append(jobs, job)
	}
	return jobs
}

func mockServer(id, domain string, info string) *gameserver.GameServer {
	return &gameserver.GameServer{
		ID:             id,
		DomainID:       domain,
		Type:           gameserver.GameTypeMock,
		ConnectionInfo: json.RawMessage(info),
		Enabled:        true,
	}
}

func newTestManager(source *fakeSource) (*Manager, *recordingBackend) {
	backend := &recordingBackend{}
	clock := shared.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewManager(adaptergs.NewRegistry(clock, nil), source, queue.NewFabric(backend), nil, clock)
	return m, backend
}

func mockEmitter(t *testing.T, m *Manager, id string) *adaptergs.MockEmitter {
	conn, ok := m.Get(id)
	require.True(t, ok)
	emitter, ok := conn.Emitter().(*adaptergs.MockEmitter)
	require.True(t, ok)
	return emitter
}

func TestManager_AddForwardsEventsWithServerIDs(t *testing.T) {
	// Arrange
	m, backend := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))

	// Act
	require.NoError(t, m.Add(context.Background(), "dom-1", "gs-1"))
	require.NoError(t, mockEmitter(t, m, "gs-1").Chat(gameserver.Player{GameID: "p1", Name: "alice"}, "/ping"))

	// Assert
	jobs := backend.events(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, gameserver.EventChatMessage, jobs[0].Type)
	assert.Equal(t, "dom-1", jobs[0].DomainID)
	assert.Equal(t, "gs-1", jobs[0].GameServerID)
	assert.Equal(t, "/ping", jobs[0].Event.Msg)
	assert.NotEmpty(t, jobs[0].ID)
}

func TestManager_AddTwiceKeepsOneConnection(t *testing.T) {
	m, backend := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "dom-1", "gs-1"))
	first := mockEmitter(t, m, "gs-1")
	require.NoError(t, m.Add(ctx, "dom-1", "gs-1"))

	assert.Equal(t, 1, m.Count())
	assert.False(t, first.Running(), "replaced emitter is stopped")
	require.NoError(t, mockEmitter(t, m, "gs-1").Chat(gameserver.Player{Name: "bob"}, "hi"))
	assert.Len(t, backend.events(t), 1)
}

func TestManager_UnknownGameTypeRegistersNothing(t *testing.T) {
	// Arrange
	srv := mockServer("gs-9", "dom-1", `{}`)
	srv.Type = gameserver.GameType("MINECRAFT")
	m, _ := newTestManager(newFakeSource(srv))

	// Act
	err := m.Add(context.Background(), "dom-1", "gs-9")

	// Assert
	var notImpl *shared.NotImplementedError
	require.True(t, errors.As(err, &notImpl))
	assert.Zero(t, m.Count())
}

func TestManager_StartFailureRegistersFailedConnection(t *testing.T) {
	m, _ := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{"failStart": true}`)))

	err := m.Add(context.Background(), "dom-1", "gs-1")

	require.NoError(t, err)
	conn, ok := m.Get("gs-1")
	require.True(t, ok)
	assert.Equal(t, shared.LifecycleStatusFailed, conn.Status())
	assert.Error(t, conn.LastError())
	assert.Equal(t, 1, m.StatusCounts()[string(shared.LifecycleStatusFailed)])
}

func TestManager_RemoveStopsEmitter(t *testing.T) {
	m, _ := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "dom-1", "gs-1"))
	emitter := mockEmitter(t, m, "gs-1")
	conn, _ := m.Get("gs-1")

	require.NoError(t, m.Remove(ctx, "gs-1"))

	assert.Zero(t, m.Count())
	assert.False(t, emitter.Running())
	assert.Equal(t, shared.LifecycleStatusStopped, conn.Status())
}

func TestManager_RemoveUnknownIsNoop(t *testing.T) {
	m, _ := newTestManager(newFakeSource())

	assert.NoError(t, m.Remove(context.Background(), "missing"))
}

func TestManager_UpdatePicksUpNewConfig(t *testing.T) {
	source := newFakeSource(mockServer("gs-1", "dom-1", `{"failStart": true}`))
	m, _ := newTestManager(source)
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "dom-1", "gs-1"))

	source.servers["gs-1"] = mockServer("gs-1", "dom-1", `{}`)
	require.NoError(t, m.Update(ctx, "dom-1", "gs-1"))

	conn, ok := m.Get("gs-1")
	require.True(t, ok)
	assert.Equal(t, shared.LifecycleStatusConnected, conn.Status())
	assert.Equal(t, 1, m.Count())
}

func TestManager_InitConnectsEnabledServers(t *testing.T) {
	disabled := mockServer("gs-3", "dom-2", `{}`)
	disabled.Enabled = false
	m, _ := newTestManager(newFakeSource(
		mockServer("gs-1", "dom-1", `{}`),
		mockServer("gs-2", "dom-2", `{}`),
		disabled,
	))

	require.NoError(t, m.Init(context.Background()))

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "gs-1", infos[0].ID)
	assert.Equal(t, "gs-2", infos[1].ID)
}

func TestManager_ErrorEventsAreNotForwarded(t *testing.T) {
	m, backend := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))
	require.NoError(t, m.Add(context.Background(), "dom-1", "gs-1"))

	mockEmitter(t, m, "gs-1").Fail(errors.New("socket reset"))

	assert.Empty(t, backend.events(t))
}

func TestManager_SessionFailureMarksConnectionFailed(t *testing.T) {
	// Arrange
	source := newFakeSource(mockServer("gs-1", "dom-1", `{}`))
	m, _ := newTestManager(source)
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "dom-1", "gs-1"))

	// Act
	mockEmitter(t, m, "gs-1").Fail(errors.New("socket reset"))

	// Assert
	conn, ok := m.Get("gs-1")
	require.True(t, ok)
	assert.Equal(t, shared.LifecycleStatusFailed, conn.Status())
	require.Error(t, conn.LastError())
	assert.Contains(t, conn.LastError().Error(), "socket reset")
	assert.Equal(t, "socket reset", conn.Info().LastError)

	require.NoError(t, m.Update(ctx, "dom-1", "gs-1"))
	conn, ok = m.Get("gs-1")
	require.True(t, ok)
	assert.Equal(t, shared.LifecycleStatusConnected, conn.Status())
}

func TestManager_ShutdownStopsAll(t *testing.T) {
	m, _ := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`), mockServer("gs-2", "dom-1", `{}`)))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	a, b := mockEmitter(t, m, "gs-1"), mockEmitter(t, m, "gs-2")

	require.NoError(t, m.Shutdown(ctx))

	assert.Zero(t, m.Count())
	assert.False(t, a.Running())
	assert.False(t, b.Running())
}

func TestManager_ConcurrentAddRemoveKeepsInvariant(t *testing.T) {
	m, _ := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = m.Add(ctx, "dom-1", "gs-1") }()
		go func() { defer wg.Done(); _ = m.Remove(ctx, "gs-1") }()
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Count(), 1)
}

func TestWorker_AppliesJobsAndNotifies(t *testing.T) {
	// Arrange
	m, _ := newTestManager(newFakeSource(mockServer("gs-1", "dom-1", `{}`)))
	synced := 0
	w := NewWorker(m, func(ctx context.Context) { synced++ })
	body, _ := json.Marshal(queue.ConnectorJob{ID: "j1", Operation: queue.ConnectorAdd, DomainID: "dom-1", GameServerID: "gs-1"})

	// Act
	err := w.Handle(context.Background(), queue.Delivery{Queue: queue.Connector, Body: body, Attempt: 1})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 1, synced)
}

func TestWorker_MissingServerIsPermanent(t *testing.T) {
	m, _ := newTestManager(newFakeSource())
	w := NewWorker(m)
	body, _ := json.Marshal(queue.ConnectorJob{Operation: queue.ConnectorAdd, DomainID: "dom-1", GameServerID: "nope"})

	err := w.Handle(context.Background(), queue.Delivery{Queue: queue.Connector, Body: body})

	assert.True(t, queue.IsPermanent(err))
}

func TestWorker_UnknownOperationIsPermanent(t *testing.T) {
	m, _ := newTestManager(newFakeSource())

	err := NewWorker(m).Apply(context.Background(), queue.ConnectorJob{Operation: "restart"})

	assert.True(t, queue.IsPermanent(err))
}
