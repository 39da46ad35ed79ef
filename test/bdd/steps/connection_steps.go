package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"

	adaptergs "github.com/andrescamacho/takaro-connector/internal/adapters/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/application/connector"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/internal/infrastructure/database"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

// connectionContext holds state for connection lifecycle scenarios
type connectionContext struct {
	repos    *helpers.TestRepositories
	backend  *helpers.CaptureBackend
	manager  *connector.Manager
	emitters map[string]*adaptergs.MockEmitter
	addErr   error
}

func (c *connectionContext) reset() {
	c.repos = helpers.NewTestRepositories(nil, nil)
	c.backend = helpers.NewCaptureBackend()
	registry := adaptergs.NewRegistry(nil, nil)
	c.manager = connector.NewManager(registry, c.repos.GameServers, queue.NewFabric(c.backend), nil, nil)
	c.emitters = make(map[string]*adaptergs.MockEmitter)
	c.addErr = nil
}

func (c *connectionContext) close() {
	_ = c.manager.Shutdown(context.Background())
	_ = database.Close(c.repos.DB)
}

// ============================================================================
// Given
// ============================================================================

func (c *connectionContext) aConnectionManagerWithACapturingQueue() error {
	return nil
}

func (c *connectionContext) aGameServerInDomain(gameType, id, domainID string) error {
	return c.saveServer(id, domainID, gameType, `{}`, true)
}

func (c *connectionContext) aGameServerInDomainWithConnectionInfo(gameType, id, domainID string, info *godog.DocString) error {
	return c.saveServer(id, domainID, gameType, info.Content, true)
}

func (c *connectionContext) theFollowingGameServers(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		enabled, err := strconv.ParseBool(cellValue(table, row, "enabled"))
		if err != nil {
			return fmt.Errorf("enabled column: %w", err)
		}
		if err := c.saveServer(cellValue(table, row, "id"), cellValue(table, row, "domain"), cellValue(table, row, "type"), `{}`, enabled); err != nil {
			return err
		}
	}
	return nil
}

func (c *connectionContext) saveServer(id, domainID, gameType, info string, enabled bool) error {
	return c.repos.GameServers.Save(context.Background(), &gameserver.GameServer{
		ID:             id,
		DomainID:       domainID,
		Name:           id,
		Type:           gameserver.ParseGameType(gameType),
		ConnectionInfo: json.RawMessage(info),
		Enabled:        enabled,
	})
}

// ============================================================================
// When
// ============================================================================

func (c *connectionContext) theManagerAddsGameServerOfDomain(id, domainID string) error {
	c.addErr = c.manager.Add(context.Background(), domainID, id)
	if c.addErr != nil {
		return nil
	}
	conn, ok := c.manager.Get(id)
	if !ok {
		return fmt.Errorf("game server %s was not registered", id)
	}
	if mock, ok := conn.Emitter().(*adaptergs.MockEmitter); ok {
		if _, seen := c.emitters[id]; !seen {
			c.emitters[id] = mock
		}
	}
	return nil
}

func (c *connectionContext) theManagerRemovesGameServer(id string) error {
	return c.manager.Remove(context.Background(), id)
}

func (c *connectionContext) theManagerInitializes() error {
	return c.manager.Init(context.Background())
}

func (c *connectionContext) playerSaysOnGameServer(player, msg, id string) error {
	mock, err := c.liveMock(id)
	if err != nil {
		return err
	}
	return mock.Chat(gameserver.Player{GameID: player, Name: player}, msg)
}

func (c *connectionContext) gameServerReportsTheError(id, msg string) error {
	mock, err := c.liveMock(id)
	if err != nil {
		return err
	}
	mock.Fail(errors.New(msg))
	return nil
}

func (c *connectionContext) liveMock(id string) (*adaptergs.MockEmitter, error) {
	conn, ok := c.manager.Get(id)
	if !ok {
		return nil, fmt.Errorf("no connection for %s", id)
	}
	mock, ok := conn.Emitter().(*adaptergs.MockEmitter)
	if !ok {
		return nil, fmt.Errorf("game server %s is not a mock", id)
	}
	return mock, nil
}

// ============================================================================
// Then
// ============================================================================

func (c *connectionContext) gameServerShouldBe(id, status string) error {
	conn, ok := c.manager.Get(id)
	if !ok {
		return fmt.Errorf("no connection for %s", id)
	}
	if got := conn.Status(); got != shared.LifecycleStatus(status) {
		return fmt.Errorf("expected %s to be %s, got %s (last error: %v)", id, status, got, conn.LastError())
	}
	return nil
}

func (c *connectionContext) gameServerShouldNotBeConnected(id string) error {
	if _, ok := c.manager.Get(id); ok {
		return fmt.Errorf("expected no connection for %s", id)
	}
	return nil
}

func (c *connectionContext) theManagerShouldHoldConnections(n int) error {
	if got := c.manager.Count(); got != n {
		return fmt.Errorf("expected %d connections, got %d", n, got)
	}
	return nil
}

func (c *connectionContext) addingShouldFailWithANotImplementedError() error {
	var notImpl *shared.NotImplementedError
	if !errors.As(c.addErr, &notImpl) {
		return fmt.Errorf("expected a not implemented error, got %v", c.addErr)
	}
	return nil
}

func (c *connectionContext) theEventsQueueShouldHoldEventForGameServer(n int, eventType, id string) error {
	jobs, err := helpers.DecodeJobs[queue.EventJob](c.backend, queue.Events)
	if err != nil {
		return err
	}
	count := 0
	for _, job := range jobs {
		if job.GameServerID == id && job.Type == gameserver.EventType(eventType) {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d %s events for %s, got %d of %d jobs", n, eventType, id, count, len(jobs))
	}
	return nil
}

func (c *connectionContext) theEventsQueueShouldBeEmpty() error {
	if n := c.backend.Count(queue.Events); n != 0 {
		return fmt.Errorf("expected no events, got %d", n)
	}
	return nil
}

func (c *connectionContext) theFirstEmitterOfGameServerShouldBeStopped(id string) error {
	mock, ok := c.emitters[id]
	if !ok {
		return fmt.Errorf("no emitter recorded for %s", id)
	}
	if mock.Running() {
		return fmt.Errorf("expected the first emitter of %s to be stopped", id)
	}
	return nil
}

// InitializeConnectionScenario registers connection lifecycle steps
func InitializeConnectionScenario(sc *godog.ScenarioContext) {
	c := &connectionContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		c.close()
		return ctx, nil
	})

	sc.Step(`^a connection manager with a capturing queue$`, c.aConnectionManagerWithACapturingQueue)
	sc.Step(`^a "([^"]*)" game server "([^"]*)" in domain "([^"]*)"$`, c.aGameServerInDomain)
	sc.Step(`^a "([^"]*)" game server "([^"]*)" in domain "([^"]*)" with connection info:$`, c.aGameServerInDomainWithConnectionInfo)
	sc.Step(`^the following game servers:$`, c.theFollowingGameServers)

	sc.Step(`^the manager adds game server "([^"]*)" of domain "([^"]*)"$`, c.theManagerAddsGameServerOfDomain)
	sc.Step(`^the manager removes game server "([^"]*)"$`, c.theManagerRemovesGameServer)
	sc.Step(`^the manager initializes$`, c.theManagerInitializes)
	sc.Step(`^player "([^"]*)" says "([^"]*)" on game server "([^"]*)"$`, c.playerSaysOnGameServer)
	sc.Step(`^game server "([^"]*)" reports the error "([^"]*)"$`, c.gameServerReportsTheError)

	sc.Step(`^game server "([^"]*)" should be "([^"]*)"$`, c.gameServerShouldBe)
	sc.Step(`^game server "([^"]*)" should not be connected$`, c.gameServerShouldNotBeConnected)
	sc.Step(`^the manager should hold (\d+) connections?$`, c.theManagerShouldHoldConnections)
	sc.Step(`^adding should fail with a not implemented error$`, c.addingShouldFailWithANotImplementedError)
	sc.Step(`^the events queue should hold (\d+) "([^"]*)" events? for game server "([^"]*)"$`, c.theEventsQueueShouldHoldEventForGameServer)
	sc.Step(`^the events queue should be empty$`, c.theEventsQueueShouldBeEmpty)
	sc.Step(`^the first emitter of game server "([^"]*)" should be stopped$`, c.theFirstEmitterOfGameServerShouldBeStopped)
}
