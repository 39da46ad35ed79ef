package persistence_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/adapters/persistence"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

func newServer(id, domainID string, enabled bool) *gameserver.GameServer {
	return &gameserver.GameServer{
		ID:             id,
		DomainID:       domainID,
		Name:           "server " + id,
		Type:           gameserver.GameTypeMock,
		ConnectionInfo: json.RawMessage(`{"eventInterval":"1s"}`),
		Enabled:        enabled,
	}
}

func TestGameServerRepository_SaveSealsAndGetOpens(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clock := shared.NewMockClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	repos := helpers.NewTestRepositories(t, clock)

	// Act
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))
	found, err := repos.GameServers.Get(ctx, "dom-1", "gs-1")

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventInterval":"1s"}`, string(found.ConnectionInfo))
	assert.Equal(t, gameserver.GameTypeMock, found.Type)
	assert.Equal(t, clock.Now(), found.CreatedAt.UTC())

	var raw persistence.GameServerModel
	require.NoError(t, repos.DB.First(&raw, "id = ?", "gs-1").Error)
	assert.Equal(t, `plain:{"eventInterval":"1s"}`, raw.ConnectionInfo)
}

func TestGameServerRepository_GetIsScopedToDomain(t *testing.T) {
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))

	_, err := repos.GameServers.Get(ctx, "dom-2", "gs-1")

	var notFound *shared.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGameServerRepository_ListSkipsDisabledAndSecrets(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-2", "dom-1", false)))
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-3", "dom-2", true)))
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-4", "dom-3", false)))

	// Act
	domains, err := repos.GameServers.ListDomains(ctx)
	require.NoError(t, err)
	servers, err := repos.GameServers.ListByDomain(ctx, "dom-1")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, []string{"dom-1", "dom-2"}, domains)
	require.Len(t, servers, 1)
	assert.Equal(t, "gs-1", servers[0].ID)
	assert.False(t, servers[0].HasConnectionInfo())
}

func TestGameServerRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))

	require.NoError(t, repos.GameServers.Delete(ctx, "dom-1", "gs-1"))

	_, err := repos.GameServers.Get(ctx, "dom-1", "gs-1")
	assert.Error(t, err)
	assert.Error(t, repos.GameServers.Delete(ctx, "dom-1", "gs-1"), "second delete finds nothing")
}

func TestGameServerRepository_Settings(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))

	// Act & Assert
	_, ok, err := repos.GameServers.GetSetting(ctx, "gs-1", gameserver.SettingCommandPrefix)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repos.GameServers.SetSetting(ctx, "gs-1", gameserver.SettingCommandPrefix, "!"))
	require.NoError(t, repos.GameServers.SetSetting(ctx, "gs-1", gameserver.SettingCommandPrefix, "$"))

	value, ok, err := repos.GameServers.GetSetting(ctx, "gs-1", gameserver.SettingCommandPrefix)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$", value)
}
