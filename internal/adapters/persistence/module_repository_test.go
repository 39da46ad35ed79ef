package persistence_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

func TestModuleRepository_SaveAndFindRoundTripsArguments(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	def := "1"
	m := &module.Module{
		ID:   "mod-1",
		Name: "economy",
		Commands: []*module.Command{{
			ID: "cmd-give", Name: "give", Trigger: "give", Enabled: true,
			Arguments: []module.Argument{
				{Name: "item", Type: module.ArgumentTypeString, Position: 0},
				{Name: "amount", Type: module.ArgumentTypeNumber, Position: 1, DefaultValue: &def},
			},
		}},
		Hooks: []*module.Hook{{ID: "hook-1", Name: "saves", EventType: gameserver.EventLogLine, Regex: "^Saved"}},
	}

	// Act
	require.NoError(t, repos.Modules.Save(ctx, m))
	found, err := repos.Modules.FindByID(ctx, "mod-1")

	// Assert
	require.NoError(t, err)
	require.Len(t, found.Commands, 1)
	require.Len(t, found.Commands[0].Arguments, 2)
	assert.Equal(t, module.ArgumentTypeNumber, found.Commands[0].Arguments[1].Type)
	require.NotNil(t, found.Commands[0].Arguments[1].DefaultValue)
	assert.Equal(t, "1", *found.Commands[0].Arguments[1].DefaultValue)
	require.Len(t, found.Hooks, 1)
	assert.Equal(t, "^Saved", found.Hooks[0].Regex)
}

func TestModuleRepository_SaveDropsRemovedTriggersAndTheirAssignments(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	seedTriggers(t, repos)
	assign(t, repos, function.ItemKindCommand, "A", "F1")
	assign(t, repos, function.ItemKindCronJob, "B", "F2")

	m, err := repos.Modules.FindByID(ctx, "mod-1")
	require.NoError(t, err)
	m.Commands = m.Commands[1:] // drop A
	m.CronJobs = nil

	// Act
	require.NoError(t, repos.Modules.Save(ctx, m))

	// Assert
	forA, err := repos.Assignments.FunctionIDsForItem(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, forA)
	forB, err := repos.Assignments.FunctionIDsForItem(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, forB)

	reloaded, err := repos.Modules.FindByID(ctx, "mod-1")
	require.NoError(t, err)
	require.Len(t, reloaded.Commands, 1)
	assert.Equal(t, "C", reloaded.Commands[0].ID)
	assert.Empty(t, reloaded.CronJobs)
}

func TestModuleRepository_InstalledTriggerQueries(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-2", "dom-1", true)))
	require.NoError(t, repos.Modules.Save(ctx, &module.Module{
		ID:   "mod-1",
		Name: "teleports",
		Commands: []*module.Command{
			{ID: "cmd-tp", Name: "tp", Trigger: "TP", Enabled: true},
			{ID: "cmd-off", Name: "off", Trigger: "off", Enabled: false},
		},
		Hooks:    []*module.Hook{{ID: "hook-chat", Name: "chat", EventType: gameserver.EventChatMessage}},
		CronJobs: []*module.CronJob{{ID: "cron-1", Name: "tick", TemporalValue: "* * * * *"}},
	}))
	require.NoError(t, repos.Modules.Install(ctx, &module.Installation{
		ID: "inst-1", ModuleID: "mod-1", GameServerID: "gs-1", DomainID: "dom-1",
		UserConfig: json.RawMessage(`{"cooldown":5}`),
	}))

	// Act
	commands, err := repos.Modules.FindCommandsByTrigger(ctx, "gs-1", "tp")
	require.NoError(t, err)
	disabled, err := repos.Modules.FindCommandsByTrigger(ctx, "gs-1", "off")
	require.NoError(t, err)
	otherServer, err := repos.Modules.FindCommandsByTrigger(ctx, "gs-2", "tp")
	require.NoError(t, err)
	hooks, err := repos.Modules.FindHooksByEventType(ctx, "gs-1", gameserver.EventChatMessage)
	require.NoError(t, err)
	crons, err := repos.Modules.ListInstalledCronJobs(ctx)
	require.NoError(t, err)

	// Assert
	require.Len(t, commands, 1)
	assert.Equal(t, "cmd-tp", commands[0].Command.ID)
	assert.Equal(t, "inst-1", commands[0].Installation.ID)
	assert.JSONEq(t, `{"cooldown":5}`, string(commands[0].Installation.UserConfig))
	assert.Empty(t, disabled)
	assert.Empty(t, otherServer)
	require.Len(t, hooks, 1)
	assert.Equal(t, "hook-chat", hooks[0].Hook.ID)
	require.Len(t, crons, 1)
	assert.Equal(t, "gs-1", crons[0].Installation.GameServerID)
}

func TestModuleRepository_Uninstall(t *testing.T) {
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	require.NoError(t, repos.GameServers.Save(ctx, newServer("gs-1", "dom-1", true)))
	seedTriggers(t, repos)
	require.NoError(t, repos.Modules.Install(ctx, &module.Installation{ID: "inst-1", ModuleID: "mod-1", GameServerID: "gs-1", DomainID: "dom-1"}))

	require.NoError(t, repos.Modules.Uninstall(ctx, "gs-1", "mod-1"))

	commands, err := repos.Modules.FindCommandsByTrigger(ctx, "gs-1", "a")
	require.NoError(t, err)
	assert.Empty(t, commands)
	assert.Error(t, repos.Modules.Uninstall(ctx, "gs-1", "mod-1"))
}
