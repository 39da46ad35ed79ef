package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

func TestExecutionRepository_SaveIsIdempotentPerJob(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	rec := &execution.Record{
		JobID:        "job-1",
		FunctionID:   "F1",
		DomainID:     "dom-1",
		GameServerID: "gs-1",
		ItemKind:     function.ItemKindCommand,
		ItemID:       "A",
		Success:      true,
		Logs:         []execution.LogLine{{Level: execution.LogLevelInfo, Msg: "hello"}},
		StartedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
	}

	// Act
	first, err := repos.Executions.Save(ctx, rec)
	require.NoError(t, err)
	second, err := repos.Executions.Save(ctx, rec)
	require.NoError(t, err)
	exists, err := repos.Executions.Exists(ctx, "job-1")
	require.NoError(t, err)
	list, err := repos.Executions.ListByFunction(ctx, "F1", 10)
	require.NoError(t, err)

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, exists)
	require.Len(t, list, 1)
	assert.Equal(t, rec.Logs, list[0].Logs)
	assert.Equal(t, rec.Duration, list[0].Duration)
}

func TestEventRepository_RecordIgnoresRedelivery(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)
	job := queue.EventJob{
		ID:           "evt-1",
		Type:         gameserver.EventPlayerConnected,
		Event:        gameserver.NewPlayerConnected(gameserver.Player{GameID: "p1", Name: "alice"}, time.Now()),
		DomainID:     "dom-1",
		GameServerID: "gs-1",
	}

	// Act
	require.NoError(t, repos.Events.Record(ctx, job))
	require.NoError(t, repos.Events.Record(ctx, job))
	count, err := repos.Events.CountByGameServer(ctx, "gs-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
