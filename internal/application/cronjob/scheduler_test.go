package cronjob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

type fixture struct {
	scheduler *Scheduler
	backend   *helpers.CaptureBackend
	repos     *helpers.TestRepositories
}

func setup(t *testing.T, cronJobs ...*module.CronJob) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)

	require.NoError(t, repos.GameServers.Save(ctx, &gameserver.GameServer{
		ID: "gs-1", DomainID: "dom-1", Name: "test", Type: gameserver.GameTypeMock,
		ConnectionInfo: json.RawMessage(`{}`), Enabled: true,
	}))
	require.NoError(t, repos.Modules.Save(ctx, &module.Module{ID: "mod-1", Name: "timers", CronJobs: cronJobs}))
	require.NoError(t, repos.Modules.Install(ctx, &module.Installation{
		ID: "inst-1", ModuleID: "mod-1", GameServerID: "gs-1", DomainID: "dom-1",
	}))

	backend := helpers.NewCaptureBackend()
	resolver := trigger.NewResolver(repos.Assignments, repos.Functions, nil)
	return &fixture{
		scheduler: NewScheduler(repos.Modules, resolver, queue.NewFabric(backend), nil),
		backend:   backend,
		repos:     repos,
	}
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule("*/5 * * * *")
	assert.NoError(t, err)

	_, err = ParseSchedule("every five minutes")
	var verr *shared.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = ParseSchedule("0 */5 * * * *")
	assert.Error(t, err, "six fields are rejected")
}

func TestScheduler_SyncSkipsInvalidExpressions(t *testing.T) {
	// Arrange
	f := setup(t,
		&module.CronJob{ID: "cj-ok", Name: "ok", TemporalValue: "* * * * *"},
		&module.CronJob{ID: "cj-bad", Name: "bad", TemporalValue: "nope"},
	)

	// Act
	err := f.scheduler.Sync(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.scheduler.Len())
}

func TestScheduler_SyncRemovesUninstalled(t *testing.T) {
	f := setup(t, &module.CronJob{ID: "cj-1", Name: "tick", TemporalValue: "* * * * *"})
	ctx := context.Background()
	require.NoError(t, f.scheduler.Sync(ctx))
	require.Equal(t, 1, f.scheduler.Len())

	require.NoError(t, f.repos.Modules.Uninstall(ctx, "gs-1", "mod-1"))
	require.NoError(t, f.scheduler.Sync(ctx))

	assert.Zero(t, f.scheduler.Len())
}

func TestScheduler_SyncIsIdempotent(t *testing.T) {
	f := setup(t, &module.CronJob{ID: "cj-1", Name: "tick", TemporalValue: "* * * * *"})
	ctx := context.Background()

	require.NoError(t, f.scheduler.Sync(ctx))
	require.NoError(t, f.scheduler.Sync(ctx))

	assert.Equal(t, 1, f.scheduler.Len())
	assert.Len(t, f.scheduler.cron.Entries(), 1)
}

func TestScheduler_FireFansOutToAssignedFunctions(t *testing.T) {
	// Arrange
	f := setup(t, &module.CronJob{ID: "cj-1", Name: "tick", TemporalValue: "* * * * *"})
	ctx := context.Background()
	for _, id := range []string{"F1", "F2"} {
		fn, err := function.NewFunction(id, id, "print('tick')", nil)
		require.NoError(t, err)
		require.NoError(t, f.repos.Functions.Save(ctx, fn))
		a, err := function.NewAssignment(function.ItemKindCronJob, "cj-1", id)
		require.NoError(t, err)
		require.NoError(t, f.repos.Assignments.Insert(ctx, a))
	}
	installed, err := f.repos.Modules.ListInstalledCronJobs(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)

	// Act
	n, err := f.scheduler.Fire(ctx, installed[0], time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	jobs := helpers.Jobs[queue.ExecutionJob](t, f.backend, queue.CronJobs)
	require.Len(t, jobs, 2)
	assert.Equal(t, function.ItemKindCronJob, jobs[0].ItemKind)
	assert.Equal(t, "gs-1", jobs[0].GameServerID)
	assert.Equal(t, "dom-1", jobs[0].DomainID)
	assert.Equal(t, "cj-1", jobs[0].Data["cronjobId"])
}

func TestScheduler_FiringTheSameTickTwiceKeepsJobIDs(t *testing.T) {
	// Arrange
	f := setup(t, &module.CronJob{ID: "cj-1", Name: "tick", TemporalValue: "* * * * *"})
	ctx := context.Background()
	fn, err := function.NewFunction("F1", "F1", "print('tick')", nil)
	require.NoError(t, err)
	require.NoError(t, f.repos.Functions.Save(ctx, fn))
	a, err := function.NewAssignment(function.ItemKindCronJob, "cj-1", "F1")
	require.NoError(t, err)
	require.NoError(t, f.repos.Assignments.Insert(ctx, a))
	installed, err := f.repos.Modules.ListInstalledCronJobs(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	tick := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Act
	_, err = f.scheduler.Fire(ctx, installed[0], tick)
	require.NoError(t, err)
	_, err = f.scheduler.Fire(ctx, installed[0], tick.Add(2*time.Second))
	require.NoError(t, err)
	_, err = f.scheduler.Fire(ctx, installed[0], tick.Add(time.Minute))
	require.NoError(t, err)

	// Assert
	jobs := helpers.Jobs[queue.ExecutionJob](t, f.backend, queue.CronJobs)
	require.Len(t, jobs, 3)
	assert.Equal(t, jobs[0].ID, jobs[1].ID)
	assert.NotEqual(t, jobs[0].ID, jobs[2].ID)
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	f := setup(t, &module.CronJob{ID: "cj-1", Name: "tick", TemporalValue: "* * * * *"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- f.scheduler.Run(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}
