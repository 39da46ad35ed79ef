package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/andrescamacho/takaro-connector/test/helpers"
)

func setup(t *testing.T) (*Resolver, *helpers.TestRepositories) {
	t.Helper()
	ctx := context.Background()
	repos := helpers.NewTestRepositories(t, nil)

	require.NoError(t, repos.Modules.Save(ctx, &module.Module{
		ID:       "mod-1",
		Name:     "basics",
		Commands: []*module.Command{{ID: "A", Name: "a", Trigger: "a", Enabled: true}, {ID: "C", Name: "c", Trigger: "c", Enabled: true}},
		CronJobs: []*module.CronJob{{ID: "B", Name: "b", TemporalValue: "*/5 * * * *"}},
	}))
	for _, id := range []string{"F1", "F2"} {
		fn, err := function.NewFunction(id, id, "print('"+id+"')", nil)
		require.NoError(t, err)
		require.NoError(t, repos.Functions.Save(ctx, fn))
	}
	return NewResolver(repos.Assignments, repos.Functions, nil), repos
}

func TestResolver_RelatedFunctionsAcrossKinds(t *testing.T) {
	// Arrange
	ctx := context.Background()
	r, _ := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "A", "F1"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCronJob, "B", "F2"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F1"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F2"))

	// Act
	forA, errA := r.RelatedFunctionIDs(ctx, "A")
	forB, errB := r.RelatedFunctionIDs(ctx, "B")
	forC, errC := r.RelatedFunctionIDs(ctx, "C")
	fnsC, errFns := r.RelatedFunctions(ctx, "C")

	// Assert
	require.NoError(t, errors.Join(errA, errB, errC, errFns))
	assert.Equal(t, []string{"F1"}, forA)
	assert.Equal(t, []string{"F2"}, forB)
	assert.ElementsMatch(t, []string{"F1", "F2"}, forC)
	require.Len(t, fnsC, 2)
	assert.NotEmpty(t, fnsC[0].Code)
}

func TestResolver_UnknownItemHasNoFunctions(t *testing.T) {
	r, _ := setup(t)

	ids, err := r.RelatedFunctionIDs(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, ids)

	fns, err := r.GetRelatedFunctions(context.Background(), "nope", false)
	require.NoError(t, err)
	assert.Empty(t, fns)
}

func TestResolver_GetRelatedFunctionsShapes(t *testing.T) {
	ctx := context.Background()
	r, _ := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "A", "F1"))

	ids, err := r.GetRelatedFunctions(ctx, "A", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1"}, ids)

	full, err := r.GetRelatedFunctions(ctx, "A", false)
	require.NoError(t, err)
	fns, ok := full.([]*function.Function)
	require.True(t, ok)
	require.Len(t, fns, 1)
	assert.Equal(t, "F1", fns[0].ID)
}

func TestResolver_AssignRejectsUnknownKind(t *testing.T) {
	// Arrange
	ctx := context.Background()
	r, _ := setup(t)

	// Act
	err := r.Assign(ctx, function.ItemKind("webhook"), "A", "F1")

	// Assert
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	ids, err := r.RelatedFunctionIDs(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, ids, "nothing stored")
}

func TestResolver_UnassignRemovesOnlyThatEdge(t *testing.T) {
	ctx := context.Background()
	r, _ := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F1"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F2"))

	require.NoError(t, r.Unassign(ctx, function.ItemKindCommand, "C", "F1"))

	ids, err := r.RelatedFunctionIDs(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"F2"}, ids)

	var notFound *shared.NotFoundError
	assert.True(t, errors.As(r.Unassign(ctx, function.ItemKindCommand, "C", "F1"), &notFound))
}

func TestResolver_DeletingFunctionCascades(t *testing.T) {
	ctx := context.Background()
	r, repos := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "A", "F1"))

	require.NoError(t, repos.Functions.Delete(ctx, "F1"))

	ids, err := r.RelatedFunctionIDs(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolver_FanOutEnqueuesOneJobPerFunction(t *testing.T) {
	// Arrange
	ctx := context.Background()
	r, _ := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F1"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F2"))
	backend := helpers.NewCaptureBackend()
	fabric := queue.NewFabric(backend)

	// Act
	ids, err := r.FanOut(ctx, fabric.Commands, queue.ExecutionJob{
		DomainID:     "dom-1",
		GameServerID: "gs-1",
		ItemKind:     function.ItemKindCommand,
		ItemID:       "C",
		Data:         map[string]any{"commandId": "C"},
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	jobs := helpers.Jobs[queue.ExecutionJob](t, backend, queue.Commands)
	require.Len(t, jobs, 2)
	assert.ElementsMatch(t, []string{"F1", "F2"}, []string{jobs[0].FunctionID, jobs[1].FunctionID})
	for _, job := range jobs {
		assert.Equal(t, "gs-1", job.GameServerID)
		assert.Equal(t, "C", job.Data["commandId"])
	}
}

func TestResolver_FanOutWithoutAssignmentsEnqueuesNothing(t *testing.T) {
	r, _ := setup(t)
	backend := helpers.NewCaptureBackend()

	ids, err := r.FanOut(context.Background(), queue.NewFabric(backend).Hooks, queue.ExecutionJob{ItemKind: function.ItemKindHook, ItemID: "h-1"})

	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, backend.Count(queue.Hooks))
}

func TestResolver_FanOutDerivesJobIDsFromSource(t *testing.T) {
	// Arrange
	ctx := context.Background()
	r, _ := setup(t)
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F1"))
	require.NoError(t, r.Assign(ctx, function.ItemKindCommand, "C", "F2"))
	fabric := queue.NewFabric(helpers.NewCaptureBackend())
	template := queue.ExecutionJob{SourceID: "ev-1", GameServerID: "gs-1", ItemKind: function.ItemKindCommand, ItemID: "C"}

	// Act
	first, err := r.FanOut(ctx, fabric.Commands, template)
	require.NoError(t, err)
	again, err := r.FanOut(ctx, fabric.Commands, template)
	require.NoError(t, err)
	template.GameServerID = "gs-2"
	elsewhere, err := r.FanOut(ctx, fabric.Commands, template)
	require.NoError(t, err)

	// Assert
	require.Len(t, first, 2)
	assert.Equal(t, first, again)
	assert.NotEqual(t, first[0], first[1])
	assert.NotContains(t, first, elsewhere[0])
	assert.Contains(t, first, JobID("ev-1", "gs-1", function.ItemKindCommand, "C", "F1"))
}
