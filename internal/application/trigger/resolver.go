// Package trigger maintains function-to-trigger assignments and fans a fired
// trigger out into one execution job per assigned function.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/andrescamacho/takaro-connector/internal/adapters/metrics"
	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// Resolver answers "which functions run when this trigger fires".
// The trigger kind never needs to be known on lookup.
type Resolver struct {
	assignments function.AssignmentRepository
	functions   function.Repository
	logger      *slog.Logger
}

func NewResolver(assignments function.AssignmentRepository, functions function.Repository, logger *slog.Logger) *Resolver {
	return &Resolver{
		assignments: assignments,
		functions:   functions,
		logger:      common.OrDiscard(logger),
	}
}

// Assign links functionID to the trigger itemID of the given kind. Unknown
// kinds and empty ids are ValidationErrors and nothing is stored.
func (r *Resolver) Assign(ctx context.Context, kind function.ItemKind, itemID, functionID string) error {
	a, err := function.NewAssignment(kind, itemID, functionID)
	if err != nil {
		return err
	}
	if err := r.assignments.Insert(ctx, a); err != nil {
		return err
	}
	r.logger.Info("function assigned", "function_id", functionID, "kind", string(a.Owner().Kind), "item_id", itemID)
	return nil
}

// Unassign removes one assignment. A missing assignment is a NotFoundError.
func (r *Resolver) Unassign(ctx context.Context, kind function.ItemKind, itemID, functionID string) error {
	a, err := function.NewAssignment(kind, itemID, functionID)
	if err != nil {
		return err
	}
	return r.assignments.Delete(ctx, a)
}

// RelatedFunctionIDs returns the distinct ids of functions assigned to itemID
func (r *Resolver) RelatedFunctionIDs(ctx context.Context, itemID string) ([]string, error) {
	ids, err := r.assignments.FunctionIDsForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// RelatedFunctions returns the full function records assigned to itemID
func (r *Resolver) RelatedFunctions(ctx context.Context, itemID string) ([]*function.Function, error) {
	ids, err := r.RelatedFunctionIDs(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*function.Function{}, nil
	}
	return r.functions.FindByIDs(ctx, ids)
}

// GetRelatedFunctions returns []string when onlyIDs is set and
// []*function.Function otherwise.
func (r *Resolver) GetRelatedFunctions(ctx context.Context, itemID string, onlyIDs bool) (interface{}, error) {
	if onlyIDs {
		return r.RelatedFunctionIDs(ctx, itemID)
	}
	return r.RelatedFunctions(ctx, itemID)
}

// jobNamespace scopes the derived execution job ids
var jobNamespace = uuid.MustParse("6f1c4f5e-2b0a-4d8e-9a57-3c2f8d1b7e40")

// JobID derives the execution job id for one function run caused by
// sourceID. The same source, game server, trigger and function always map to
// the same id so the execution worker can drop a redelivered fan-out.
func JobID(sourceID, gameServerID string, kind function.ItemKind, itemID, functionID string) string {
	key := strings.Join([]string{sourceID, gameServerID, string(kind), itemID, functionID}, "/")
	return uuid.NewSHA1(jobNamespace, []byte(key)).String()
}

// FanOut enqueues one copy of template per function assigned to
// template.ItemID. With a SourceID the job ids are derived by JobID,
// otherwise every job gets a fresh id. It returns the ids enqueued.
func (r *Resolver) FanOut(ctx context.Context, q *queue.Queue[queue.ExecutionJob], template queue.ExecutionJob) ([]string, error) {
	functionIDs, err := r.RelatedFunctionIDs(ctx, template.ItemID)
	if err != nil {
		return nil, err
	}

	jobIDs := make([]string, 0, len(functionIDs))
	for _, functionID := range functionIDs {
		job := template
		job.FunctionID = functionID
		if template.SourceID != "" {
			job.ID = JobID(template.SourceID, template.GameServerID, template.ItemKind, template.ItemID, functionID)
		} else {
			job.ID = uuid.NewString()
		}
		if err := q.Add(ctx, job); err != nil {
			return jobIDs, fmt.Errorf("failed to fan out %s %s: %w", template.ItemKind, template.ItemID, err)
		}
		metrics.RecordJobEnqueued(string(q.Name()))
		jobIDs = append(jobIDs, job.ID)
	}

	if len(jobIDs) > 0 {
		common.LoggerFromContext(ctx).Debug("trigger fanned out",
			"kind", string(template.ItemKind), "item_id", template.ItemID, "jobs", len(jobIDs))
	}
	return jobIDs, nil
}
