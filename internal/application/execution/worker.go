// Package execution consumes the command, cron job and hook queues and runs
// each job's function in the sandbox.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andrescamacho/takaro-connector/internal/adapters/auth"
	"github.com/andrescamacho/takaro-connector/internal/adapters/metrics"
	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// DefaultTokenMargin is how much validity a job token must have left
const DefaultTokenMargin = time.Minute

// Worker runs execution jobs.
//
// Delivery is at-least-once, so a job id that already has a record is
// skipped. Failures inside user code are stored as unsuccessful records and
// acknowledged; only storage and token failures are returned for retry.
type Worker struct {
	functions function.Repository
	records   execution.Repository
	executor  execution.Executor
	tokens    execution.TokenSource
	archive   execution.LogArchive
	clock     shared.Clock
	logger    *slog.Logger
	tracer    trace.Tracer

	TokenMargin time.Duration
}

// NewWorker builds a worker. archive may be nil.
func NewWorker(
	functions function.Repository,
	records execution.Repository,
	executor execution.Executor,
	tokens execution.TokenSource,
	archive execution.LogArchive,
	clock shared.Clock,
	logger *slog.Logger,
) *Worker {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Worker{
		functions:   functions,
		records:     records,
		executor:    executor,
		tokens:      tokens,
		archive:     archive,
		clock:       clock,
		logger:      common.OrDiscard(logger),
		tracer:      otel.Tracer("github.com/andrescamacho/takaro-connector/internal/application/execution"),
		TokenMargin: DefaultTokenMargin,
	}
}

func (w *Worker) Queues() []queue.Name {
	return []queue.Name{queue.Commands, queue.CronJobs, queue.Hooks}
}

func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	job, err := queue.Decode[queue.ExecutionJob](d)
	if err != nil {
		return err
	}
	_, err = w.Run(ctx, d.Queue, job)
	return err
}

// Run executes one job and returns its stored record, or nil when the job
// was skipped.
func (w *Worker) Run(ctx context.Context, name queue.Name, job queue.ExecutionJob) (*execution.Record, error) {
	ctx, span := w.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("queue", string(name)),
		attribute.String("function.id", job.FunctionID),
		attribute.String("domain.id", job.DomainID),
	))
	defer span.End()

	logger := w.logger.With("job_id", job.ID, "function_id", job.FunctionID, "domain_id", job.DomainID,
		"gameserver_id", job.GameServerID, "queue", string(name))
	ctx = common.WithLogger(ctx, logger)

	rec, err := w.run(ctx, logger, name, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		return nil, err
	}
	if rec != nil {
		span.SetAttributes(attribute.Bool("execution.success", rec.Success))
	}
	return rec, nil
}

func (w *Worker) run(ctx context.Context, logger *slog.Logger, name queue.Name, job queue.ExecutionJob) (*execution.Record, error) {
	done, err := w.records.Exists(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if done {
		metrics.RecordDuplicateJob(string(name))
		logger.Info("skipping duplicate delivery")
		return nil, nil
	}

	fn, err := w.functions.FindByID(ctx, job.FunctionID)
	if err != nil {
		var notFound *shared.NotFoundError
		if errors.As(err, &notFound) {
			logger.Warn("function no longer exists")
			return nil, nil
		}
		return nil, err
	}

	token, err := w.token(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token for domain %s: %w", job.DomainID, err)
	}

	started := w.clock.Now()
	res, err := w.executor.Execute(ctx, execution.Request{
		FunctionID: fn.ID,
		DomainID:   job.DomainID,
		Code:       fn.Code,
		Data:       job.Data,
		Token:      token,
	})
	if err != nil {
		logger.Warn("function could not run", "error", err)
		res = execution.Failed(nil, err)
	}
	duration := w.clock.Now().Sub(started)

	rec := &execution.Record{
		JobID:        job.ID,
		FunctionID:   fn.ID,
		DomainID:     job.DomainID,
		GameServerID: job.GameServerID,
		ItemKind:     job.ItemKind,
		ItemID:       job.ItemID,
		Success:      res.Success,
		Logs:         res.Logs,
		StartedAt:    started,
		Duration:     duration,
	}

	if w.archive != nil {
		key, err := w.archive.Archive(ctx, rec)
		if err != nil {
			logger.Warn("failed to archive execution logs", "error", err)
		} else {
			rec.ArchiveKey = key
		}
	}

	saved, err := w.records.Save(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !saved {
		metrics.RecordDuplicateJob(string(name))
		logger.Info("concurrent delivery already stored this job")
		return nil, nil
	}

	metrics.RecordExecution(string(job.ItemKind), res.Success, duration)
	logger.Info("function executed", "success", res.Success, "duration_ms", duration.Milliseconds(), "log_lines", len(res.Logs))
	return rec, nil
}

// token reuses the job's token while it has enough validity left
func (w *Worker) token(ctx context.Context, job queue.ExecutionJob) (string, error) {
	if job.Token != "" && !auth.ExpiresWithin(job.Token, w.clock.Now(), w.TokenMargin) {
		return job.Token, nil
	}
	return w.tokens.Token(ctx, job.DomainID)
}
