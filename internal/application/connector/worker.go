package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Worker applies connector jobs to the manager. OnApplied hooks run after
// every successful job, which is how the cron scheduler learns about
// configuration changes.
type Worker struct {
	manager   *Manager
	onApplied []func(ctx context.Context)
}

func NewWorker(manager *Manager, onApplied ...func(ctx context.Context)) *Worker {
	return &Worker{manager: manager, onApplied: onApplied}
}

func (w *Worker) Queues() []queue.Name {
	return []queue.Name{queue.Connector}
}

func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	job, err := queue.Decode[queue.ConnectorJob](d)
	if err != nil {
		return err
	}
	if err := w.Apply(ctx, job); err != nil {
		if isConfigError(err) {
			return queue.Permanent(err)
		}
		return err
	}
	for _, fn := range w.onApplied {
		fn(ctx)
	}
	return nil
}

// Apply performs one lifecycle operation
func (w *Worker) Apply(ctx context.Context, job queue.ConnectorJob) error {
	switch job.Operation {
	case queue.ConnectorAdd:
		return w.manager.Add(ctx, job.DomainID, job.GameServerID)
	case queue.ConnectorRemove:
		return w.manager.Remove(ctx, job.GameServerID)
	case queue.ConnectorUpdate:
		return w.manager.Update(ctx, job.DomainID, job.GameServerID)
	default:
		return queue.Permanent(fmt.Errorf("unknown connector operation %q", job.Operation))
	}
}

// isConfigError reports failures a redelivery cannot fix
func isConfigError(err error) bool {
	var notFound *shared.NotFoundError
	var notImpl *shared.NotImplementedError
	var invalid *shared.ValidationError
	return errors.As(err, &notFound) || errors.As(err, &notImpl) || errors.As(err, &invalid)
}
