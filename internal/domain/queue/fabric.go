package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Queue is a typed producer handle over one named backend queue
type Queue[T any] struct {
	name    Name
	backend Backend
}

func (q *Queue[T]) Name() Name {
	return q.name
}

// Add enqueues job and returns once the backend accepted it
func (q *Queue[T]) Add(ctx context.Context, job T) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode %s job: %w", q.name, err)
	}
	if err := q.backend.Enqueue(ctx, q.name, body); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", q.name, err)
	}
	return nil
}

// Process consumes this queue with concurrency handlers until ctx is done
func (q *Queue[T]) Process(ctx context.Context, concurrency int, fn func(ctx context.Context, job T) error) error {
	return q.backend.Consume(ctx, q.name, concurrency, func(ctx context.Context, d Delivery) error {
		job, err := Decode[T](d)
		if err != nil {
			return err
		}
		return fn(ctx, job)
	})
}

// Decode unmarshals a delivery body. Undecodable bodies are permanent failures.
func Decode[T any](d Delivery) (T, error) {
	var job T
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return job, Permanent(fmt.Errorf("failed to decode %s job: %w", d.Queue, err))
	}
	return job, nil
}

// Worker consumes one or more queues
type Worker interface {
	Queues() []Name
	Handle(ctx context.Context, d Delivery) error
}

// Only narrows w to the listed queues, so one worker can be registered with
// a different concurrency per queue.
func Only(w Worker, names ...Name) Worker {
	return narrowed{Worker: w, names: names}
}

type narrowed struct {
	Worker
	names []Name
}

func (n narrowed) Queues() []Name { return n.names }

type registration struct {
	worker      Worker
	concurrency int
}

// Fabric owns the fixed set of queues. Build it once at process start and
// hand it to every producer and worker.
type Fabric struct {
	Events    *Queue[EventJob]
	Commands  *Queue[ExecutionJob]
	CronJobs  *Queue[ExecutionJob]
	Hooks     *Queue[ExecutionJob]
	Connector *Queue[ConnectorJob]

	backend       Backend
	registrations []registration
}

func NewFabric(backend Backend) *Fabric {
	return &Fabric{
		Events:    &Queue[EventJob]{name: Events, backend: backend},
		Commands:  &Queue[ExecutionJob]{name: Commands, backend: backend},
		CronJobs:  &Queue[ExecutionJob]{name: CronJobs, backend: backend},
		Hooks:     &Queue[ExecutionJob]{name: Hooks, backend: backend},
		Connector: &Queue[ConnectorJob]{name: Connector, backend: backend},
		backend:   backend,
	}
}

// Execution returns the execution queue with the given name
func (f *Fabric) Execution(name Name) (*Queue[ExecutionJob], error) {
	switch name {
	case Commands:
		return f.Commands, nil
	case CronJobs:
		return f.CronJobs, nil
	case Hooks:
		return f.Hooks, nil
	default:
		return nil, fmt.Errorf("%s is not an execution queue", name)
	}
}

// RegisterWorker attaches w to each of its queues. Call before Run.
func (f *Fabric) RegisterWorker(w Worker, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	f.registrations = append(f.registrations, registration{worker: w, concurrency: concurrency})
}

// Run consumes every registered queue until ctx is done. The first transport
// failure cancels the other consumers and is returned.
func (f *Fabric) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, reg := range f.registrations {
		for _, name := range reg.worker.Queues() {
			reg, name := reg, name
			g.Go(func() error {
				if err := f.backend.Consume(ctx, name, reg.concurrency, reg.worker.Handle); err != nil {
					return fmt.Errorf("consumer for %s stopped: %w", name, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (f *Fabric) Close() error {
	return f.backend.Close()
}
