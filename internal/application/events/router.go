// Package events consumes forwarded game events and routes them to command
// and hook matching.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Store persists routed events
type Store interface {
	Record(ctx context.Context, job queue.EventJob) error
}

// Relay fans events out to live subscribers
type Relay interface {
	Publish(ctx context.Context, job queue.EventJob) error
}

// NopRelay drops everything
type NopRelay struct{}

func (NopRelay) Publish(ctx context.Context, job queue.EventJob) error { return nil }

// Router is the events queue worker
type Router struct {
	mediator common.Mediator
	store    Store
	relay    Relay
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewRouter(mediator common.Mediator, store Store, relay Relay, logger *slog.Logger) *Router {
	if relay == nil {
		relay = NopRelay{}
	}
	return &Router{
		mediator: mediator,
		store:    store,
		relay:    relay,
		logger:   common.OrDiscard(logger),
		tracer:   otel.Tracer("github.com/andrescamacho/takaro-connector/internal/application/events"),
	}
}

func (r *Router) Queues() []queue.Name {
	return []queue.Name{queue.Events}
}

func (r *Router) Handle(ctx context.Context, d queue.Delivery) error {
	job, err := queue.Decode[queue.EventJob](d)
	if err != nil {
		return err
	}
	return r.Route(ctx, job)
}

// Route stores, relays and matches one event. Validation failures are logged
// and swallowed so the event is not redelivered.
func (r *Router) Route(ctx context.Context, job queue.EventJob) error {
	ctx, span := r.tracer.Start(ctx, "events.route", trace.WithAttributes(
		attribute.String("event.type", string(job.Type)),
		attribute.String("domain.id", job.DomainID),
		attribute.String("gameserver.id", job.GameServerID),
	))
	defer span.End()

	logger := r.logger.With("job_id", job.ID, "domain_id", job.DomainID, "gameserver_id", job.GameServerID, "queue", string(queue.Events))
	ctx = common.WithLogger(ctx, logger)

	if job.Type == "" {
		job.Type = job.Event.Type
	}

	if err := r.store.Record(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		return err
	}
	if err := r.relay.Publish(ctx, job); err != nil {
		logger.Warn("failed to relay event", "error", err)
	}

	enqueued, rejected, err := r.match(ctx, job)
	span.SetAttributes(attribute.Int("jobs.enqueued", enqueued))
	if rejected != nil {
		logger.Warn("event rejected", "field", rejected.Field, "reason", rejected.Message)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		return err
	}

	logger.Debug("event routed", "type", string(job.Type), "enqueued", enqueued)
	return nil
}

// match dispatches job to hook matching, and to command matching for chat.
// Validation failures are returned separately from errors worth retrying.
func (r *Router) match(ctx context.Context, job queue.EventJob) (int, *shared.ValidationError, error) {
	requests := []common.Request{&MatchHooksRequest{Job: job}}
	if job.Type == gameserver.EventChatMessage {
		requests = append([]common.Request{&MatchCommandsRequest{Job: job}}, requests...)
	}

	total := 0
	var rejected *shared.ValidationError
	var errs []error
	for _, req := range requests {
		resp, err := r.mediator.Send(ctx, req)
		if res, ok := resp.(*MatchResponse); ok && res != nil {
			total += res.Enqueued
		}
		if err == nil {
			continue
		}
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			rejected = verr
			continue
		}
		errs = append(errs, fmt.Errorf("%T: %w", req, err))
	}
	return total, rejected, errors.Join(errs...)
}
