// Package hook fires event hooks of installed modules.
package hook

import (
	"context"
	"fmt"

	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

type Service struct {
	modules  module.Repository
	resolver *trigger.Resolver
	hooks    *queue.Queue[queue.ExecutionJob]
}

func NewService(modules module.Repository, resolver *trigger.Resolver, fabric *queue.Fabric) *Service {
	return &Service{modules: modules, resolver: resolver, hooks: fabric.Hooks}
}

// HandleEvent enqueues a hook job per function of every installed hook that
// matches the event. A hook with a broken regex is skipped and logged so the
// other hooks still fire.
func (s *Service) HandleEvent(ctx context.Context, job queue.EventJob) (int, error) {
	installed, err := s.modules.FindHooksByEventType(ctx, job.GameServerID, job.Event.Type)
	if err != nil {
		return 0, fmt.Errorf("failed to find hooks: %w", err)
	}

	logger := common.LoggerFromContext(ctx)
	enqueued := 0
	for _, ih := range installed {
		ok, err := ih.Hook.Matches(job.Event)
		if err != nil {
			logger.Warn("skipping hook", "hook_id", ih.Hook.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		ids, err := s.resolver.FanOut(ctx, s.hooks, queue.ExecutionJob{
			SourceID:     job.ID,
			DomainID:     job.DomainID,
			GameServerID: job.GameServerID,
			ItemKind:     function.ItemKindHook,
			ItemID:       ih.Hook.ID,
			Data: map[string]any{
				"eventData": job.Event,
				"module":    ih.Installation.Ref(),
			},
		})
		enqueued += len(ids)
		if err != nil {
			return enqueued, err
		}
	}
	return enqueued, nil
}
