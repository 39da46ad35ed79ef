// Package command turns chat messages into command executions.
package command

import (
	"context"
	"fmt"

	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/module"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// Service matches chat against the commands of the modules installed on the
// server the message came from.
type Service struct {
	modules       module.Repository
	settings      gameserver.SettingsRepository
	resolver      *trigger.Resolver
	commands      *queue.Queue[queue.ExecutionJob]
	defaultPrefix string
}

func NewService(
	modules module.Repository,
	settings gameserver.SettingsRepository,
	resolver *trigger.Resolver,
	fabric *queue.Fabric,
	defaultPrefix string,
) *Service {
	if defaultPrefix == "" {
		defaultPrefix = module.DefaultCommandPrefix
	}
	return &Service{
		modules:       modules,
		settings:      settings,
		resolver:      resolver,
		commands:      fabric.Commands,
		defaultPrefix: defaultPrefix,
	}
}

// Prefix returns the command prefix configured for gameServerID
func (s *Service) Prefix(ctx context.Context, gameServerID string) (string, error) {
	if s.settings == nil {
		return s.defaultPrefix, nil
	}
	prefix, ok, err := s.settings.GetSetting(ctx, gameServerID, gameserver.SettingCommandPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to read command prefix: %w", err)
	}
	if !ok || prefix == "" {
		return s.defaultPrefix, nil
	}
	return prefix, nil
}

// HandleChatMessage enqueues one command job per function assigned to each
// matching command and returns how many were enqueued. Malformed arguments
// are returned as a ValidationError before anything is enqueued.
func (s *Service) HandleChatMessage(ctx context.Context, job queue.EventJob) (int, error) {
	if job.Event.Type != gameserver.EventChatMessage {
		return 0, nil
	}

	prefix, err := s.Prefix(ctx, job.GameServerID)
	if err != nil {
		return 0, err
	}
	triggerWord, rest, ok := module.SplitChatCommand(job.Event.Msg, prefix)
	if !ok {
		return 0, nil
	}

	matches, err := s.modules.FindCommandsByTrigger(ctx, job.GameServerID, triggerWord)
	if err != nil {
		return 0, fmt.Errorf("failed to find commands: %w", err)
	}

	templates := make([]queue.ExecutionJob, 0, len(matches))
	for _, m := range matches {
		if !m.Command.Enabled || !m.Command.MatchesTrigger(triggerWord) {
			continue
		}
		args, err := m.Command.ParseArguments(rest)
		if err != nil {
			return 0, err
		}
		templates = append(templates, queue.ExecutionJob{
			SourceID:     job.ID,
			DomainID:     job.DomainID,
			GameServerID: job.GameServerID,
			ItemKind:     function.ItemKindCommand,
			ItemID:       m.Command.ID,
			Data: map[string]any{
				"player":      job.Event.Player,
				"arguments":   args,
				"chatMessage": job.Event,
				"module":      m.Installation.Ref(),
				"commandId":   m.Command.ID,
			},
		})
	}

	enqueued := 0
	for _, template := range templates {
		ids, err := s.resolver.FanOut(ctx, s.commands, template)
		enqueued += len(ids)
		if err != nil {
			return enqueued, err
		}
	}
	return enqueued, nil
}
