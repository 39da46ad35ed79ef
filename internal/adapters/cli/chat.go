package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// NewChatCommand creates the chat command
func NewChatCommand() *cobra.Command {
	var domainID, gameServerID, playerName, playerID string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Inject a chat message as if a player had typed it",
		Long: `Put a chat-message event on the events queue for a game server.

Useful with MOCK servers to exercise command matching end to end. Needs the
redis queue backend to reach a connector running in another process.

Example:
  takaro-connector chat --domain dom-1 --gameserver <id> --player alice "/teleport home"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if playerID == "" {
				playerID = playerName
			}
			msg := strings.Join(args, " ")

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ev := gameserver.NewChatMessage(
				gameserver.Player{GameID: playerID, Name: playerName},
				gameserver.ChatChannelGlobal,
				msg,
				a.clock.Now(),
			)
			return injectEvent(cmd.Context(), a, domainID, gameServerID, ev)
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "Domain id (required)")
	cmd.Flags().StringVar(&gameServerID, "gameserver", "", "Game server id (required)")
	cmd.Flags().StringVar(&playerName, "player", "operator", "Player name")
	cmd.Flags().StringVar(&playerID, "player-id", "", "Player game id (default: the name)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("gameserver")

	return cmd
}

func injectEvent(ctx context.Context, a *app, domainID, gameServerID string, ev gameserver.Event) error {
	backend, redisClient, err := a.newBackend()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	fabric := domainqueue.NewFabric(backend)
	defer fabric.Close()

	job := domainqueue.EventJob{
		ID:           uuid.NewString(),
		Type:         ev.Type,
		Event:        ev,
		DomainID:     domainID,
		GameServerID: gameServerID,
	}
	if err := fabric.Events.Add(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	fmt.Printf("✓ Event queued: %s (%s)\n", job.ID, ev.Type)
	return nil
}
