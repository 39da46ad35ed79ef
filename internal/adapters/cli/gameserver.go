package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// NewGameServerCommand creates the gameserver command with subcommands
func NewGameServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gameserver",
		Aliases: []string{"gs"},
		Short:   "Register game servers and notify the connection manager",
		Long: `Manage game server registrations.

Changes are stored in the database and announced on the connector queue, so a
running connector picks them up without a restart. With the memory queue
backend the announcement only reaches a connector in the same process; a
separate connector reconciles on its next start.

Examples:
  takaro-connector gameserver add --domain dom-1 --name local --type MOCK --info '{"eventInterval":"10s"}'
  takaro-connector gameserver update --domain dom-1 --id <id> --info '{"host":"10.0.0.5","rconPort":28016,"rconPassword":"pw"}'
  takaro-connector gameserver remove --domain dom-1 --id <id>
  takaro-connector gameserver list --domain dom-1`,
	}

	cmd.AddCommand(newGameServerAddCommand())
	cmd.AddCommand(newGameServerUpdateCommand())
	cmd.AddCommand(newGameServerRemoveCommand())
	cmd.AddCommand(newGameServerListCommand())
	cmd.AddCommand(newGameServerSetCommand())

	return cmd
}

func newGameServerAddCommand() *cobra.Command {
	var domainID, id, name, gameType, info string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := gameserver.ParseGameType(gameType)
			if err := t.Validate(); err != nil {
				return err
			}
			if !json.Valid([]byte(info)) {
				return shared.NewValidationError("info", "must be a JSON object")
			}
			if id == "" {
				id = uuid.NewString()
			}

			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				server := &gameserver.GameServer{
					ID:             id,
					DomainID:       domainID,
					Name:           name,
					Type:           t,
					ConnectionInfo: json.RawMessage(info),
					Enabled:        !disabled,
				}
				if err := repos.GameServers.Save(ctx, server); err != nil {
					return err
				}
				fmt.Printf("✓ Game server registered: %s\n", server.ID)
				if disabled {
					return nil
				}
				return announce(ctx, a, domainqueue.ConnectorAdd, domainID, server.ID)
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "Owning domain id (required)")
	cmd.Flags().StringVar(&id, "id", "", "Game server id (default: random uuid)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&gameType, "type", "", "Game type: MOCK, RUST or SEVENDAYSTODIE (required)")
	cmd.Flags().StringVar(&info, "info", "{}", "Connection info as JSON")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Register without connecting")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newGameServerUpdateCommand() *cobra.Command {
	var domainID, id, name, info string
	var enable, disable bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change a game server and reconnect it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			if info != "" && !json.Valid([]byte(info)) {
				return shared.NewValidationError("info", "must be a JSON object")
			}

			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				server, err := repos.GameServers.Get(ctx, domainID, id)
				if err != nil {
					return err
				}
				if name != "" {
					server.Name = name
				}
				if info != "" {
					server.ConnectionInfo = json.RawMessage(info)
				}
				switch {
				case enable:
					server.Enabled = true
				case disable:
					server.Enabled = false
				}
				if err := repos.GameServers.Save(ctx, server); err != nil {
					return err
				}
				fmt.Printf("✓ Game server updated: %s\n", server.ID)

				op := domainqueue.ConnectorUpdate
				if !server.Enabled {
					op = domainqueue.ConnectorRemove
				}
				return announce(ctx, a, op, domainID, id)
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "Owning domain id (required)")
	cmd.Flags().StringVar(&id, "id", "", "Game server id (required)")
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&info, "info", "", "New connection info as JSON")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable the server")
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable the server and drop its connection")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newGameServerRemoveCommand() *cobra.Command {
	var domainID, id string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete a game server and drop its connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				if err := repos.GameServers.Delete(ctx, domainID, id); err != nil {
					return err
				}
				fmt.Printf("✓ Game server removed: %s\n", id)
				return announce(ctx, a, domainqueue.ConnectorRemove, domainID, id)
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "Owning domain id (required)")
	cmd.Flags().StringVar(&id, "id", "", "Game server id (required)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newGameServerListCommand() *cobra.Command {
	var domainID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered game servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				domains := []string{domainID}
				if domainID == "" {
					all, err := repos.GameServers.ListDomains(ctx)
					if err != nil {
						return err
					}
					domains = all
				}

				fmt.Printf("%-38s %-20s %-16s %-8s %s\n", "ID", "DOMAIN", "TYPE", "ENABLED", "NAME")
				total := 0
				for _, d := range domains {
					servers, err := repos.GameServers.ListByDomain(ctx, d)
					if err != nil {
						return err
					}
					for _, s := range servers {
						fmt.Printf("%-38s %-20s %-16s %-8t %s\n", s.ID, s.DomainID, s.Type, s.Enabled, s.Name)
						total++
					}
				}
				fmt.Printf("\nTotal: %d game servers\n", total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "Only list this domain")
	return cmd
}

func newGameServerSetCommand() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a per-server setting such as commandPrefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				if err := repos.GameServers.SetSetting(ctx, id, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("✓ %s = %q\n", args[0], args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Game server id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// withRepositories loads the app, runs fn and closes everything
func withRepositories(ctx context.Context, fn func(ctx context.Context, a *app, repos *repositories) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	repos, err := a.repositories()
	if err != nil {
		return err
	}
	return fn(ctx, a, repos)
}

// announce enqueues a connector job on the configured backend
func announce(ctx context.Context, a *app, op domainqueue.ConnectorOperation, domainID, gameServerID string) error {
	backend, redisClient, err := a.newBackend()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	fabric := domainqueue.NewFabric(backend)
	defer fabric.Close()

	job := domainqueue.ConnectorJob{
		ID:           uuid.NewString(),
		Operation:    op,
		DomainID:     domainID,
		GameServerID: gameServerID,
	}
	if err := fabric.Connector.Add(ctx, job); err != nil {
		return fmt.Errorf("failed to announce %s: %w", op, err)
	}
	if a.cfg.Queue.Backend == "memory" {
		fmt.Println("  (memory queue: a separate connector applies this on its next start)")
	}
	return nil
}
