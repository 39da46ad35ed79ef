package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/application/trigger"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// NewFunctionCommand creates the function command with subcommands
func NewFunctionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "function",
		Aliases: []string{"fn"},
		Short:   "Manage functions and their trigger assignments",
		Long: `Store function code and link it to commands, hooks and cron jobs.

A function may be assigned to any number of triggers; each assignment names
exactly one trigger kind.

Examples:
  takaro-connector function create --name greet --file greet.lua
  takaro-connector function assign --function <id> --kind command --item <command-id>
  takaro-connector function unassign --function <id> --kind hook --item <hook-id>
  takaro-connector function related --item <command-id> --ids-only`,
	}

	cmd.AddCommand(newFunctionCreateCommand())
	cmd.AddCommand(newFunctionAssignCommand(true))
	cmd.AddCommand(newFunctionAssignCommand(false))
	cmd.AddCommand(newFunctionRelatedCommand())

	return cmd
}

func newFunctionCreateCommand() *cobra.Command {
	var id, name, file, code string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a function (creates or replaces by id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				code = string(raw)
			}
			if code == "" {
				return shared.NewValidationError("code", "provide --file or --code")
			}
			if id == "" {
				id = uuid.NewString()
			}

			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				fn, err := function.NewFunction(id, name, code, a.clock)
				if err != nil {
					return err
				}
				if err := repos.Functions.Save(ctx, fn); err != nil {
					return err
				}
				fmt.Printf("✓ Function stored: %s\n", fn.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Function id (default: random uuid)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&file, "file", "", "Read code from this file")
	cmd.Flags().StringVar(&code, "code", "", "Inline code")
	return cmd
}

func newFunctionAssignCommand(assign bool) *cobra.Command {
	var functionID, kind, itemID string

	use, short, verb := "assign", "Link a function to a trigger", "assigned"
	if !assign {
		use, short, verb = "unassign", "Remove a function-to-trigger link", "unassigned"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := function.ParseItemKind(kind)
			if err != nil {
				return err
			}

			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				resolver := trigger.NewResolver(repos.Assignments, repos.Functions, a.logger)
				if assign {
					err = resolver.Assign(ctx, k, itemID, functionID)
				} else {
					err = resolver.Unassign(ctx, k, itemID, functionID)
				}
				if err != nil {
					return err
				}
				fmt.Printf("✓ Function %s %s to %s %s\n", functionID, verb, k, itemID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&functionID, "function", "", "Function id (required)")
	cmd.Flags().StringVar(&kind, "kind", "", "Trigger kind: command, cronjob or hook (required)")
	cmd.Flags().StringVar(&itemID, "item", "", "Trigger id (required)")
	_ = cmd.MarkFlagRequired("function")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func newFunctionRelatedCommand() *cobra.Command {
	var itemID string
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "related",
		Short: "Show the functions assigned to a trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepositories(cmd.Context(), func(ctx context.Context, a *app, repos *repositories) error {
				resolver := trigger.NewResolver(repos.Assignments, repos.Functions, a.logger)
				related, err := resolver.GetRelatedFunctions(ctx, itemID, idsOnly)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(related, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "Command, cron job or hook id (required)")
	cmd.Flags().BoolVar(&idsOnly, "ids-only", false, "Print only function ids")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}
