package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "takaro-connector",
		Short: "Takaro connector - bridges game servers to module functions",
		Long: `Takaro connector keeps a live connection to every registered game server,
turns their events into jobs and runs the module functions assigned to the
matching commands, hooks and cron jobs.

Examples:
  takaro-connector serve
  takaro-connector migrate
  takaro-connector gameserver add --domain dom-1 --name local --type MOCK --info '{}'
  takaro-connector function create --name greet --file greet.lua
  takaro-connector function assign --function <id> --kind command --item <command-id>
  takaro-connector chat --domain dom-1 --gameserver <id> --player alice "/hello world"
  takaro-connector keygen`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("TAKARO_CONFIG"),
		"Path to config file (default: search ./config.yaml, ./config, /etc/takaro-connector)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewGameServerCommand())
	rootCmd.AddCommand(NewFunctionCommand())
	rootCmd.AddCommand(NewChatCommand())
	rootCmd.AddCommand(NewKeygenCommand())
	rootCmd.AddCommand(NewSandboxExecCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
