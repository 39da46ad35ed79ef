package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/adapters/api"
	"github.com/andrescamacho/takaro-connector/internal/adapters/sandbox"
)

// NewSandboxExecCommand creates the hidden child entry point of the process
// sandbox. It reads one invocation from stdin and writes the outcome to
// stdout; it never loads configuration, since the child runs with an empty
// environment.
func NewSandboxExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:    sandbox.ChildCommand,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sandbox.ServeChild(cmd.Context(), os.Stdin, os.Stdout, func(baseURL string) sandbox.Platform {
				return api.NewPlatformClient(api.ClientOptions{BaseURL: baseURL}, nil)
			})
		},
	}
}
