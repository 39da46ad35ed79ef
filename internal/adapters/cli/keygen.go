package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/adapters/secrets"
)

// NewKeygenCommand creates the keygen command
func NewKeygenCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the age identity that seals connection info",
		Long: `Generate a new age X25519 identity.

Point secrets.identity_file (or TAKARO_SECRETS_IDENTITY_FILE) at the written
file. Connection info sealed with one identity cannot be opened with another.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, recipient, err := secrets.GenerateIdentity()
			if err != nil {
				return err
			}

			content := fmt.Sprintf("# public key: %s\n%s\n", recipient, identity)
			if output == "" {
				fmt.Print(content)
				return nil
			}

			if err := os.WriteFile(output, []byte(content), 0o600); err != nil {
				return fmt.Errorf("failed to write identity: %w", err)
			}
			fmt.Printf("✓ Identity written to %s\n", output)
			fmt.Printf("  Public key: %s\n", recipient)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the identity to this file instead of stdout")
	return cmd
}
