package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/takaro-connector/internal/infrastructure/database"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("Migrating %s database...\n", a.cfg.Database.Type)
			if err := database.AutoMigrate(a.db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Println("✓ Schema up to date")
			return nil
		},
	}
}
