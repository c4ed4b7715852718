package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := app.Database.(migrator)
			if !ok {
				fmt.Printf("\n✓ %s schema is migrated on open, nothing to do\n\n", app.Cfg.Storage.Driver)
				return nil
			}

			if err := m.RunMigrations(app.Ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			fmt.Printf("\n✓ Migrations applied\n\n")
			return nil
		},
	}
}
