package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/sqlite"
)

// referenceImporter is implemented by stores that own their reference data
type referenceImporter interface {
	ImportReference(ctx context.Context, ref *sqlite.Reference) error
}

// SeedCmd creates the seed command
func SeedCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <reference_file>",
		Short: "Load employees, teams, templates and demand from a YAML file (sqlite only)",
		Long: `Replace one tenant's reference data (employees, teams, shift templates,
demand, leave, availability and rule definitions) with the contents of a YAML
file. Only the local sqlite store owns its reference data; with postgres these
tables are maintained by other systems.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			importer, ok := app.Database.(referenceImporter)
			if !ok {
				return fmt.Errorf("seeding is not supported by the %s store", app.Cfg.Storage.Driver)
			}

			ref, err := sqlite.LoadReference(args[0])
			if err != nil {
				return err
			}

			if err := importer.ImportReference(app.Ctx, ref); err != nil {
				return fmt.Errorf("failed to import reference data: %w", err)
			}

			app.Logger.Info("Reference data imported",
				zap.String("tenant_id", ref.TenantID),
				zap.Int("employees", len(ref.Employees)),
				zap.Int("templates", len(ref.Templates)))

			fmt.Printf("\n✓ Tenant %s seeded: %d employees, %d teams, %d templates, %d demand rows\n\n",
				ref.TenantID, len(ref.Employees), len(ref.Teams), len(ref.Templates), len(ref.Demand))
			return nil
		},
	}
}
