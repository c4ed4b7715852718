package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jakechorley/shift-roster/pkg/core/services"
	"github.com/jakechorley/shift-roster/pkg/export"
)

// ExportCmd creates the export command
func ExportCmd(app *AppContext) *cobra.Command {
	var formatFlag, out string

	cmd := &cobra.Command{
		Use:   "export <schedule_id>",
		Short: "Export a schedule as an xlsx roster or an ics calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduleID := args[0]
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("roster-%s.%s", scheduleID, format)
			}

			var w io.Writer = os.Stdout
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := services.ExportSchedule(app.Ctx, app.Database, app.Logger, scheduleID, format, w); err != nil {
				return err
			}

			if out != "-" {
				fmt.Printf("\n✓ Schedule exported to %s\n\n", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "xlsx", "xlsx or ics")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, - for stdout (default roster-<id>.<format>)")

	return cmd
}
