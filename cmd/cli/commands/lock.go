package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/shift-roster/pkg/core/services"
)

// LockCmd creates the lock command
func LockCmd(app *AppContext) *cobra.Command {
	var employeeID, teamID string

	cmd := &cobra.Command{
		Use:   "lock <schedule_id> <slot_id>",
		Short: "Manually assign a slot and lock it against reruns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := services.LockAssignment(app.Ctx, app.Database, app.Logger, services.LockAssignmentRequest{
				ScheduleID: args[0],
				SlotID:     args[1],
				EmployeeID: employeeID,
				TeamID:     teamID,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Slot %s locked to %s\n\n", a.Slot.Key(), a.AssigneeID())
			return nil
		},
	}

	cmd.Flags().StringVar(&employeeID, "employee", "", "Employee to assign")
	cmd.Flags().StringVar(&teamID, "team", "", "Team to assign (team slots only)")
	cmd.MarkFlagsOneRequired("employee", "team")
	cmd.MarkFlagsMutuallyExclusive("employee", "team")

	return cmd
}
