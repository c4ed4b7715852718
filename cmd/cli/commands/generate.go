package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/services"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorBold   = "\033[1m"
)

// GenerateCmd creates the generate command
func GenerateCmd(app *AppContext) *cobra.Command {
	var (
		tenantID, from, to, algorithm, templateID, teamID, rerun string
		seed                                                     int64
		preserveEdits                                            bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a schedule for a date range",
		Long: `Expand demand into slots for the date range and fill them with the chosen
algorithm (greedy, backtracking, annealing or scorerank). Use --rerun to
regenerate an existing schedule, keeping its manual edits with --preserve-edits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.GenerateRosterRequest{
				TenantID:            tenantID,
				TemplateID:          templateID,
				ExistingScheduleID:  rerun,
				Algorithm:           model.Algorithm(algorithm),
				Seed:                seed,
				PreserveManualEdits: preserveEdits,
				TeamID:              teamID,
			}
			var err error
			if from != "" {
				if req.StartDate, err = model.ParseDate(from); err != nil {
					return err
				}
			}
			if to != "" {
				if req.EndDate, err = model.ParseDate(to); err != nil {
					return err
				}
			}

			app.Logger.Debug("generate command",
				zap.String("tenant_id", tenantID),
				zap.String("from", from),
				zap.String("to", to),
				zap.String("algorithm", algorithm),
				zap.Int64("seed", seed))

			opts, err := app.Cfg.RosterOptions(req.StartDate, req.EndDate)
			if err != nil {
				return fmt.Errorf("failed to build roster options: %w", err)
			}

			result, err := services.GenerateRoster(app.Ctx, app.Database, app.Registry, opts, app.Logger, req)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			printResult(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant to schedule (required)")
	cmd.Flags().StringVar(&from, "from", "", "First date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "greedy, backtracking, annealing or scorerank (default greedy)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for deterministic tie-breaking")
	cmd.Flags().StringVar(&templateID, "template", "", "Restrict the run to one shift template")
	cmd.Flags().StringVar(&teamID, "team", "", "Restrict the employee pool to one team")
	cmd.Flags().StringVar(&rerun, "rerun", "", "Existing schedule to regenerate")
	cmd.Flags().BoolVar(&preserveEdits, "preserve-edits", false, "Keep the existing schedule's locked assignments")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

// coverageColor picks a color for the share of filled slots
func coverageColor(filled, total int, green, yellow, red string) string {
	if total == 0 || filled == total {
		return green
	}
	if filled*10 >= total*9 {
		return yellow
	}
	return red
}

func printResult(w io.Writer, result *services.GenerateRosterResult) {
	s := result.Schedule
	t := result.Telemetry

	fmt.Fprintf(w, "\n%s📅 Schedule %s%s\n\n", colorBold, s.ID, colorReset)
	fmt.Fprintf(w, "Range:      %s → %s\n", s.StartDate.Format(model.DateLayout), s.EndDate.Format(model.DateLayout))
	fmt.Fprintf(w, "Algorithm:  %s (seed %d)\n", s.Algorithm, s.Seed)
	if s.ParentID != "" {
		fmt.Fprintf(w, "Rerun of:   %s\n", s.ParentID)
	}
	color := coverageColor(t.SlotsFilled, t.SlotsTotal, colorGreen, colorYellow, colorRed)
	fmt.Fprintf(w, "Coverage:   %s%d/%d slots%s (%d locked)\n", color, t.SlotsFilled, t.SlotsTotal, colorReset, t.LockedSlots)
	fmt.Fprintf(w, "Score:      %.2f, %d hard violations\n", t.Score, t.HardViolations)
	if t.Iterations > 0 {
		fmt.Fprintf(w, "Search:     %d iterations, %d accepted\n", t.Iterations, t.Accepted)
	}
	if t.Fallback {
		fmt.Fprintf(w, "%s⚠️  Fell back to greedy: %s%s\n", colorYellow, t.FallbackReason, colorReset)
	}
	fmt.Fprintf(w, "Duration:   %s\n\n", t.Duration.Round(time.Millisecond))

	fmt.Fprintf(w, "%-12s %-10s %-4s %-14s %s\n", "Date", "Template", "Pos", "Slot", "Assignee")
	for _, a := range result.Assignments {
		lock := ""
		if a.Locked {
			lock = " 🔒"
		}
		fmt.Fprintf(w, "%-12s %-10s %-4d %-14s %s%s\n",
			a.Slot.DateKey(), a.Slot.TemplateID, a.Slot.Position,
			a.Slot.Start.Format("15:04")+"-"+a.Slot.End.Format("15:04"), a.AssigneeID(), lock)
	}
	fmt.Fprintln(w)

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(w, "%s⚠️  Unfilled slots (%d):%s\n", colorYellow, len(result.Conflicts), colorReset)
		for _, c := range result.Conflicts {
			fmt.Fprintf(w, "  • %s %s #%d: %s (%s)\n", c.Slot.DateKey(), c.Slot.TemplateID, c.Slot.Position, c.Reason, c.Severity)
		}
		fmt.Fprintln(w)
	}

	if v := result.Evaluation.HardViolations; len(v) > 0 {
		fmt.Fprintf(w, "%s❌ Hard rule violations (%d):%s\n", colorRed, len(v), colorReset)
		for _, violation := range v {
			fmt.Fprintf(w, "  • %s: %s\n", violation.RuleID, violation.Message)
		}
		fmt.Fprintln(w)
	}
}
