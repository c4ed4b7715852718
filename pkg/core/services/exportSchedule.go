package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/db"
	"github.com/jakechorley/shift-roster/pkg/export"
)

// ExportSchedule renders a stored schedule as xlsx or ics
func ExportSchedule(ctx context.Context, database db.Database, logger *zap.Logger, scheduleID string, format export.Format, w io.Writer) error {
	logger.Debug("Exporting schedule", zap.String("schedule_id", scheduleID), zap.String("format", string(format)))

	var roster export.Roster
	err := database.RunInTx(ctx, func(tx db.Tx) error {
		schedule, err := tx.GetSchedule(ctx, scheduleID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch schedule: %w", err)
		}

		slots, err := tx.ListSlots(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to fetch slots: %w", err)
		}
		assignments, err := tx.ListAssignments(ctx, scheduleID, slots)
		if err != nil {
			return fmt.Errorf("failed to fetch assignments: %w", err)
		}
		conflicts, err := tx.ListConflicts(ctx, scheduleID, slots)
		if err != nil {
			return fmt.Errorf("failed to fetch conflicts: %w", err)
		}

		names := make(map[string]string)
		employees, err := tx.ListActiveEmployees(ctx, schedule.TenantID, "")
		if err != nil {
			return fmt.Errorf("failed to fetch employees: %w", err)
		}
		for _, e := range employees {
			names[e.ID] = e.Name
		}
		teams, err := tx.ListTeams(ctx, schedule.TenantID)
		if err != nil {
			return fmt.Errorf("failed to fetch teams: %w", err)
		}
		for _, t := range teams {
			names[t.ID] = t.Name
		}

		roster = export.Roster{
			Schedule:    schedule,
			Slots:       slots,
			Assignments: assignments,
			Conflicts:   conflicts,
			Names:       names,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := export.Write(w, format, roster); err != nil {
		return fmt.Errorf("failed to export schedule: %w", err)
	}

	logger.Info("Schedule exported",
		zap.String("schedule_id", scheduleID),
		zap.String("format", string(format)),
		zap.Int("assignments", len(roster.Assignments)))
	return nil
}
