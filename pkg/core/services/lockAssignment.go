package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

// LockAssignmentRequest is a manual edit of one slot of a completed schedule.
// Exactly one of EmployeeID and TeamID is set, matching the slot's mode.
type LockAssignmentRequest struct {
	ScheduleID string
	SlotID     string
	EmployeeID string
	TeamID     string
}

// LockAssignment records a manual, locked assignment on a completed schedule.
// It replaces whatever the slot held before; reruns that preserve manual
// edits keep it unchanged.
func LockAssignment(ctx context.Context, database db.Database, logger *zap.Logger, req LockAssignmentRequest) (*model.Assignment, error) {
	if (req.EmployeeID == "") == (req.TeamID == "") {
		return nil, fmt.Errorf("%w: exactly one of employee and team is required", ErrInvalidRequest)
	}

	logger.Debug("Locking assignment",
		zap.String("schedule_id", req.ScheduleID),
		zap.String("slot_id", req.SlotID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("team_id", req.TeamID))

	var locked *model.Assignment
	err := database.RunInTx(ctx, func(tx db.Tx) error {
		schedule, err := tx.GetSchedule(ctx, req.ScheduleID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, req.ScheduleID)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch schedule: %w", err)
		}
		if schedule.Status != model.StatusCompleted {
			return fmt.Errorf("%w: schedule %s is %s, only completed schedules can be edited",
				ErrInvalidRequest, schedule.ID, schedule.Status)
		}

		slots, err := tx.ListSlots(ctx, schedule.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch slots: %w", err)
		}
		slot := findSlot(slots, req.SlotID)
		if slot == nil {
			return fmt.Errorf("%w: slot %s is not part of schedule %s", ErrInvalidRequest, req.SlotID, schedule.ID)
		}

		if err := checkAssignee(ctx, tx, schedule.TenantID, slot, req); err != nil {
			return err
		}

		a := model.Assignment{
			ID:         uuid.New().String(),
			Slot:       slot,
			EmployeeID: req.EmployeeID,
			TeamID:     req.TeamID,
			Source:     model.SourceManual,
			Locked:     true,
		}
		if err := tx.UpsertAssignment(ctx, schedule.ID, a); err != nil {
			return fmt.Errorf("failed to save assignment: %w", err)
		}
		locked = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Assignment locked",
		zap.String("schedule_id", req.ScheduleID),
		zap.String("slot", locked.Slot.Key()),
		zap.String("assignee", locked.AssigneeID()))
	return locked, nil
}

func findSlot(slots []*model.Slot, slotID string) *model.Slot {
	for _, s := range slots {
		if s.ID == slotID {
			return s
		}
	}
	return nil
}

// checkAssignee verifies the assignee exists and matches the slot's mode
func checkAssignee(ctx context.Context, tx db.Tx, tenantID string, slot *model.Slot, req LockAssignmentRequest) error {
	if slot.Mode == model.ModeTeam {
		if req.TeamID == "" {
			return fmt.Errorf("%w: slot %s must be assigned to a team", ErrInvalidRequest, slot.Key())
		}
		teams, err := tx.ListTeams(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to fetch teams: %w", err)
		}
		if len(filterTeams(teams, req.TeamID)) == 0 {
			return fmt.Errorf("%w: unknown team %s", ErrInvalidRequest, req.TeamID)
		}
		return nil
	}

	if req.EmployeeID == "" {
		return fmt.Errorf("%w: slot %s must be assigned to an employee", ErrInvalidRequest, slot.Key())
	}
	employees, err := tx.ListActiveEmployees(ctx, tenantID, "")
	if err != nil {
		return fmt.Errorf("failed to fetch employees: %w", err)
	}
	for _, e := range employees {
		if e.ID == req.EmployeeID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not an active employee", ErrInvalidRequest, req.EmployeeID)
}
