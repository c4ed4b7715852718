package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

func (s *store) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	var sc model.Schedule
	var parentID, templateID, teamID *string
	var algorithm, status string
	err := s.q.QueryRow(ctx, `
		SELECT id, tenant_id, parent_id, template_id, team_id, start_date, end_date,
			algorithm, seed, status, summary, created_at, completed_at
		FROM schedule
		WHERE id = $1
	`, scheduleID).Scan(&sc.ID, &sc.TenantID, &parentID, &templateID, &teamID, &sc.StartDate, &sc.EndDate,
		&algorithm, &sc.Seed, &status, &sc.Summary, &sc.CreatedAt, &sc.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	sc.ParentID = deref(parentID)
	sc.TemplateID = deref(templateID)
	sc.TeamID = deref(teamID)
	sc.Algorithm = model.Algorithm(algorithm)
	sc.Status = model.RunStatus(status)
	return &sc, nil
}

func (s *store) InsertSchedule(ctx context.Context, sc *model.Schedule) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO schedule (id, tenant_id, parent_id, template_id, team_id, start_date, end_date,
			algorithm, seed, status, summary, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sc.ID, sc.TenantID, nullable(sc.ParentID), nullable(sc.TemplateID), nullable(sc.TeamID),
		sc.StartDate, sc.EndDate, string(sc.Algorithm), sc.Seed, string(sc.Status), sc.Summary,
		sc.CreatedAt, sc.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// InsertSlots bulk loads slots with COPY
func (s *store) InsertSlots(ctx context.Context, scheduleID string, slots []*model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx,
		pgx.Identifier{"slot"},
		[]string{"id", "schedule_id", "date", "template_id", "starts_at", "ends_at", "position", "required_role", "mode", "category"},
		pgx.CopyFromSlice(len(slots), func(i int) ([]any, error) {
			sl := slots[i]
			return []any{sl.ID, scheduleID, sl.Date, sl.TemplateID, sl.Start, sl.End,
				int32(sl.Position), sl.RequiredRole, string(sl.Mode), string(sl.Category)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy slots: %w", err)
	}
	return nil
}

func (s *store) InsertAssignments(ctx context.Context, scheduleID string, assignments []model.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx,
		pgx.Identifier{"assignment"},
		[]string{"id", "schedule_id", "slot_id", "employee_id", "team_id", "source", "locked"},
		pgx.CopyFromSlice(len(assignments), func(i int) ([]any, error) {
			a := assignments[i]
			return []any{a.ID, scheduleID, a.Slot.ID, nullable(a.EmployeeID), nullable(a.TeamID),
				string(a.Source), a.Locked}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy assignments: %w", err)
	}
	return nil
}

func (s *store) InsertConflicts(ctx context.Context, scheduleID string, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx,
		pgx.Identifier{"conflict"},
		[]string{"id", "schedule_id", "slot_id", "reason", "severity"},
		pgx.CopyFromSlice(len(conflicts), func(i int) ([]any, error) {
			c := conflicts[i]
			return []any{c.ID, scheduleID, c.Slot.ID, c.Reason, c.Severity}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy conflicts: %w", err)
	}
	return nil
}

const slotColumns = `sl.id, sl.date, sl.template_id, sl.starts_at, sl.ends_at, sl.position, sl.required_role, sl.mode, sl.category`

func scanSlot(row pgx.Row, extra ...any) (*model.Slot, error) {
	var sl model.Slot
	var position int32
	var mode, category string
	dest := append([]any{&sl.ID, &sl.Date, &sl.TemplateID, &sl.Start, &sl.End, &position, &sl.RequiredRole, &mode, &category}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	sl.Position = int(position)
	sl.Mode = model.AssignmentMode(mode)
	sl.Category = model.ShiftCategory(category)
	sl.Start = sl.Start.UTC()
	sl.End = sl.End.UTC()
	return &sl, nil
}

// ListSlots returns the schedule's slots in chronological order
func (s *store) ListSlots(ctx context.Context, scheduleID string) ([]*model.Slot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slot sl
		WHERE sl.schedule_id = $1
		ORDER BY sl.starts_at, sl.template_id, sl.position
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}

	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Slot, error) {
		return scanSlot(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan slot: %w", err)
	}
	return slots, nil
}

func indexSlots(slots []*model.Slot) map[string]*model.Slot {
	byID := make(map[string]*model.Slot, len(slots))
	for _, sl := range slots {
		byID[sl.ID] = sl
	}
	return byID
}

// ListAssignments returns the schedule's assignments bound to the given slots
func (s *store) ListAssignments(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Assignment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT a.id, a.slot_id, a.employee_id, a.team_id, a.source, a.locked
		FROM assignment a
		JOIN slot sl ON sl.id = a.slot_id
		WHERE a.schedule_id = $1
		ORDER BY sl.starts_at, sl.template_id, sl.position
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	byID := indexSlots(slots)
	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Assignment, error) {
		var a model.Assignment
		var slotID, source string
		var employeeID, teamID *string
		if err := row.Scan(&a.ID, &slotID, &employeeID, &teamID, &source, &a.Locked); err != nil {
			return a, err
		}
		a.Slot = byID[slotID]
		if a.Slot == nil {
			return a, fmt.Errorf("assignment %s references unknown slot %s", a.ID, slotID)
		}
		a.EmployeeID, a.TeamID = deref(employeeID), deref(teamID)
		a.Source = model.AssignmentSource(source)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}
	return assignments, nil
}

func (s *store) ListConflicts(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Conflict, error) {
	rows, err := s.q.Query(ctx, `
		SELECT c.id, c.slot_id, c.reason, c.severity
		FROM conflict c
		JOIN slot sl ON sl.id = c.slot_id
		WHERE c.schedule_id = $1
		ORDER BY sl.starts_at, sl.template_id, sl.position
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}

	byID := indexSlots(slots)
	conflicts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Conflict, error) {
		var c model.Conflict
		var slotID string
		if err := row.Scan(&c.ID, &slotID, &c.Reason, &c.Severity); err != nil {
			return c, err
		}
		c.Slot = byID[slotID]
		if c.Slot == nil {
			return c, fmt.Errorf("conflict %s references unknown slot %s", c.ID, slotID)
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}
	return conflicts, nil
}

// ListAssignmentsBetween returns assignments of completed schedules whose
// slots fall on dates in [from, to]. Schedules superseded by a completed
// rerun are skipped.
func (s *store) ListAssignmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Assignment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`, a.id, a.employee_id, a.team_id, a.source, a.locked
		FROM assignment a
		JOIN slot sl ON sl.id = a.slot_id
		JOIN schedule sc ON sc.id = a.schedule_id
		WHERE sc.tenant_id = $1
			AND sc.status = 'completed'
			AND sl.date BETWEEN $2 AND $3
			AND NOT EXISTS (
				SELECT 1 FROM schedule child
				WHERE child.parent_id = sc.id AND child.status = 'completed'
			)
		ORDER BY sl.starts_at
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment history: %w", err)
	}

	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Assignment, error) {
		var a model.Assignment
		var source string
		var employeeID, teamID *string
		slot, err := scanSlot(row, &a.ID, &employeeID, &teamID, &source, &a.Locked)
		if err != nil {
			return a, err
		}
		a.Slot = slot
		a.EmployeeID, a.TeamID = deref(employeeID), deref(teamID)
		a.Source = model.AssignmentSource(source)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignment history: %w", err)
	}
	return assignments, nil
}

// UpsertAssignment replaces whatever currently fills the slot
func (s *store) UpsertAssignment(ctx context.Context, scheduleID string, a model.Assignment) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM conflict WHERE schedule_id = $1 AND slot_id = $2`, scheduleID, a.Slot.ID); err != nil {
		return fmt.Errorf("failed to clear conflict: %w", err)
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO assignment (id, schedule_id, slot_id, employee_id, team_id, source, locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slot_id) DO UPDATE SET
			id = EXCLUDED.id,
			employee_id = EXCLUDED.employee_id,
			team_id = EXCLUDED.team_id,
			source = EXCLUDED.source,
			locked = EXCLUDED.locked
	`, a.ID, scheduleID, a.Slot.ID, nullable(a.EmployeeID), nullable(a.TeamID), string(a.Source), a.Locked)
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}
