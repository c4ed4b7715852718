package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// ListActiveEmployees returns active employees, optionally restricted to those
// whose primary team is teamID or who are on its roster
func (s *store) ListActiveEmployees(ctx context.Context, tenantID, teamID string) ([]model.Employee, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, name, active, skills, team_id
		FROM employee
		WHERE tenant_id = $1 AND active AND (
			$2 = '' OR team_id = $2
			OR id IN (SELECT employee_id FROM team_member WHERE team_id = $2)
		)
		ORDER BY id
	`, tenantID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}

	employees, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Employee, error) {
		var e model.Employee
		var teamID *string
		err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.Active, &e.Skills, &teamID)
		e.TeamID = deref(teamID)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}
	return employees, nil
}

// ListTeams returns teams with their members in roster order
func (s *store) ListTeams(ctx context.Context, tenantID string) ([]model.Team, error) {
	rows, err := s.q.Query(ctx, `
		SELECT t.id, t.tenant_id, t.name,
			COALESCE(array_agg(m.employee_id ORDER BY m.position, m.employee_id)
				FILTER (WHERE m.employee_id IS NOT NULL), '{}')
		FROM team t
		LEFT JOIN team_member m ON m.team_id = t.id
		WHERE t.tenant_id = $1
		GROUP BY t.id, t.tenant_id, t.name
		ORDER BY t.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}

	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Team, error) {
		var t model.Team
		err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.MemberIDs)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan team: %w", err)
	}
	return teams, nil
}

func (s *store) ListShiftTemplates(ctx context.Context, tenantID string) ([]model.ShiftTemplate, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, name, start_minute, end_minute, category, mode, required_skills
		FROM shift_template
		WHERE tenant_id = $1
		ORDER BY start_minute, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift templates: %w", err)
	}

	templates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ShiftTemplate, error) {
		var t model.ShiftTemplate
		var start, end int
		var category, mode string
		err := row.Scan(&t.ID, &t.TenantID, &t.Name, &start, &end, &category, &mode, &t.RequiredSkills)
		t.Start, t.End = model.Clock(start), model.Clock(end)
		t.Category, t.Mode = model.ShiftCategory(category), model.AssignmentMode(mode)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift template: %w", err)
	}
	return templates, nil
}

func (s *store) ListDemandRequirements(ctx context.Context, tenantID string) ([]model.DemandRequirement, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, template_id, weekday, required_count, required_roles, effective_from, effective_to
		FROM demand_requirement
		WHERE tenant_id = $1
		ORDER BY weekday, template_id, position, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query demand requirements: %w", err)
	}

	requirements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DemandRequirement, error) {
		var d model.DemandRequirement
		var weekday int16
		var from, to *time.Time
		err := row.Scan(&d.ID, &d.TenantID, &d.TemplateID, &weekday, &d.RequiredCount, &d.RequiredRoles, &from, &to)
		d.Weekday = time.Weekday(weekday)
		if from != nil {
			d.EffectiveFrom = *from
		}
		if to != nil {
			d.EffectiveTo = *to
		}
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan demand requirement: %w", err)
	}
	return requirements, nil
}

func (s *store) ListRuleDefinitions(ctx context.Context, tenantID string) ([]model.RuleDefinition, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, label, type, params, weight
		FROM rule_definition
		WHERE tenant_id = $1
		ORDER BY position, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule definitions: %w", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RuleDefinition, error) {
		var d model.RuleDefinition
		var ruleType string
		err := row.Scan(&d.ID, &d.Label, &ruleType, &d.Params, &d.Weight)
		d.Type = model.RuleType(ruleType)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule definition: %w", err)
	}
	return defs, nil
}

// ListLeaveRecords returns approved leave overlapping [from, to]
func (s *store) ListLeaveRecords(ctx context.Context, tenantID string, from, to time.Time) ([]model.LeaveRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, employee_id, start_date, end_date
		FROM leave_record
		WHERE tenant_id = $1 AND status = 'approved' AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date, id
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave records: %w", err)
	}

	leave, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LeaveRecord, error) {
		var l model.LeaveRecord
		err := row.Scan(&l.ID, &l.EmployeeID, &l.StartDate, &l.EndDate)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave record: %w", err)
	}
	return leave, nil
}

func (s *store) ListAvailability(ctx context.Context, tenantID string, from, to time.Time) ([]model.AvailabilityRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, employee_id, date, kind, template_id, window_start, window_end
		FROM availability
		WHERE tenant_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, id
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AvailabilityRecord, error) {
		var r model.AvailabilityRecord
		var kind string
		var templateID *string
		var windowStart, windowEnd *int32
		err := row.Scan(&r.ID, &r.TenantID, &r.EmployeeID, &r.Date, &kind, &templateID, &windowStart, &windowEnd)
		r.Kind = model.AvailabilityKind(kind)
		r.TemplateID = deref(templateID)
		if windowStart != nil && windowEnd != nil {
			start, end := model.Clock(*windowStart), model.Clock(*windowEnd)
			r.WindowStart, r.WindowEnd = &start, &end
		}
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan availability: %w", err)
	}
	return records, nil
}
