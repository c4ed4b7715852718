package sqlite

import (
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

type employeeRow struct {
	ID       string   `gorm:"primaryKey"`
	TenantID string   `gorm:"not null;index"`
	Name     string   `gorm:"not null"`
	Active   bool     `gorm:"not null"`
	Skills   []string `gorm:"serializer:json"`
	TeamID   string   `gorm:"index"`
}

func (employeeRow) TableName() string { return "employees" }

func (r employeeRow) toModel() model.Employee {
	return model.Employee{ID: r.ID, TenantID: r.TenantID, Name: r.Name, Active: r.Active, Skills: r.Skills, TeamID: r.TeamID}
}

type teamRow struct {
	ID       string `gorm:"primaryKey"`
	TenantID string `gorm:"not null;index"`
	Name     string `gorm:"not null"`
}

func (teamRow) TableName() string { return "teams" }

type teamMemberRow struct {
	TeamID     string `gorm:"primaryKey"`
	EmployeeID string `gorm:"primaryKey"`
	Position   int    `gorm:"not null"`
}

func (teamMemberRow) TableName() string { return "team_members" }

type shiftTemplateRow struct {
	ID             string   `gorm:"primaryKey"`
	TenantID       string   `gorm:"not null;index"`
	Name           string   `gorm:"not null"`
	StartMinute    int      `gorm:"not null"`
	EndMinute      int      `gorm:"not null"`
	Category       string   `gorm:"not null"`
	Mode           string   `gorm:"not null"`
	RequiredSkills []string `gorm:"serializer:json"`
}

func (shiftTemplateRow) TableName() string { return "shift_templates" }

func (r shiftTemplateRow) toModel() model.ShiftTemplate {
	return model.ShiftTemplate{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		Start:          model.Clock(r.StartMinute),
		End:            model.Clock(r.EndMinute),
		Category:       model.ShiftCategory(r.Category),
		Mode:           model.AssignmentMode(r.Mode),
		RequiredSkills: r.RequiredSkills,
	}
}

type demandRow struct {
	ID            string   `gorm:"primaryKey"`
	TenantID      string   `gorm:"not null;index"`
	TemplateID    string   `gorm:"not null"`
	Weekday       int      `gorm:"not null"`
	RequiredCount int      `gorm:"not null"`
	RequiredRoles []string `gorm:"serializer:json"`
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Position      int
}

func (demandRow) TableName() string { return "demand_requirements" }

func (r demandRow) toModel() model.DemandRequirement {
	d := model.DemandRequirement{
		ID:            r.ID,
		TenantID:      r.TenantID,
		TemplateID:    r.TemplateID,
		Weekday:       time.Weekday(r.Weekday),
		RequiredCount: r.RequiredCount,
		RequiredRoles: r.RequiredRoles,
	}
	if r.EffectiveFrom != nil {
		d.EffectiveFrom = r.EffectiveFrom.UTC()
	}
	if r.EffectiveTo != nil {
		d.EffectiveTo = r.EffectiveTo.UTC()
	}
	return d
}

type availabilityRow struct {
	ID          string    `gorm:"primaryKey"`
	TenantID    string    `gorm:"not null;index:idx_availability_tenant_date"`
	EmployeeID  string    `gorm:"not null"`
	Date        time.Time `gorm:"not null;index:idx_availability_tenant_date"`
	Kind        string    `gorm:"not null"`
	TemplateID  string
	WindowStart *int
	WindowEnd   *int
}

func (availabilityRow) TableName() string { return "availability" }

func (r availabilityRow) toModel() model.AvailabilityRecord {
	rec := model.AvailabilityRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		EmployeeID: r.EmployeeID,
		Date:       r.Date.UTC(),
		Kind:       model.AvailabilityKind(r.Kind),
		TemplateID: r.TemplateID,
	}
	if r.WindowStart != nil && r.WindowEnd != nil {
		start, end := model.Clock(*r.WindowStart), model.Clock(*r.WindowEnd)
		rec.WindowStart, rec.WindowEnd = &start, &end
	}
	return rec
}

type leaveRow struct {
	ID         string    `gorm:"primaryKey"`
	TenantID   string    `gorm:"not null;index"`
	EmployeeID string    `gorm:"not null"`
	StartDate  time.Time `gorm:"not null"`
	EndDate    time.Time `gorm:"not null"`
	Status     string    `gorm:"not null"`
}

func (leaveRow) TableName() string { return "leave_records" }

type ruleRow struct {
	ID       string         `gorm:"primaryKey"`
	TenantID string         `gorm:"primaryKey"`
	Label    string         `gorm:"not null"`
	Type     string         `gorm:"not null"`
	Params   map[string]any `gorm:"serializer:json"`
	Weight   float64        `gorm:"not null"`
	Position int
}

func (ruleRow) TableName() string { return "rule_definitions" }

type scheduleRow struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"not null;index"`
	ParentID    string `gorm:"index"`
	TemplateID  string
	TeamID      string
	StartDate   time.Time       `gorm:"not null"`
	EndDate     time.Time       `gorm:"not null"`
	Algorithm   string          `gorm:"not null"`
	Seed        int64           `gorm:"not null"`
	Status      string          `gorm:"not null"`
	Summary     model.Telemetry `gorm:"serializer:json"`
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (scheduleRow) TableName() string { return "schedules" }

func newScheduleRow(s *model.Schedule) scheduleRow {
	return scheduleRow{
		ID:          s.ID,
		TenantID:    s.TenantID,
		ParentID:    s.ParentID,
		TemplateID:  s.TemplateID,
		TeamID:      s.TeamID,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		Algorithm:   string(s.Algorithm),
		Seed:        s.Seed,
		Status:      string(s.Status),
		Summary:     s.Summary,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.CompletedAt,
	}
}

func (r scheduleRow) toModel() *model.Schedule {
	return &model.Schedule{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ParentID:    r.ParentID,
		TemplateID:  r.TemplateID,
		TeamID:      r.TeamID,
		StartDate:   r.StartDate.UTC(),
		EndDate:     r.EndDate.UTC(),
		Algorithm:   model.Algorithm(r.Algorithm),
		Seed:        r.Seed,
		Status:      model.RunStatus(r.Status),
		Summary:     r.Summary,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

type slotRow struct {
	ID           string    `gorm:"primaryKey"`
	ScheduleID   string    `gorm:"not null;index"`
	Date         time.Time `gorm:"not null;index"`
	TemplateID   string    `gorm:"not null"`
	StartsAt     time.Time `gorm:"not null"`
	EndsAt       time.Time `gorm:"not null"`
	Position     int       `gorm:"not null"`
	RequiredRole string
	Mode         string `gorm:"not null"`
	Category     string `gorm:"not null"`
}

func (slotRow) TableName() string { return "slots" }

func newSlotRow(scheduleID string, s *model.Slot) slotRow {
	return slotRow{
		ID:           s.ID,
		ScheduleID:   scheduleID,
		Date:         s.Date,
		TemplateID:   s.TemplateID,
		StartsAt:     s.Start,
		EndsAt:       s.End,
		Position:     s.Position,
		RequiredRole: s.RequiredRole,
		Mode:         string(s.Mode),
		Category:     string(s.Category),
	}
}

func (r slotRow) toModel() *model.Slot {
	return &model.Slot{
		ID:           r.ID,
		Date:         r.Date.UTC(),
		TemplateID:   r.TemplateID,
		Start:        r.StartsAt.UTC(),
		End:          r.EndsAt.UTC(),
		Position:     r.Position,
		RequiredRole: r.RequiredRole,
		Mode:         model.AssignmentMode(r.Mode),
		Category:     model.ShiftCategory(r.Category),
	}
}

type assignmentRow struct {
	ID         string `gorm:"primaryKey"`
	ScheduleID string `gorm:"not null;index"`
	SlotID     string `gorm:"not null;uniqueIndex"`
	EmployeeID string
	TeamID     string
	Source     string `gorm:"not null"`
	Locked     bool   `gorm:"not null"`
}

func (assignmentRow) TableName() string { return "assignments" }

func newAssignmentRow(scheduleID string, a model.Assignment) assignmentRow {
	return assignmentRow{
		ID:         a.ID,
		ScheduleID: scheduleID,
		SlotID:     a.Slot.ID,
		EmployeeID: a.EmployeeID,
		TeamID:     a.TeamID,
		Source:     string(a.Source),
		Locked:     a.Locked,
	}
}

func (r assignmentRow) toModel(slot *model.Slot) model.Assignment {
	return model.Assignment{
		ID:         r.ID,
		Slot:       slot,
		EmployeeID: r.EmployeeID,
		TeamID:     r.TeamID,
		Source:     model.AssignmentSource(r.Source),
		Locked:     r.Locked,
	}
}

type conflictRow struct {
	ID         string `gorm:"primaryKey"`
	ScheduleID string `gorm:"not null;index"`
	SlotID     string `gorm:"not null;uniqueIndex"`
	Reason     string `gorm:"not null"`
	Severity   string `gorm:"not null"`
}

func (conflictRow) TableName() string { return "conflicts" }

type scoreRow struct {
	TenantID  string  `gorm:"primaryKey"`
	Subject   string  `gorm:"primaryKey"`
	SubjectID string  `gorm:"primaryKey"`
	Score     float64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (scoreRow) TableName() string { return "scores" }

func (r scoreRow) toScore() db.Score {
	return db.Score{
		TenantID:  r.TenantID,
		Subject:   model.ScoreSubject(r.Subject),
		SubjectID: r.SubjectID,
		Score:     r.Score,
		UpdatedAt: r.UpdatedAt,
	}
}

type scoreHistoryRow struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index:idx_score_history_subject"`
	Subject    string `gorm:"not null;index:idx_score_history_subject"`
	SubjectID  string `gorm:"not null;index:idx_score_history_subject"`
	ScheduleID string
	SlotID     string
	Delta      float64 `gorm:"not null"`
	Score      float64 `gorm:"not null"`
	Reason     string  `gorm:"not null"`
	CreatedAt  time.Time
}

func (scoreHistoryRow) TableName() string { return "score_history" }

// allModels lists every table managed by AutoMigrate
var allModels = []any{
	&employeeRow{}, &teamRow{}, &teamMemberRow{}, &shiftTemplateRow{}, &demandRow{},
	&availabilityRow{}, &leaveRow{}, &ruleRow{}, &scheduleRow{}, &slotRow{},
	&assignmentRow{}, &conflictRow{}, &scoreRow{}, &scoreHistoryRow{},
}
