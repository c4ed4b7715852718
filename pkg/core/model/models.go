package model

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for every calendar date key
const DateLayout = "2006-01-02"

// ShiftCategory classifies a shift template by time of day
type ShiftCategory string

const (
	CategoryDay     ShiftCategory = "day"
	CategoryEvening ShiftCategory = "evening"
	CategoryNight   ShiftCategory = "night"
	CategoryCustom  ShiftCategory = "custom"
)

func (c ShiftCategory) IsValid() bool {
	switch c {
	case CategoryDay, CategoryEvening, CategoryNight, CategoryCustom:
		return true
	}
	return false
}

// AssignmentMode decides whether a slot is filled by an employee or a whole team
type AssignmentMode string

const (
	ModeEmployee AssignmentMode = "employee"
	ModeTeam     AssignmentMode = "team"
)

// AvailabilityKind is the kind of an availability record
type AvailabilityKind string

const (
	// AvailabilityBlackout is a hard exclusion
	AvailabilityBlackout AvailabilityKind = "blackout"
	// AvailabilityPreferred is a soft bonus
	AvailabilityPreferred AvailabilityKind = "preferred"
	// AvailabilityPinned must result in a matching assignment
	AvailabilityPinned AvailabilityKind = "pinned"
)

// RuleType distinguishes hard constraints from soft preferences
type RuleType string

const (
	RuleHard RuleType = "hard"
	RuleSoft RuleType = "soft"
)

// AssignmentSource records who created an assignment
type AssignmentSource string

const (
	SourceAuto   AssignmentSource = "auto"
	SourceManual AssignmentSource = "manual"
)

// Algorithm identifies a scheduling strategy
type Algorithm string

const (
	AlgorithmGreedy       Algorithm = "greedy"
	AlgorithmBacktracking Algorithm = "backtracking"
	AlgorithmAnnealing    Algorithm = "annealing"
	AlgorithmScoreRank    Algorithm = "scorerank"
)

// Conflict reason codes
const (
	ReasonNoEmployeesAvailable = "no_employees_available"
	ReasonNoAvailableCandidate = "no_available_candidate"
	ReasonConstraintExhausted  = "constraint_exhausted"
)

// Conflict severities
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Employee is a schedulable member of staff, read from the HR store
type Employee struct {
	ID       string
	TenantID string
	Name     string
	Active   bool
	Skills   []string
	TeamID   string // Empty string if not in a team
}

// HasSkill returns true if the employee holds the given skill
func (e Employee) HasSkill(skill string) bool {
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Team owns an ordered roster of employee references
type Team struct {
	ID        string
	TenantID  string
	Name      string
	MemberIDs []string
}

// ShiftTemplate describes a recurring shift
type ShiftTemplate struct {
	ID             string
	TenantID       string
	Name           string
	Start          Clock
	End            Clock
	Category       ShiftCategory
	Mode           AssignmentMode
	RequiredSkills []string
}

// Duration returns the length of the shift, resolving midnight crossings
func (t ShiftTemplate) Duration() time.Duration {
	minutes := int(t.End) - int(t.Start)
	if minutes <= 0 {
		minutes += minutesPerDay
	}
	return time.Duration(minutes) * time.Minute
}

// EffectiveMode returns the template mode, defaulting to employee
func (t ShiftTemplate) EffectiveMode() AssignmentMode {
	if t.Mode == "" {
		return ModeEmployee
	}
	return t.Mode
}

// Window returns the actual start and end datetimes of the shift on date.
// Shifts crossing midnight end on the following day.
func (t ShiftTemplate) Window(date time.Time) (time.Time, time.Time) {
	day := TruncateDate(date)
	start := day.Add(time.Duration(t.Start) * time.Minute)
	return start, start.Add(t.Duration())
}

// DemandRequirement describes recurring need for a template on a weekday
type DemandRequirement struct {
	ID            string
	TenantID      string
	TemplateID    string
	Weekday       time.Weekday
	RequiredCount int
	RequiredRoles []string

	// EffectiveFrom and EffectiveTo bound the requirement; zero means unbounded
	EffectiveFrom time.Time
	EffectiveTo   time.Time
}

// Covers returns true if the requirement applies on the given date
func (d DemandRequirement) Covers(date time.Time) bool {
	date = TruncateDate(date)
	if date.Weekday() != d.Weekday {
		return false
	}
	if !d.EffectiveFrom.IsZero() && date.Before(TruncateDate(d.EffectiveFrom)) {
		return false
	}
	if !d.EffectiveTo.IsZero() && date.After(TruncateDate(d.EffectiveTo)) {
		return false
	}
	return true
}

// AvailabilityRecord is an employee's blackout, preference or pin for a date
type AvailabilityRecord struct {
	ID         string
	TenantID   string
	EmployeeID string
	Date       time.Time
	Kind       AvailabilityKind

	// TemplateID scopes the record to one shift template (empty = whole date)
	TemplateID string

	// WindowStart and WindowEnd optionally narrow the record to a time window
	WindowStart *Clock
	WindowEnd   *Clock
}

// AppliesTo returns true if the record covers the given slot
func (r AvailabilityRecord) AppliesTo(slot *Slot) bool {
	if !SameDate(r.Date, slot.Date) {
		return false
	}
	if r.TemplateID != "" && r.TemplateID != slot.TemplateID {
		return false
	}
	if r.WindowStart == nil || r.WindowEnd == nil {
		return true
	}
	day := TruncateDate(r.Date)
	windowStart := day.Add(time.Duration(*r.WindowStart) * time.Minute)
	windowEnd := day.Add(time.Duration(*r.WindowEnd) * time.Minute)
	if !windowEnd.After(windowStart) {
		windowEnd = windowEnd.Add(24 * time.Hour)
	}
	return windowStart.Before(slot.End) && slot.Start.Before(windowEnd)
}

// LeaveRecord is approved leave owned by the leave subsystem
type LeaveRecord struct {
	ID         string
	EmployeeID string
	StartDate  time.Time
	EndDate    time.Time
}

// Blackouts expands the leave into one blackout record per date, clipped to [from, to]
func (l LeaveRecord) Blackouts(from, to time.Time) []AvailabilityRecord {
	start := TruncateDate(l.StartDate)
	if start.Before(TruncateDate(from)) {
		start = TruncateDate(from)
	}
	end := TruncateDate(l.EndDate)
	if end.After(TruncateDate(to)) {
		end = TruncateDate(to)
	}

	var records []AvailabilityRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		records = append(records, AvailabilityRecord{
			ID:         fmt.Sprintf("leave:%s:%s", l.ID, d.Format(DateLayout)),
			EmployeeID: l.EmployeeID,
			Date:       d,
			Kind:       AvailabilityBlackout,
		})
	}
	return records
}

// RuleDefinition configures one rule of the rule engine
type RuleDefinition struct {
	ID     string
	Label  string
	Type   RuleType
	Params map[string]any
	Weight float64
}

// Slot is one concrete unit of demand
type Slot struct {
	ID           string
	Date         time.Time
	TemplateID   string
	Start        time.Time
	End          time.Time
	Position     int
	RequiredRole string
	Mode         AssignmentMode
	Category     ShiftCategory
}

// Key identifies the slot within a schedule independently of its persisted ID
func (s *Slot) Key() string {
	return fmt.Sprintf("%s|%s|%d", s.Date.Format(DateLayout), s.TemplateID, s.Position)
}

// DateKey returns the slot's calendar date as a string
func (s *Slot) DateKey() string {
	return s.Date.Format(DateLayout)
}

// Hours returns the slot length in hours
func (s *Slot) Hours() float64 {
	return s.End.Sub(s.Start).Hours()
}

// Assignment fills a slot with either an employee or a team
type Assignment struct {
	ID         string
	Slot       *Slot
	EmployeeID string
	TeamID     string
	Source     AssignmentSource
	Locked     bool
}

// AssigneeID returns the employee or team filling the slot
func (a Assignment) AssigneeID() string {
	if a.TeamID != "" {
		return a.TeamID
	}
	return a.EmployeeID
}

// Conflict records a slot that could not be filled
type Conflict struct {
	ID       string
	Slot     *Slot
	Reason   string
	Severity string
}

// Telemetry summarises one strategy run
type Telemetry struct {
	Algorithm      Algorithm     `json:"algorithm"`
	Seed           int64         `json:"seed"`
	SlotsTotal     int           `json:"slotsTotal"`
	SlotsFilled    int           `json:"slotsFilled"`
	LockedSlots    int           `json:"lockedSlots"`
	Conflicts      int           `json:"conflicts"`
	Iterations     int           `json:"iterations"`
	Accepted       int           `json:"accepted"`
	Score          float64       `json:"score"`
	HardViolations int           `json:"hardViolations"`
	Fallback       bool          `json:"fallback"`
	FallbackReason string        `json:"fallbackReason,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// ScoreSubject is the owner type of a rolling score
type ScoreSubject string

const (
	SubjectEmployee ScoreSubject = "employee"
	SubjectTeam     ScoreSubject = "team"
)

// Score history reasons
const (
	ScoreReasonAssignment     = "assignment"
	ScoreReasonTeamAssignment = "team_assignment"
	ScoreReasonDecay          = "decay"
)

// ScoreHistoryEntry is an append-only audit row for a score change
type ScoreHistoryEntry struct {
	ID         string
	Subject    ScoreSubject
	SubjectID  string
	ScheduleID string
	SlotID     string
	Delta      float64
	Score      float64
	Reason     string
	CreatedAt  time.Time
}
