package db

import (
	"context"
	"errors"
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Score is a persisted rolling fatigue score
type Score struct {
	TenantID  string
	Subject   model.ScoreSubject
	SubjectID string
	Score     float64
	UpdatedAt time.Time
}

// ReferenceStore reads the entities owned by the HR, leave and
// configuration subsystems. It is read-only.
type ReferenceStore interface {
	// ListActiveEmployees returns active employees. A non-empty teamID keeps
	// those whose primary team it is or who are on its roster.
	ListActiveEmployees(ctx context.Context, tenantID, teamID string) ([]model.Employee, error)
	ListTeams(ctx context.Context, tenantID string) ([]model.Team, error)
	ListShiftTemplates(ctx context.Context, tenantID string) ([]model.ShiftTemplate, error)
	ListDemandRequirements(ctx context.Context, tenantID string) ([]model.DemandRequirement, error)
	ListRuleDefinitions(ctx context.Context, tenantID string) ([]model.RuleDefinition, error)

	// ListLeaveRecords returns approved leave overlapping [from, to]
	ListLeaveRecords(ctx context.Context, tenantID string, from, to time.Time) ([]model.LeaveRecord, error)

	// ListAvailability returns availability records dated within [from, to]
	ListAvailability(ctx context.Context, tenantID string, from, to time.Time) ([]model.AvailabilityRecord, error)
}

// ScheduleStore persists schedules and everything generated with them
type ScheduleStore interface {
	GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error)
	InsertSchedule(ctx context.Context, schedule *model.Schedule) error
	InsertSlots(ctx context.Context, scheduleID string, slots []*model.Slot) error
	InsertAssignments(ctx context.Context, scheduleID string, assignments []model.Assignment) error
	InsertConflicts(ctx context.Context, scheduleID string, conflicts []model.Conflict) error

	ListSlots(ctx context.Context, scheduleID string) ([]*model.Slot, error)

	// ListAssignments returns a schedule's assignments bound to the given slots
	ListAssignments(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Assignment, error)

	// ListConflicts returns a schedule's conflicts bound to the given slots
	ListConflicts(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Conflict, error)

	// ListAssignmentsBetween returns the tenant's assignments on slots dated
	// within [from, to] across every completed schedule
	ListAssignmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Assignment, error)

	// UpsertAssignment replaces any assignment or conflict recorded for the slot
	UpsertAssignment(ctx context.Context, scheduleID string, assignment model.Assignment) error
}

// ScoreStore holds rolling fatigue scores and their audit trail
type ScoreStore interface {
	// LockScores reads the tenant's scores and holds them until the
	// transaction ends so overlapping runs serialize
	LockScores(ctx context.Context, tenantID string) ([]Score, error)
	SaveScores(ctx context.Context, scores []Score) error
	AppendScoreHistory(ctx context.Context, tenantID string, entries []model.ScoreHistoryEntry) error
}

// Tx is the set of operations available inside one transaction
type Tx interface {
	ReferenceStore
	ScheduleStore
	ScoreStore
}

// Database defines the interface for all database operations.
// Both the Postgres and the SQLite stores implement this interface.
type Database interface {
	// RunInTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
