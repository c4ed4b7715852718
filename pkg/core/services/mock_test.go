package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

// memState is the committed content of mockDatabase
type memState struct {
	employees    []model.Employee
	teams        []model.Team
	templates    []model.ShiftTemplate
	demand       []model.DemandRequirement
	leave        []model.LeaveRecord
	availability []model.AvailabilityRecord
	ruleDefs     []model.RuleDefinition

	schedules   map[string]*model.Schedule
	slots       map[string][]*model.Slot
	assignments map[string][]model.Assignment
	conflicts   map[string][]model.Conflict
	scores      []db.Score
	history     []model.ScoreHistoryEntry
}

func newMemState() *memState {
	return &memState{
		schedules:   make(map[string]*model.Schedule),
		slots:       make(map[string][]*model.Slot),
		assignments: make(map[string][]model.Assignment),
		conflicts:   make(map[string][]model.Conflict),
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.schedules = maps.Clone(s.schedules)
	c.slots = maps.Clone(s.slots)
	c.assignments = maps.Clone(s.assignments)
	c.conflicts = maps.Clone(s.conflicts)
	c.scores = slices.Clone(s.scores)
	c.history = slices.Clone(s.history)
	return &c
}

// mockDatabase implements db.Database in memory. Writes made inside RunInTx
// are only kept when fn succeeds.
type mockDatabase struct {
	state *memState

	// failures maps a Tx method name to the error it returns
	failures map[string]error

	txCount     int
	scoresLocks int
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{state: newMemState(), failures: make(map[string]error)}
}

func (m *mockDatabase) RunInTx(ctx context.Context, fn func(tx db.Tx) error) error {
	m.txCount++
	tx := &mockTx{db: m, state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *mockDatabase) Close() {}

type mockTx struct {
	db    *mockDatabase
	state *memState
}

func (t *mockTx) fail(method string) error {
	return t.db.failures[method]
}

func (t *mockTx) ListActiveEmployees(ctx context.Context, tenantID, teamID string) ([]model.Employee, error) {
	if err := t.fail("ListActiveEmployees"); err != nil {
		return nil, err
	}
	roster := make(map[string]bool)
	for _, team := range t.state.teams {
		if team.ID == teamID {
			for _, id := range team.MemberIDs {
				roster[id] = true
			}
		}
	}
	var result []model.Employee
	for _, e := range t.state.employees {
		if e.Active && (teamID == "" || e.TeamID == teamID || roster[e.ID]) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (t *mockTx) ListTeams(ctx context.Context, tenantID string) ([]model.Team, error) {
	return t.state.teams, t.fail("ListTeams")
}

func (t *mockTx) ListShiftTemplates(ctx context.Context, tenantID string) ([]model.ShiftTemplate, error) {
	return t.state.templates, t.fail("ListShiftTemplates")
}

func (t *mockTx) ListDemandRequirements(ctx context.Context, tenantID string) ([]model.DemandRequirement, error) {
	return t.state.demand, t.fail("ListDemandRequirements")
}

func (t *mockTx) ListRuleDefinitions(ctx context.Context, tenantID string) ([]model.RuleDefinition, error) {
	return t.state.ruleDefs, t.fail("ListRuleDefinitions")
}

func (t *mockTx) ListLeaveRecords(ctx context.Context, tenantID string, from, to time.Time) ([]model.LeaveRecord, error) {
	return t.state.leave, t.fail("ListLeaveRecords")
}

func (t *mockTx) ListAvailability(ctx context.Context, tenantID string, from, to time.Time) ([]model.AvailabilityRecord, error) {
	return t.state.availability, t.fail("ListAvailability")
}

func (t *mockTx) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	if err := t.fail("GetSchedule"); err != nil {
		return nil, err
	}
	s, ok := t.state.schedules[scheduleID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (t *mockTx) InsertSchedule(ctx context.Context, schedule *model.Schedule) error {
	if err := t.fail("InsertSchedule"); err != nil {
		return err
	}
	copied := *schedule
	t.state.schedules[schedule.ID] = &copied
	return nil
}

func (t *mockTx) InsertSlots(ctx context.Context, scheduleID string, slots []*model.Slot) error {
	if err := t.fail("InsertSlots"); err != nil {
		return err
	}
	t.state.slots[scheduleID] = append(slices.Clone(t.state.slots[scheduleID]), slots...)
	return nil
}

func (t *mockTx) InsertAssignments(ctx context.Context, scheduleID string, assignments []model.Assignment) error {
	if err := t.fail("InsertAssignments"); err != nil {
		return err
	}
	t.state.assignments[scheduleID] = append(slices.Clone(t.state.assignments[scheduleID]), assignments...)
	return nil
}

func (t *mockTx) InsertConflicts(ctx context.Context, scheduleID string, conflicts []model.Conflict) error {
	if err := t.fail("InsertConflicts"); err != nil {
		return err
	}
	t.state.conflicts[scheduleID] = append(slices.Clone(t.state.conflicts[scheduleID]), conflicts...)
	return nil
}

func (t *mockTx) ListSlots(ctx context.Context, scheduleID string) ([]*model.Slot, error) {
	return t.state.slots[scheduleID], t.fail("ListSlots")
}

func (t *mockTx) ListAssignments(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Assignment, error) {
	return t.state.assignments[scheduleID], t.fail("ListAssignments")
}

func (t *mockTx) ListConflicts(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Conflict, error) {
	return t.state.conflicts[scheduleID], t.fail("ListConflicts")
}

func (t *mockTx) ListAssignmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Assignment, error) {
	if err := t.fail("ListAssignmentsBetween"); err != nil {
		return nil, err
	}
	var result []model.Assignment
	for id, assignments := range t.state.assignments {
		if t.state.schedules[id].Status != model.StatusCompleted {
			continue
		}
		for _, a := range assignments {
			if !a.Slot.Date.Before(from) && !a.Slot.Date.After(to) {
				result = append(result, a)
			}
		}
	}
	return result, nil
}

func (t *mockTx) UpsertAssignment(ctx context.Context, scheduleID string, assignment model.Assignment) error {
	if err := t.fail("UpsertAssignment"); err != nil {
		return err
	}
	var kept []model.Assignment
	for _, a := range t.state.assignments[scheduleID] {
		if a.Slot.ID != assignment.Slot.ID {
			kept = append(kept, a)
		}
	}
	t.state.assignments[scheduleID] = append(kept, assignment)

	var conflicts []model.Conflict
	for _, c := range t.state.conflicts[scheduleID] {
		if c.Slot.ID != assignment.Slot.ID {
			conflicts = append(conflicts, c)
		}
	}
	t.state.conflicts[scheduleID] = conflicts
	return nil
}

func (t *mockTx) LockScores(ctx context.Context, tenantID string) ([]db.Score, error) {
	if err := t.fail("LockScores"); err != nil {
		return nil, err
	}
	t.db.scoresLocks++
	return t.state.scores, nil
}

func (t *mockTx) SaveScores(ctx context.Context, scores []db.Score) error {
	if err := t.fail("SaveScores"); err != nil {
		return err
	}
	byKey := make(map[string]int)
	for i, s := range t.state.scores {
		byKey[fmt.Sprintf("%s/%s", s.Subject, s.SubjectID)] = i
	}
	for _, s := range scores {
		if i, ok := byKey[fmt.Sprintf("%s/%s", s.Subject, s.SubjectID)]; ok {
			t.state.scores[i] = s
			continue
		}
		t.state.scores = append(t.state.scores, s)
	}
	return nil
}

func (t *mockTx) AppendScoreHistory(ctx context.Context, tenantID string, entries []model.ScoreHistoryEntry) error {
	if err := t.fail("AppendScoreHistory"); err != nil {
		return err
	}
	t.state.history = append(t.state.history, entries...)
	return nil
}
