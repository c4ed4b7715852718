package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/db"
	"github.com/jakechorley/shift-roster/pkg/export"
)

const tenant = "tenant-1"

var dayTemplate = model.ShiftTemplate{
	ID:       "day",
	TenantID: tenant,
	Name:     "Day",
	Start:    model.MustParseClock("09:00"),
	End:      model.MustParseClock("17:00"),
	Category: model.CategoryDay,
}

func date(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seededDatabase holds three active employees, one inactive, and a day template
// needed once per day
func seededDatabase() *mockDatabase {
	m := newMockDatabase()
	m.state.employees = []model.Employee{
		{ID: "alice", TenantID: tenant, Name: "Alice", Active: true, TeamID: "blue"},
		{ID: "bob", TenantID: tenant, Name: "Bob", Active: true, TeamID: "blue"},
		{ID: "carol", TenantID: tenant, Name: "Carol", Active: true, TeamID: "green"},
		{ID: "dan", TenantID: tenant, Name: "Dan", Active: false},
	}
	m.state.teams = []model.Team{
		{ID: "blue", TenantID: tenant, Name: "Blue", MemberIDs: []string{"alice", "bob"}},
		{ID: "green", TenantID: tenant, Name: "Green", MemberIDs: []string{"carol"}},
	}
	m.state.templates = []model.ShiftTemplate{dayTemplate}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		m.state.demand = append(m.state.demand, model.DemandRequirement{
			ID: "day-" + wd.String(), TenantID: tenant, TemplateID: "day", Weekday: wd, RequiredCount: 1,
		})
	}
	return m
}

func weekRequest(alg model.Algorithm) GenerateRosterRequest {
	return GenerateRosterRequest{
		TenantID:  tenant,
		StartDate: date("2025-01-06"),
		EndDate:   date("2025-01-12"),
		Algorithm: alg,
		Seed:      42,
	}
}

func testRosterOptions() RosterOptions {
	opts := DefaultRosterOptions()
	opts.Strategy.Backtracking.MaxIterations = 5000
	opts.Strategy.Backtracking.Timeout = 2 * time.Second
	opts.Strategy.Annealing.Iterations = 200
	return opts
}

func generate(t *testing.T, m *mockDatabase, req GenerateRosterRequest) (*GenerateRosterResult, error) {
	t.Helper()
	return GenerateRoster(context.Background(), m, rules.DefaultRegistry(), testRosterOptions(), zap.NewNop(), req)
}

func TestGenerateRoster_PersistsCompletedSchedule(t *testing.T) {
	for _, alg := range []model.Algorithm{
		model.AlgorithmGreedy,
		model.AlgorithmBacktracking,
		model.AlgorithmAnnealing,
		model.AlgorithmScoreRank,
	} {
		t.Run(string(alg), func(t *testing.T) {
			m := seededDatabase()
			res, err := generate(t, m, weekRequest(alg))
			require.NoError(t, err)

			assert.Equal(t, model.StatusCompleted, res.Schedule.Status)
			assert.NotNil(t, res.Schedule.CompletedAt)
			assert.Equal(t, alg, res.Schedule.Algorithm)
			assert.Len(t, res.Assignments, 7)
			assert.Empty(t, res.Conflicts)

			stored, ok := m.state.schedules[res.Schedule.ID]
			require.True(t, ok)
			assert.Equal(t, model.StatusCompleted, stored.Status)
			assert.Equal(t, 7, stored.Summary.SlotsFilled)
			assert.Len(t, m.state.slots[res.Schedule.ID], 7)
			assert.Len(t, m.state.assignments[res.Schedule.ID], 7)

			for _, a := range res.Assignments {
				assert.NotEqual(t, "dan", a.EmployeeID)
			}
			assert.Equal(t, 1, m.scoresLocks)
			assert.Equal(t, 1, m.txCount)
		})
	}
}

func TestGenerateRoster_GreedyPersistsScores(t *testing.T) {
	m := seededDatabase()
	m.state.scores = []db.Score{
		{TenantID: tenant, Subject: model.SubjectEmployee, SubjectID: "alice", Score: 10},
	}

	res, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)

	worked := make(map[string]bool)
	for _, a := range res.Assignments {
		worked[a.EmployeeID] = true
	}
	scores := make(map[string]float64)
	for _, s := range m.state.scores {
		scores[string(s.Subject)+"/"+s.SubjectID] = s.Score
	}
	for id := range worked {
		assert.Positive(t, scores["employee/"+id], id)
	}
	if !worked["alice"] {
		assert.InDelta(t, 9.0, scores["employee/alice"], 1e-9)
	}

	require.NotEmpty(t, m.state.history)
	for _, h := range m.state.history {
		assert.Equal(t, res.Schedule.ID, h.ScheduleID)
	}
}

func TestGenerateRoster_ScoreRankPersistsScores(t *testing.T) {
	m := seededDatabase()
	m.state.scores = []db.Score{
		{TenantID: tenant, Subject: model.SubjectEmployee, SubjectID: "alice", Score: 10},
	}

	res, err := generate(t, m, weekRequest(model.AlgorithmScoreRank))
	require.NoError(t, err)

	scores := make(map[string]float64)
	for _, s := range m.state.scores {
		scores[string(s.Subject)+"/"+s.SubjectID] = s.Score
	}
	// alice starts far ahead so she is never picked and only decays
	assert.InDelta(t, 9.0, scores["employee/alice"], 1e-9)
	assert.Positive(t, scores["employee/bob"])
	assert.Positive(t, scores["employee/carol"])

	require.NotEmpty(t, m.state.history)
	for _, h := range m.state.history {
		assert.Equal(t, res.Schedule.ID, h.ScheduleID)
	}
	for _, a := range res.Assignments {
		assert.NotEqual(t, "alice", a.EmployeeID)
	}
}

func TestGenerateRoster_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *mockDatabase)
		req     func() GenerateRosterRequest
		wantErr error
	}{
		{
			name:    "no shift templates",
			setup:   func(m *mockDatabase) { m.state.templates = nil },
			wantErr: ErrNoShiftTemplates,
		},
		{
			name: "unknown template id",
			req: func() GenerateRosterRequest {
				r := weekRequest(model.AlgorithmGreedy)
				r.TemplateID = "night"
				return r
			},
			wantErr: ErrNoShiftTemplates,
		},
		{
			name:    "no active employees",
			setup:   func(m *mockDatabase) { m.state.employees = m.state.employees[3:] },
			wantErr: ErrNoActiveEmployees,
		},
		{
			name: "empty team scope",
			req: func() GenerateRosterRequest {
				r := weekRequest(model.AlgorithmGreedy)
				r.TeamID = "red"
				return r
			},
			wantErr: ErrNoActiveEmployees,
		},
		{
			name: "missing existing schedule",
			req: func() GenerateRosterRequest {
				return GenerateRosterRequest{TenantID: tenant, ExistingScheduleID: "nope"}
			},
			wantErr: ErrScheduleNotFound,
		},
		{
			name: "inverted range",
			req: func() GenerateRosterRequest {
				r := weekRequest(model.AlgorithmGreedy)
				r.StartDate, r.EndDate = r.EndDate, r.StartDate
				return r
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "missing tenant",
			req: func() GenerateRosterRequest {
				r := weekRequest(model.AlgorithmGreedy)
				r.TenantID = ""
				return r
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "unknown algorithm",
			req:     func() GenerateRosterRequest { return weekRequest("genetic") },
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := seededDatabase()
			if tt.setup != nil {
				tt.setup(m)
			}
			req := weekRequest(model.AlgorithmGreedy)
			if tt.req != nil {
				req = tt.req()
			}

			res, err := generate(t, m, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, m.state.schedules)
		})
	}
}

func TestGenerateRoster_PersistenceFailureRollsBack(t *testing.T) {
	for _, method := range []string{"InsertSchedule", "InsertSlots", "InsertAssignments", "InsertConflicts", "SaveScores", "AppendScoreHistory"} {
		t.Run(method, func(t *testing.T) {
			m := seededDatabase()
			boom := errors.New("disk full")
			m.failures[method] = boom

			_, err := generate(t, m, weekRequest(model.AlgorithmScoreRank))
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)

			assert.Empty(t, m.state.schedules)
			assert.Empty(t, m.state.slots)
			assert.Empty(t, m.state.assignments)
			assert.Empty(t, m.state.scores)
			assert.Empty(t, m.state.history)
		})
	}
}

func TestGenerateRoster_LoadFailure(t *testing.T) {
	m := seededDatabase()
	m.failures["ListLeaveRecords"] = errors.New("leave service down")

	_, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch leave records")
}

func TestGenerateRoster_DefaultDemand(t *testing.T) {
	m := seededDatabase()
	m.state.demand = nil

	res, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)
	assert.Len(t, res.Slots, 7)
}

func TestGenerateRoster_LeaveBecomesBlackout(t *testing.T) {
	m := seededDatabase()
	m.state.leave = []model.LeaveRecord{
		{ID: "leave-1", EmployeeID: "bob", StartDate: date("2025-01-01"), EndDate: date("2025-01-31")},
	}

	res, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)
	for _, a := range res.Assignments {
		assert.NotEqual(t, "bob", a.EmployeeID)
	}
	assert.Len(t, res.Assignments, 7)
}

func TestGenerateRoster_ClosedDatesBlackOutEveryone(t *testing.T) {
	m := seededDatabase()
	opts := testRosterOptions()
	opts.ClosedDates = []time.Time{date("2025-01-08"), date("2025-03-01")}

	res, err := GenerateRoster(context.Background(), m, rules.DefaultRegistry(), opts, zap.NewNop(), weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "2025-01-08", res.Conflicts[0].Slot.DateKey())
	assert.Len(t, m.state.conflicts[res.Schedule.ID], 1)
}

func TestGenerateRoster_TeamScope(t *testing.T) {
	m := seededDatabase()
	req := weekRequest(model.AlgorithmGreedy)
	req.TeamID = "blue"

	res, err := generate(t, m, req)
	require.NoError(t, err)
	for _, a := range res.Assignments {
		assert.Contains(t, []string{"alice", "bob"}, a.EmployeeID)
	}
	assert.Equal(t, "blue", res.Schedule.TeamID)
}

func TestGenerateRoster_HistoryCrossesBoundary(t *testing.T) {
	m := seededDatabase()
	night := model.ShiftTemplate{ID: "night", Start: model.MustParseClock("22:00"), End: model.MustParseClock("06:00"), Category: model.CategoryNight}
	early := model.ShiftTemplate{ID: "early", Start: model.MustParseClock("07:00"), End: model.MustParseClock("15:00"), Category: model.CategoryDay}
	m.state.templates = []model.ShiftTemplate{early}
	m.state.demand = nil

	start, end := night.Window(date("2025-01-05"))
	prior := &model.Schedule{ID: "prior", TenantID: tenant, Status: model.StatusCompleted}
	m.state.schedules[prior.ID] = prior
	slot := &model.Slot{ID: "s0", Date: date("2025-01-05"), TemplateID: "night", Start: start, End: end, Category: model.CategoryNight, Mode: model.ModeEmployee}
	m.state.slots[prior.ID] = []*model.Slot{slot}
	m.state.assignments[prior.ID] = []model.Assignment{
		{ID: "a0", Slot: slot, EmployeeID: "alice"},
	}

	req := weekRequest(model.AlgorithmGreedy)
	req.EndDate = req.StartDate
	res, err := generate(t, m, req)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.NotEqual(t, "alice", res.Assignments[0].EmployeeID)
}

func TestGenerateRoster_RerunPreservesManualEdits(t *testing.T) {
	for _, alg := range []model.Algorithm{
		model.AlgorithmGreedy,
		model.AlgorithmBacktracking,
		model.AlgorithmAnnealing,
		model.AlgorithmScoreRank,
	} {
		t.Run(string(alg), func(t *testing.T) {
			m := seededDatabase()
			first, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
			require.NoError(t, err)

			var target *model.Slot
			for _, s := range first.Slots {
				if s.DateKey() == "2025-01-09" {
					target = s
				}
			}
			require.NotNil(t, target)

			_, err = LockAssignment(context.Background(), m, zap.NewNop(), LockAssignmentRequest{
				ScheduleID: first.Schedule.ID,
				SlotID:     target.ID,
				EmployeeID: "carol",
			})
			require.NoError(t, err)

			rerun, err := generate(t, m, GenerateRosterRequest{
				TenantID:            tenant,
				ExistingScheduleID:  first.Schedule.ID,
				Algorithm:           alg,
				Seed:                7,
				PreserveManualEdits: true,
			})
			require.NoError(t, err)

			assert.Equal(t, first.Schedule.ID, rerun.Schedule.ParentID)
			assert.Equal(t, first.Schedule.StartDate, rerun.Schedule.StartDate)
			assert.Equal(t, first.Schedule.EndDate, rerun.Schedule.EndDate)
			assert.Equal(t, 1, rerun.Telemetry.LockedSlots)

			found := false
			for _, a := range rerun.Assignments {
				if a.Slot.Key() == target.Key() {
					found = true
					assert.Equal(t, "carol", a.EmployeeID)
					assert.True(t, a.Locked)
					assert.Equal(t, model.SourceManual, a.Source)
				}
			}
			assert.True(t, found)
		})
	}
}

func TestGenerateRoster_RerunInheritsParameters(t *testing.T) {
	m := seededDatabase()
	first, err := generate(t, m, weekRequest(model.AlgorithmScoreRank))
	require.NoError(t, err)

	rerun, err := generate(t, m, GenerateRosterRequest{TenantID: tenant, ExistingScheduleID: first.Schedule.ID})
	require.NoError(t, err)

	assert.Equal(t, model.AlgorithmScoreRank, rerun.Schedule.Algorithm)
	assert.Equal(t, int64(42), rerun.Schedule.Seed)
	assert.Zero(t, rerun.Telemetry.LockedSlots)
	assert.Len(t, m.state.schedules, 2)
}

func TestLockAssignment_Validation(t *testing.T) {
	m := seededDatabase()
	first, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)
	slotID := first.Slots[0].ID

	tests := []struct {
		name    string
		req     LockAssignmentRequest
		wantErr error
	}{
		{"unknown schedule", LockAssignmentRequest{ScheduleID: "nope", SlotID: slotID, EmployeeID: "alice"}, ErrScheduleNotFound},
		{"no assignee", LockAssignmentRequest{ScheduleID: first.Schedule.ID, SlotID: slotID}, ErrInvalidRequest},
		{"both assignees", LockAssignmentRequest{ScheduleID: first.Schedule.ID, SlotID: slotID, EmployeeID: "alice", TeamID: "blue"}, ErrInvalidRequest},
		{"team on employee slot", LockAssignmentRequest{ScheduleID: first.Schedule.ID, SlotID: slotID, TeamID: "blue"}, ErrInvalidRequest},
		{"unknown slot", LockAssignmentRequest{ScheduleID: first.Schedule.ID, SlotID: "nope", EmployeeID: "alice"}, ErrInvalidRequest},
		{"inactive employee", LockAssignmentRequest{ScheduleID: first.Schedule.ID, SlotID: slotID, EmployeeID: "dan"}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LockAssignment(context.Background(), m, zap.NewNop(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLockAssignment_ReplacesConflict(t *testing.T) {
	m := seededDatabase()
	m.state.leave = []model.LeaveRecord{
		{ID: "l", EmployeeID: "alice", StartDate: date("2025-01-06"), EndDate: date("2025-01-12")},
		{ID: "l2", EmployeeID: "bob", StartDate: date("2025-01-06"), EndDate: date("2025-01-12")},
		{ID: "l3", EmployeeID: "carol", StartDate: date("2025-01-06"), EndDate: date("2025-01-06")},
	}
	first, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)
	require.NotEmpty(t, first.Conflicts)

	conflicted := first.Conflicts[0].Slot
	a, err := LockAssignment(context.Background(), m, zap.NewNop(), LockAssignmentRequest{
		ScheduleID: first.Schedule.ID,
		SlotID:     conflicted.ID,
		EmployeeID: "bob",
	})
	require.NoError(t, err)
	assert.True(t, a.Locked)

	for _, c := range m.state.conflicts[first.Schedule.ID] {
		assert.NotEqual(t, conflicted.ID, c.Slot.ID)
	}
}

func TestExportSchedule(t *testing.T) {
	m := seededDatabase()
	first, err := generate(t, m, weekRequest(model.AlgorithmGreedy))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportSchedule(context.Background(), m, zap.NewNop(), first.Schedule.ID, export.FormatICS, &buf))
	assert.Equal(t, 7, strings.Count(buf.String(), "BEGIN:VEVENT"))

	buf.Reset()
	require.NoError(t, ExportSchedule(context.Background(), m, zap.NewNop(), first.Schedule.ID, export.FormatXLSX, &buf))
	assert.Positive(t, buf.Len())

	err = ExportSchedule(context.Background(), m, zap.NewNop(), "nope", export.FormatICS, &buf)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}
