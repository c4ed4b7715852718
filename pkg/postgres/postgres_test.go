package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

// testDB connects to TEST_DATABASE_URL, skipping when it is unset
func testDB(t *testing.T) (*DB, string) {
	t.Helper()
	conn := os.Getenv("TEST_DATABASE_URL")
	if conn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	d, err := NewDB(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.RunMigrations(ctx))

	tenant := "tenant-" + uuid.New().String()
	_, err = d.pool.Exec(ctx, `INSERT INTO team (id, tenant_id, name) VALUES ($1, $2, 'Blue')`, tenant+"-blue", tenant)
	require.NoError(t, err)
	_, err = d.pool.Exec(ctx, `
		INSERT INTO employee (id, tenant_id, name, active, skills, team_id) VALUES
			($2, $1, 'Alice', TRUE, '{rn}', $4),
			($3, $1, 'Bob', FALSE, '{}', NULL)
	`, tenant, tenant+"-alice", tenant+"-bob", tenant+"-blue")
	require.NoError(t, err)
	_, err = d.pool.Exec(ctx, `INSERT INTO team_member (team_id, employee_id) VALUES ($1, $2)`, tenant+"-blue", tenant+"-alice")
	require.NoError(t, err)
	return d, tenant
}

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "x", deref(nullable("x")))
	assert.Equal(t, "", deref(nil))
}

func TestStore_ReferenceData(t *testing.T) {
	d, tenant := testDB(t)
	ctx := context.Background()

	err := d.RunInTx(ctx, func(tx db.Tx) error {
		employees, err := tx.ListActiveEmployees(ctx, tenant, "")
		require.NoError(t, err)
		require.Len(t, employees, 1)
		assert.Equal(t, []string{"rn"}, employees[0].Skills)
		assert.Equal(t, tenant+"-blue", employees[0].TeamID)

		teams, err := tx.ListTeams(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, teams, 1)
		assert.Equal(t, []string{tenant + "-alice"}, teams[0].MemberIDs)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ScheduleRoundTrip(t *testing.T) {
	d, tenant := testDB(t)
	ctx := context.Background()

	tmpl := model.ShiftTemplate{ID: "night", Start: model.MustParseClock("22:00"), End: model.MustParseClock("06:00"), Category: model.CategoryNight}
	start, end := tmpl.Window(day("2025-01-06"))
	slot := &model.Slot{ID: uuid.New().String(), Date: day("2025-01-06"), TemplateID: "night", Start: start, End: end, Mode: model.ModeEmployee, Category: model.CategoryNight}
	open := &model.Slot{ID: uuid.New().String(), Date: day("2025-01-07"), TemplateID: "night", Mode: model.ModeEmployee, Category: model.CategoryNight}
	open.Start, open.End = tmpl.Window(open.Date)

	completed := time.Now().UTC().Truncate(time.Second)
	sched := &model.Schedule{
		ID: uuid.New().String(), TenantID: tenant, StartDate: day("2025-01-06"), EndDate: day("2025-01-07"),
		Algorithm: model.AlgorithmGreedy, Seed: 7, Status: model.StatusCompleted,
		Summary: model.Telemetry{SlotsTotal: 2, SlotsFilled: 1}, CreatedAt: completed, CompletedAt: &completed,
	}

	err := d.RunInTx(ctx, func(tx db.Tx) error {
		require.NoError(t, tx.InsertSchedule(ctx, sched))
		require.NoError(t, tx.InsertSlots(ctx, sched.ID, []*model.Slot{slot, open}))
		require.NoError(t, tx.InsertAssignments(ctx, sched.ID, []model.Assignment{
			{ID: uuid.New().String(), Slot: slot, EmployeeID: tenant + "-alice", Source: model.SourceAuto},
		}))
		return tx.InsertConflicts(ctx, sched.ID, []model.Conflict{
			{ID: uuid.New().String(), Slot: open, Reason: model.ReasonNoAvailableCandidate, Severity: model.SeverityMedium},
		})
	})
	require.NoError(t, err)

	err = d.RunInTx(ctx, func(tx db.Tx) error {
		got, err := tx.GetSchedule(ctx, sched.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.Equal(t, 2, got.Summary.SlotsTotal)
		assert.Empty(t, got.ParentID)

		slots, err := tx.ListSlots(ctx, sched.ID)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, slot.Key(), slots[0].Key())
		assert.True(t, slots[0].Start.Equal(start))

		conflicts, err := tx.ListConflicts(ctx, sched.ID, slots)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)

		require.NoError(t, tx.UpsertAssignment(ctx, sched.ID, model.Assignment{
			ID: uuid.New().String(), Slot: slots[1], EmployeeID: tenant + "-alice", Source: model.SourceManual, Locked: true,
		}))
		conflicts, err = tx.ListConflicts(ctx, sched.ID, slots)
		require.NoError(t, err)
		assert.Empty(t, conflicts)

		history, err := tx.ListAssignmentsBetween(ctx, tenant, day("2025-01-01"), day("2025-01-31"))
		require.NoError(t, err)
		assert.Len(t, history, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_RollbackOnError(t *testing.T) {
	d, tenant := testDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	id := uuid.New().String()
	err := d.RunInTx(ctx, func(tx db.Tx) error {
		require.NoError(t, tx.InsertSchedule(ctx, &model.Schedule{
			ID: id, TenantID: tenant, StartDate: day("2025-01-06"), EndDate: day("2025-01-06"),
			Algorithm: model.AlgorithmGreedy, Status: model.StatusCompleted, CreatedAt: time.Now(),
		}))
		require.NoError(t, tx.SaveScores(ctx, []db.Score{
			{TenantID: tenant, Subject: model.SubjectEmployee, SubjectID: tenant + "-alice", Score: 3, UpdatedAt: time.Now()},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = d.RunInTx(ctx, func(tx db.Tx) error {
		_, err := tx.GetSchedule(ctx, id)
		assert.ErrorIs(t, err, db.ErrNotFound)

		scores, err := tx.LockScores(ctx, tenant)
		require.NoError(t, err)
		assert.Empty(t, scores)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_SaveScoresUpserts(t *testing.T) {
	d, tenant := testDB(t)
	ctx := context.Background()
	alice := tenant + "-alice"

	for _, value := range []float64{2, 5.5} {
		err := d.RunInTx(ctx, func(tx db.Tx) error {
			if _, err := tx.LockScores(ctx, tenant); err != nil {
				return err
			}
			return tx.SaveScores(ctx, []db.Score{
				{TenantID: tenant, Subject: model.SubjectEmployee, SubjectID: alice, Score: value, UpdatedAt: time.Now()},
			})
		})
		require.NoError(t, err)
	}

	err := d.RunInTx(ctx, func(tx db.Tx) error {
		scores, err := tx.LockScores(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.InDelta(t, 5.5, scores[0].Score, 1e-9)

		return tx.AppendScoreHistory(ctx, tenant, []model.ScoreHistoryEntry{
			{ID: uuid.New().String(), Subject: model.SubjectEmployee, SubjectID: alice, Delta: 3.5, Score: 5.5,
				Reason: model.ScoreReasonAssignment, CreatedAt: time.Now()},
		})
	})
	require.NoError(t, err)
}
