package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

func TestMaxNightsPerWeek(t *testing.T) {
	ctx := testContext("2025-01-06", "2025-01-19", "alice")

	t.Run("four nights in a rolling week fails", func(t *testing.T) {
		var assignments []model.Assignment
		for _, d := range []string{"2025-01-06", "2025-01-08", "2025-01-10", "2025-01-12"} {
			assignments = append(assignments, assign("alice", slotFor(nightTemplate, d, 0)))
		}
		res := maxNightsPerWeek(assignments, ctx, Params{"max": 3})
		assert.False(t, res.Passed)
		assert.Contains(t, res.Message, "alice")
	})

	t.Run("nights spread over two weeks pass", func(t *testing.T) {
		var assignments []model.Assignment
		for _, d := range []string{"2025-01-06", "2025-01-08", "2025-01-10", "2025-01-14"} {
			assignments = append(assignments, assign("alice", slotFor(nightTemplate, d, 0)))
		}
		res := maxNightsPerWeek(assignments, ctx, Params{"max": 3})
		assert.True(t, res.Passed)
	})
}

func TestMinRestHours(t *testing.T) {
	ctx := testContext("2025-01-06", "2025-01-08", "alice")

	t.Run("night then early shift fails", func(t *testing.T) {
		res := minRestHours([]model.Assignment{
			assign("alice", slotFor(nightTemplate, "2025-01-06", 0)),
			assign("alice", slotFor(earlyTemplate, "2025-01-07", 0)),
		}, ctx, Params{"hours": 11})
		assert.False(t, res.Passed)
	})

	t.Run("day then day passes", func(t *testing.T) {
		res := minRestHours([]model.Assignment{
			assign("alice", slotFor(dayTemplate, "2025-01-06", 0)),
			assign("alice", slotFor(dayTemplate, "2025-01-07", 0)),
		}, ctx, Params{"hours": 11})
		assert.True(t, res.Passed)
	})

	t.Run("different employees are independent", func(t *testing.T) {
		res := minRestHours([]model.Assignment{
			assign("alice", slotFor(nightTemplate, "2025-01-06", 0)),
			assign("bob", slotFor(earlyTemplate, "2025-01-07", 0)),
		}, ctx, Params{"hours": 11})
		assert.True(t, res.Passed)
	})
}

func TestMaxConsecutiveDays(t *testing.T) {
	ctx := testContext("2025-01-06", "2025-01-14", "alice")

	var week []model.Assignment
	for _, d := range model.DatesBetween(mustDate("2025-01-06"), mustDate("2025-01-12")) {
		week = append(week, assign("alice", slotFor(dayTemplate, d.Format(model.DateLayout), 0)))
	}

	assert.False(t, maxConsecutiveDays(week, ctx, Params{"max": 6}).Passed)
	assert.True(t, maxConsecutiveDays(week[:6], ctx, Params{"max": 6}).Passed)
}

func TestMaxConsecutiveNights(t *testing.T) {
	ctx := testContext("2025-01-06", "2025-01-10", "alice")

	broken := []model.Assignment{
		assign("alice", slotFor(nightTemplate, "2025-01-06", 0)),
		assign("alice", slotFor(nightTemplate, "2025-01-07", 0)),
		assign("alice", slotFor(nightTemplate, "2025-01-09", 0)),
	}
	assert.True(t, maxConsecutiveNights(broken, ctx, Params{"max": 2}).Passed)

	streak := append(broken, assign("alice", slotFor(nightTemplate, "2025-01-08", 0)))
	assert.False(t, maxConsecutiveNights(streak, ctx, Params{"max": 2}).Passed)
}

func TestRequiredSkillCoverage(t *testing.T) {
	firstAid := model.ShiftTemplate{
		ID:             "ward",
		Start:          model.MustParseClock("08:00"),
		End:            model.MustParseClock("16:00"),
		Category:       model.CategoryDay,
		RequiredSkills: []string{"first_aid"},
	}
	ctx := NewContext(mustDate("2025-01-06"), mustDate("2025-01-06"), []model.Employee{
		{ID: "alice", Active: true},
		{ID: "bob", Active: true, Skills: []string{"first_aid"}},
	}, nil, []model.ShiftTemplate{firstAid}, nil, nil, zap.NewNop())

	t.Run("instance without the skill fails", func(t *testing.T) {
		res := requiredSkillCoverage([]model.Assignment{
			assign("alice", slotFor(firstAid, "2025-01-06", 0)),
		}, ctx, nil)
		assert.False(t, res.Passed)
		assert.Contains(t, res.Message, "first_aid")
	})

	t.Run("one skilled member covers the instance", func(t *testing.T) {
		res := requiredSkillCoverage([]model.Assignment{
			assign("alice", slotFor(firstAid, "2025-01-06", 0)),
			assign("bob", slotFor(firstAid, "2025-01-06", 1)),
		}, ctx, nil)
		assert.True(t, res.Passed)
	})

	t.Run("slot role must be held by the assignee", func(t *testing.T) {
		slot := slotFor(firstAid, "2025-01-06", 0)
		slot.RequiredRole = "first_aid"
		res := requiredSkillCoverage([]model.Assignment{
			assign("alice", slot),
			assign("bob", slotFor(firstAid, "2025-01-06", 1)),
		}, ctx, nil)
		assert.False(t, res.Passed)
	})
}

func TestNoBlackoutOverlap(t *testing.T) {
	members := []string{"m1", "m2", "m3", "m4", "m5"}
	var employees []model.Employee
	for _, id := range append([]string{"alice"}, members...) {
		employees = append(employees, model.Employee{ID: id, Active: true})
	}
	team := model.Team{ID: "crew", MemberIDs: members}

	blackout := func(employeeID string) model.AvailabilityRecord {
		return model.AvailabilityRecord{EmployeeID: employeeID, Date: mustDate("2025-01-06"), Kind: model.AvailabilityBlackout}
	}
	newCtx := func(records ...model.AvailabilityRecord) *Context {
		return NewContext(mustDate("2025-01-06"), mustDate("2025-01-06"), employees, []model.Team{team},
			[]model.ShiftTemplate{dayTemplate}, records, nil, zap.NewNop())
	}
	slot := slotFor(dayTemplate, "2025-01-06", 0)

	t.Run("employee on blackout fails", func(t *testing.T) {
		res := noBlackoutOverlap([]model.Assignment{assign("alice", slot)}, newCtx(blackout("alice")), nil)
		assert.False(t, res.Passed)
	})

	t.Run("blackout on another date passes", func(t *testing.T) {
		rec := blackout("alice")
		rec.Date = mustDate("2025-01-07")
		res := noBlackoutOverlap([]model.Assignment{assign("alice", slot)}, newCtx(rec), nil)
		assert.True(t, res.Passed)
	})

	t.Run("team within tolerance passes", func(t *testing.T) {
		a := model.Assignment{Slot: slot, TeamID: "crew"}
		res := noBlackoutOverlap([]model.Assignment{a}, newCtx(blackout("m1")), Params{"team_tolerance": 0.2})
		assert.True(t, res.Passed)
	})

	t.Run("team beyond tolerance fails", func(t *testing.T) {
		a := model.Assignment{Slot: slot, TeamID: "crew"}
		res := noBlackoutOverlap([]model.Assignment{a}, newCtx(blackout("m1"), blackout("m2")), Params{"team_tolerance": 0.2})
		assert.False(t, res.Passed)
	})
}

func TestPinnedAssignments(t *testing.T) {
	pin := model.AvailabilityRecord{
		EmployeeID: "alice",
		Date:       mustDate("2025-01-07"),
		Kind:       model.AvailabilityPinned,
		TemplateID: dayTemplate.ID,
	}
	outOfRange := pin
	outOfRange.Date = mustDate("2025-02-01")

	ctx := NewContext(mustDate("2025-01-06"), mustDate("2025-01-08"), []model.Employee{{ID: "alice", Active: true}},
		nil, []model.ShiftTemplate{dayTemplate, nightTemplate}, []model.AvailabilityRecord{pin, outOfRange}, nil, zap.NewNop())

	assert.False(t, pinnedAssignments(nil, ctx, nil).Passed)
	assert.False(t, pinnedAssignments([]model.Assignment{
		assign("alice", slotFor(nightTemplate, "2025-01-07", 0)),
	}, ctx, nil).Passed, "wrong template does not satisfy the pin")
	assert.True(t, pinnedAssignments([]model.Assignment{
		assign("alice", slotFor(dayTemplate, "2025-01-07", 0)),
	}, ctx, nil).Passed)
}

func TestDemandCoverage(t *testing.T) {
	demand := []model.DemandRequirement{{TemplateID: dayTemplate.ID, Weekday: time.Monday, RequiredCount: 2}}
	ctx := NewContext(mustDate("2025-01-06"), mustDate("2025-01-12"), nil, nil,
		[]model.ShiftTemplate{dayTemplate}, nil, demand, zap.NewNop())

	partial := []model.Assignment{
		assign("alice", slotFor(dayTemplate, "2025-01-06", 0)),
		{Slot: slotFor(dayTemplate, "2025-01-06", 1)},
	}
	res := demandCoverage(partial, ctx, nil)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "1 of 2")

	full := []model.Assignment{
		assign("alice", slotFor(dayTemplate, "2025-01-06", 0)),
		assign("bob", slotFor(dayTemplate, "2025-01-06", 1)),
	}
	assert.True(t, demandCoverage(full, ctx, nil).Passed)
}

func TestOneShiftPerDay(t *testing.T) {
	ctx := testContext("2025-01-06", "2025-01-06", "alice")

	double := []model.Assignment{
		assign("alice", slotFor(earlyTemplate, "2025-01-06", 0)),
		assign("alice", slotFor(nightTemplate, "2025-01-06", 0)),
	}
	assert.False(t, oneShiftPerDay(double, ctx, nil).Passed)

	for i := range double {
		double[i].Locked = true
		double[i].Source = model.SourceManual
	}
	assert.True(t, oneShiftPerDay(double, ctx, nil).Passed, "locked overrides may double up")
}
