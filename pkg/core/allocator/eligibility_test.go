package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

func collectIDs[T any](items []T, id func(T) string) []string {
	var result []string
	for _, item := range items {
		result = append(result, id(item))
	}
	return result
}

func employeeIDs(items []model.Employee) []string {
	return collectIDs(items, func(e model.Employee) string { return e.ID })
}

func TestFilter_Blackout(t *testing.T) {
	slot := slotOn(dayShift, "2025-01-06", 0)
	f := NewFilter(rules.DefaultLimits(), []model.AvailabilityRecord{
		{EmployeeID: "alice", Date: mustDate("2025-01-06"), Kind: model.AvailabilityBlackout},
	}, nil)

	eligible, reason := f.Employees(slot, employees("alice", "bob"), NewLedger())
	assert.Equal(t, []string{"bob"}, employeeIDs(eligible))
	assert.Empty(t, reason)

	eligible, reason = f.Employees(slot, employees("alice"), NewLedger())
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonNoAvailableCandidate, reason)
}

func TestFilter_EmptyPool(t *testing.T) {
	f := NewFilter(rules.DefaultLimits(), nil, nil)
	_, reason := f.Employees(slotOn(dayShift, "2025-01-06", 0), nil, NewLedger())
	assert.Equal(t, model.ReasonNoEmployeesAvailable, reason)
}

func TestFilter_AlreadyBookedThatDay(t *testing.T) {
	f := NewFilter(rules.DefaultLimits(), nil, nil)
	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(earlyShift, "2025-01-06", 0), "alice", true)

	eligible, reason := f.Employees(slotOn(dayShift, "2025-01-06", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonNoAvailableCandidate, reason)
}

func TestFilter_RequiredRole(t *testing.T) {
	slot := slotOn(dayShift, "2025-01-06", 0)
	slot.RequiredRole = "medic"
	pool := []model.Employee{
		{ID: "alice", Active: true, Skills: []string{"medic"}},
		{ID: "bob", Active: true},
	}
	f := NewFilter(rules.DefaultLimits(), nil, pool)

	eligible, _ := f.Employees(slot, pool, NewLedger())
	assert.Equal(t, []string{"alice"}, employeeIDs(eligible))
}

func TestFilter_RestAfterNight(t *testing.T) {
	f := NewFilter(rules.DefaultLimits(), nil, nil)
	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-06", 0), "alice", true)

	// night ends 06:00, early starts 07:00
	eligible, reason := f.Employees(slotOn(earlyShift, "2025-01-07", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonConstraintExhausted, reason)

	// the next night starts 16 hours later
	eligible, _ = f.Employees(slotOn(nightShift, "2025-01-07", 0), employees("alice"), ledger)
	assert.Len(t, eligible, 1)
}

func TestFilter_RestBeforeLaterShift(t *testing.T) {
	f := NewFilter(rules.DefaultLimits(), nil, nil)
	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(earlyShift, "2025-01-07", 0), "alice", true)

	eligible, _ := f.Employees(slotOn(nightShift, "2025-01-06", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)
}

func TestFilter_NightStreakBothDirections(t *testing.T) {
	limits := rules.DefaultLimits()
	limits.MaxConsecutiveNights = 2
	f := NewFilter(limits, nil, nil)

	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-06", 0), "alice", true)
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-08", 0), "alice", true)

	// filling the gap would make a run of three
	eligible, reason := f.Employees(slotOn(nightShift, "2025-01-07", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonConstraintExhausted, reason)

	eligible, _ = f.Employees(slotOn(nightShift, "2025-01-10", 0), employees("alice"), ledger)
	assert.Len(t, eligible, 1)
}

func TestFilter_ConsecutiveDays(t *testing.T) {
	limits := rules.DefaultLimits()
	limits.MaxConsecutiveDays = 3
	f := NewFilter(limits, nil, nil)

	ledger := NewLedger()
	for _, d := range []string{"2025-01-06", "2025-01-07", "2025-01-08"} {
		ledger.Book([]string{"alice"}, slotOn(dayShift, d, 0), "alice", true)
	}

	eligible, _ := f.Employees(slotOn(dayShift, "2025-01-09", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)
	eligible, _ = f.Employees(slotOn(dayShift, "2025-01-10", 0), employees("alice"), ledger)
	assert.Len(t, eligible, 1)
}

func TestFilter_NightsPerRollingWeek(t *testing.T) {
	limits := rules.DefaultLimits()
	limits.MaxNightsPerWeek = 2
	limits.MaxConsecutiveNights = 5
	f := NewFilter(limits, nil, nil)

	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-06", 0), "alice", true)
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-09", 0), "alice", true)

	eligible, _ := f.Employees(slotOn(nightShift, "2025-01-11", 0), employees("alice"), ledger)
	assert.Empty(t, eligible)

	// the window from 01-07 holds only one other night
	eligible, _ = f.Employees(slotOn(nightShift, "2025-01-13", 0), employees("alice"), ledger)
	assert.Len(t, eligible, 1)
}

func TestFilter_HistoryCountsAcrossBoundary(t *testing.T) {
	f := NewFilter(rules.DefaultLimits(), nil, nil)
	ledger := NewLedger()
	ledger.Book([]string{"alice"}, slotOn(nightShift, "2025-01-05", 0), "alice", false)

	eligible, _ := f.Employees(slotOn(earlyShift, "2025-01-06", 0), employees("alice", "bob"), ledger)
	assert.Equal(t, []string{"bob"}, employeeIDs(eligible))
	assert.Zero(t, ledger.Count("alice"))
}

func TestFilter_TeamBlackoutTolerance(t *testing.T) {
	slot := slotOn(teamNightShift, "2025-01-06", 0)
	crew := model.Team{ID: "crew", MemberIDs: []string{"m1", "m2", "m3", "m4", "m5"}}
	blackout := func(id string) model.AvailabilityRecord {
		return model.AvailabilityRecord{EmployeeID: id, Date: mustDate("2025-01-06"), Kind: model.AvailabilityBlackout}
	}

	f := NewFilter(rules.DefaultLimits(), []model.AvailabilityRecord{blackout("m1")}, employees(crew.MemberIDs...))
	eligible, _ := f.Teams(slot, []model.Team{crew}, NewLedger())
	require.Len(t, eligible, 1)

	f = NewFilter(rules.DefaultLimits(), []model.AvailabilityRecord{blackout("m1"), blackout("m2")}, employees(crew.MemberIDs...))
	eligible, reason := f.Teams(slot, []model.Team{crew}, NewLedger())
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonNoAvailableCandidate, reason)
}

func TestFilter_TeamMemberWorkload(t *testing.T) {
	slot := slotOn(teamNightShift, "2025-01-07", 0)
	crew := model.Team{ID: "crew", MemberIDs: []string{"m1", "m2"}}
	f := NewFilter(rules.DefaultLimits(), nil, employees("m1", "m2"))

	ledger := NewLedger()
	ledger.Book([]string{"m2"}, slotOn(dayShift, "2025-01-07", 0), "m2", true)

	eligible, reason := f.Teams(slot, []model.Team{crew}, ledger)
	assert.Empty(t, eligible)
	assert.Equal(t, model.ReasonNoAvailableCandidate, reason)
}

func TestLedger_BookRelease(t *testing.T) {
	ledger := NewLedger()
	slot := slotOn(nightShift, "2025-01-06", 0)

	ledger.Book([]string{"m1", "m2"}, slot, "crew", true)
	assert.Equal(t, 1, ledger.Count("crew"))
	assert.Len(t, ledger.ShiftsOn("m2", mustDate("2025-01-06")), 1)
	assert.True(t, ledger.workedNight("m1", mustDate("2025-01-06")))

	ledger.Release([]string{"m1", "m2"}, slot, "crew", true)
	assert.Zero(t, ledger.Count("crew"))
	assert.Empty(t, ledger.ShiftsOn("m2", mustDate("2025-01-06")))
	assert.False(t, ledger.worked("m1", mustDate("2025-01-06")))
}
