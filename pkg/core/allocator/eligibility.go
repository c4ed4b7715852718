package allocator

import (
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

// rejection is the first check a candidate failed
type rejection int

const (
	accepted rejection = iota
	rejectedBlackout
	rejectedBooked
	rejectedRole
	rejectedRest
	rejectedNightStreak
	rejectedDayStreak
	rejectedWeeklyNights
)

// constraint reports whether the rejection came from a working-time limit
// rather than from the candidate being unavailable
func (r rejection) constraint() bool {
	return r >= rejectedRest
}

// Filter decides which employees and teams may fill a slot.
// Checks run in order: blackout, required role, same-day booking, rest
// window, consecutive nights, consecutive days, nights per rolling week.
type Filter struct {
	limits       rules.Limits
	availability *availabilityIndex
	employees    map[string]model.Employee
}

// NewFilter creates a filter over the given availability records.
// employees is used to resolve team members' skills.
func NewFilter(limits rules.Limits, availability []model.AvailabilityRecord, employees []model.Employee) *Filter {
	byID := make(map[string]model.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}
	return newFilter(limits, newAvailabilityIndex(availability), byID)
}

func newFilter(limits rules.Limits, ix *availabilityIndex, employees map[string]model.Employee) *Filter {
	return &Filter{limits: limits, availability: ix, employees: employees}
}

// Employees returns the pool members eligible for slot. When none are eligible
// the returned reason says why.
func (f *Filter) Employees(slot *model.Slot, pool []model.Employee, ledger *Ledger) ([]model.Employee, string) {
	var eligible []model.Employee
	constrained := false
	for _, e := range pool {
		r := f.checkEmployee(e, slot, ledger)
		if r == accepted {
			eligible = append(eligible, e)
			continue
		}
		constrained = constrained || r.constraint()
	}
	if len(eligible) > 0 {
		return eligible, ""
	}
	return nil, emptyReason(len(pool), constrained)
}

// Teams returns the teams eligible for slot. A team is eligible when no more
// than the blackout tolerance of its members are blacked out and every
// member passes the booking, rest and streak checks.
func (f *Filter) Teams(slot *model.Slot, pool []model.Team, ledger *Ledger) ([]model.Team, string) {
	var eligible []model.Team
	constrained := false
	for _, t := range pool {
		r := f.checkTeam(t, slot, ledger)
		if r == accepted {
			eligible = append(eligible, t)
			continue
		}
		constrained = constrained || r.constraint()
	}
	if len(eligible) > 0 {
		return eligible, ""
	}
	return nil, emptyReason(len(pool), constrained)
}

func emptyReason(poolSize int, constrained bool) string {
	switch {
	case poolSize == 0:
		return model.ReasonNoEmployeesAvailable
	case constrained:
		return model.ReasonConstraintExhausted
	default:
		return model.ReasonNoAvailableCandidate
	}
}

func (f *Filter) checkEmployee(e model.Employee, slot *model.Slot, ledger *Ledger) rejection {
	if f.availability.blackedOut(e.ID, slot) {
		return rejectedBlackout
	}
	if slot.RequiredRole != "" && !e.HasSkill(slot.RequiredRole) {
		return rejectedRole
	}
	return f.checkWorkload(e.ID, slot, ledger)
}

func (f *Filter) checkTeam(t model.Team, slot *model.Slot, ledger *Ledger) rejection {
	if len(t.MemberIDs) == 0 {
		return rejectedBlackout
	}

	blackedOut := 0
	for _, id := range t.MemberIDs {
		if f.availability.blackedOut(id, slot) {
			blackedOut++
		}
	}
	if float64(blackedOut) > f.limits.TeamBlackoutTolerance*float64(len(t.MemberIDs)) {
		return rejectedBlackout
	}

	if slot.RequiredRole != "" {
		qualified := false
		for _, id := range t.MemberIDs {
			if f.employees[id].HasSkill(slot.RequiredRole) {
				qualified = true
				break
			}
		}
		if !qualified {
			return rejectedRole
		}
	}

	for _, id := range t.MemberIDs {
		if r := f.checkWorkload(id, slot, ledger); r != accepted {
			return r
		}
	}
	return accepted
}

// checkWorkload runs the booking, rest and streak checks for one person
func (f *Filter) checkWorkload(employeeID string, slot *model.Slot, ledger *Ledger) rejection {
	if ledger.worked(employeeID, slot.Date) {
		return rejectedBooked
	}
	if !f.rested(employeeID, slot, ledger) {
		return rejectedRest
	}
	if slot.Category == model.CategoryNight && f.limits.MaxConsecutiveNights > 0 {
		if f.nightStreak(employeeID, slot.Date, ledger) > f.limits.MaxConsecutiveNights {
			return rejectedNightStreak
		}
	}
	if f.limits.MaxConsecutiveDays > 0 && f.dayStreak(employeeID, slot.Date, ledger) > f.limits.MaxConsecutiveDays {
		return rejectedDayStreak
	}
	if slot.Category == model.CategoryNight && f.limits.MaxNightsPerWeek > 0 {
		if f.weeklyNightsExceeded(employeeID, slot.Date, ledger) {
			return rejectedWeeklyNights
		}
	}
	return accepted
}

// rested checks the gap to shifts on the previous and the next day.
// Slots may be filled out of order, so both directions matter.
func (f *Filter) rested(employeeID string, slot *model.Slot, ledger *Ledger) bool {
	minimum := time.Duration(f.limits.MinRestHours * float64(time.Hour))
	if minimum <= 0 {
		return true
	}
	for _, prev := range ledger.ShiftsOn(employeeID, slot.Date.AddDate(0, 0, -1)) {
		if slot.Start.Sub(prev.End) < minimum {
			return false
		}
	}
	for _, next := range ledger.ShiftsOn(employeeID, slot.Date.AddDate(0, 0, 1)) {
		if next.Start.Sub(slot.End) < minimum {
			return false
		}
	}
	return true
}

// nightStreak is the length of the night run the slot would sit in,
// walking backward and forward until a day without a night shift
func (f *Filter) nightStreak(employeeID string, date time.Time, ledger *Ledger) int {
	streak := 1
	for d := date.AddDate(0, 0, -1); ledger.workedNight(employeeID, d); d = d.AddDate(0, 0, -1) {
		streak++
	}
	for d := date.AddDate(0, 0, 1); ledger.workedNight(employeeID, d); d = d.AddDate(0, 0, 1) {
		streak++
	}
	return streak
}

func (f *Filter) dayStreak(employeeID string, date time.Time, ledger *Ledger) int {
	streak := 1
	for d := date.AddDate(0, 0, -1); ledger.worked(employeeID, d); d = d.AddDate(0, 0, -1) {
		streak++
	}
	for d := date.AddDate(0, 0, 1); ledger.worked(employeeID, d); d = d.AddDate(0, 0, 1) {
		streak++
	}
	return streak
}

// weeklyNightsExceeded reports whether a night on date would push any rolling
// 7-day window containing it over the weekly cap
func (f *Filter) weeklyNightsExceeded(employeeID string, date time.Time, ledger *Ledger) bool {
	for offset := -6; offset <= 0; offset++ {
		windowStart := date.AddDate(0, 0, offset)
		nights := 1
		for i := 0; i < 7; i++ {
			d := windowStart.AddDate(0, 0, i)
			if model.SameDate(d, date) {
				continue
			}
			if ledger.workedNight(employeeID, d) {
				nights++
			}
		}
		if nights > f.limits.MaxNightsPerWeek {
			return true
		}
	}
	return false
}
