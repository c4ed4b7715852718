package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Built-in rule ids
const (
	RuleMaxNightsPerWeek      = "max_nights_per_week"
	RuleMinRestHours          = "min_rest_hours"
	RuleMaxConsecutiveDays    = "max_consecutive_days"
	RuleMaxConsecutiveNights  = "max_consecutive_nights"
	RuleRequiredSkillCoverage = "required_skill_coverage"
	RuleNoBlackoutOverlap     = "no_blackout_overlap"
	RulePinnedAssignments     = "pinned_assignments"
	RuleDemandCoverage        = "demand_coverage"
	RuleOneShiftPerDay        = "one_shift_per_day"

	RulePreferredAvailability = "preferred_availability"
	RuleShiftTypeChanges      = "shift_type_changes"
	RuleBalanceHours          = "balance_hours"
	RuleConsecutiveBlocks     = "consecutive_blocks"
	RuleSplitWeekend          = "split_weekend"

	RuleExpression = "expression"
)

func pass() HardResult {
	return HardResult{Passed: true}
}

func fail(problems []string, details map[string]any) HardResult {
	return HardResult{
		Passed:   false,
		Message:  strings.Join(problems, "; "),
		Details:  details,
		Problems: problems,
	}
}

func isNight(w work) bool {
	return w.slot.Category == model.CategoryNight
}

// maxNightsPerWeek fails when any rolling 7-day window holds more than "max" night shifts
func maxNightsPerWeek(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	limit := params.Int("max", 3)
	byEmployee := ctx.workByEmployee(assignments)

	var problems []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		nights := distinctDates(byEmployee[id], isNight)
		for i, windowStart := range nights {
			windowEnd := windowStart.AddDate(0, 0, 6)
			count := 0
			for _, d := range nights[i:] {
				if d.After(windowEnd) {
					break
				}
				count++
			}
			if count > limit {
				problems = append(problems, fmt.Sprintf("employee %s works %d nights in the week from %s (max %d)",
					id, count, windowStart.Format(model.DateLayout), limit))
				break
			}
		}
	}

	if len(problems) > 0 {
		return fail(problems, map[string]any{"max": limit})
	}
	return pass()
}

// minRestHours fails when consecutive shifts of an employee are separated by
// less than "hours", measured from actual end to actual start
func minRestHours(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	hours := params.Float("hours", 11)
	minimum := time.Duration(hours * float64(time.Hour))
	byEmployee := ctx.workByEmployee(assignments)

	var problems []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		items := byEmployee[id]
		for i := 1; i < len(items); i++ {
			prev, cur := items[i-1], items[i]
			gap := cur.slot.Start.Sub(prev.slot.End)
			if gap < minimum {
				problems = append(problems, fmt.Sprintf("employee %s rests %.1fh between %s and %s (min %.1fh)",
					id, gap.Hours(), prev.slot.Key(), cur.slot.Key(), hours))
			}
		}
	}

	if len(problems) > 0 {
		return fail(problems, map[string]any{"hours": hours})
	}
	return pass()
}

// maxConsecutiveDays fails when an employee works more than "max" calendar days in a row
func maxConsecutiveDays(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	limit := params.Int("max", 6)
	byEmployee := ctx.workByEmployee(assignments)

	var problems []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		run, from := longestRun(distinctDates(byEmployee[id], nil))
		if run > limit {
			problems = append(problems, fmt.Sprintf("employee %s works %d consecutive days from %s (max %d)",
				id, run, from.Format(model.DateLayout), limit))
		}
	}

	if len(problems) > 0 {
		return fail(problems, map[string]any{"max": limit})
	}
	return pass()
}

// maxConsecutiveNights fails when an employee works more than "max" nights in an unbroken streak
func maxConsecutiveNights(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	limit := params.Int("max", 2)
	byEmployee := ctx.workByEmployee(assignments)

	var problems []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		run, from := longestRun(distinctDates(byEmployee[id], isNight))
		if run > limit {
			problems = append(problems, fmt.Sprintf("employee %s works %d consecutive nights from %s (max %d)",
				id, run, from.Format(model.DateLayout), limit))
		}
	}

	if len(problems) > 0 {
		return fail(problems, map[string]any{"max": limit})
	}
	return pass()
}

// requiredSkillCoverage fails when a shift instance lacks one of its template's
// required skills, or a slot's required role is not held by its assignee
func requiredSkillCoverage(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	type instance struct {
		templateID string
		date       time.Time
		skills     map[string]bool
	}
	instances := make(map[string]*instance)
	var keys []string
	var problems []string

	for _, a := range assignments {
		if a.Slot == nil {
			continue
		}
		key := instanceKey(a.Slot.TemplateID, a.Slot.Date)
		inst, ok := instances[key]
		if !ok {
			inst = &instance{templateID: a.Slot.TemplateID, date: a.Slot.Date, skills: make(map[string]bool)}
			instances[key] = inst
			keys = append(keys, key)
		}

		for _, memberID := range ctx.membersOf(a) {
			for _, skill := range ctx.Employees[memberID].Skills {
				inst.skills[skill] = true
			}
		}

		if role := a.Slot.RequiredRole; role != "" {
			qualified := false
			for _, memberID := range ctx.membersOf(a) {
				if ctx.Employees[memberID].HasSkill(role) {
					qualified = true
					break
				}
			}
			if !qualified {
				problems = append(problems, fmt.Sprintf("%s requires role %s but %s does not hold it",
					a.Slot.Key(), role, a.AssigneeID()))
			}
		}
	}

	sort.Strings(keys)
	for _, key := range keys {
		inst := instances[key]
		for _, skill := range ctx.Templates[inst.templateID].RequiredSkills {
			if !inst.skills[skill] {
				problems = append(problems, fmt.Sprintf("shift %s on %s has nobody with skill %s",
					inst.templateID, inst.date.Format(model.DateLayout), skill))
			}
		}
	}

	if len(problems) > 0 {
		return fail(problems, nil)
	}
	return pass()
}

// noBlackoutOverlap fails when an assignment overlaps a blackout of its employee.
// Team assignments fail only when more than "team_tolerance" of the members are blacked out.
func noBlackoutOverlap(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	tolerance := params.Float("team_tolerance", 0.2)

	blackouts := make(map[string][]model.AvailabilityRecord)
	for _, r := range ctx.Availability {
		if r.Kind == model.AvailabilityBlackout {
			blackouts[r.EmployeeID] = append(blackouts[r.EmployeeID], r)
		}
	}

	blackedOut := func(employeeID string, slot *model.Slot) bool {
		for _, r := range blackouts[employeeID] {
			if r.AppliesTo(slot) {
				return true
			}
		}
		return false
	}

	var problems []string
	for _, a := range assignments {
		if a.Slot == nil {
			continue
		}
		members := ctx.membersOf(a)
		count := 0
		for _, memberID := range members {
			if blackedOut(memberID, a.Slot) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		if a.TeamID != "" && float64(count) <= tolerance*float64(len(members)) {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s assigned to %s during a blackout", a.AssigneeID(), a.Slot.Key()))
	}

	if len(problems) > 0 {
		return fail(problems, nil)
	}
	return pass()
}

// pinnedAssignments fails when a pinned availability record in range has no matching assignment
func pinnedAssignments(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	worked := ctx.workByEmployee(assignments)

	var problems []string
	for _, r := range ctx.Availability {
		if r.Kind != model.AvailabilityPinned {
			continue
		}
		if r.Date.Before(ctx.StartDate) || r.Date.After(ctx.EndDate) {
			continue
		}
		matched := false
		for _, w := range worked[r.EmployeeID] {
			if r.AppliesTo(w.slot) {
				matched = true
				break
			}
		}
		if !matched {
			scope := "any shift"
			if r.TemplateID != "" {
				scope = r.TemplateID
			}
			problems = append(problems, fmt.Sprintf("employee %s is pinned to %s on %s but not assigned",
				r.EmployeeID, scope, r.Date.Format(model.DateLayout)))
		}
	}

	if len(problems) > 0 {
		return fail(problems, nil)
	}
	return pass()
}

// demandCoverage fails when a (template, date) pair implied by demand has fewer
// assignments than its required headcount
func demandCoverage(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	filled := make(map[string]int)
	for _, a := range assignments {
		if a.Slot == nil || a.AssigneeID() == "" {
			continue
		}
		filled[instanceKey(a.Slot.TemplateID, a.Slot.Date)]++
	}

	required := make(map[string]int)
	var keys []string
	for _, d := range ctx.Demand {
		for _, date := range model.DatesBetween(ctx.StartDate, ctx.EndDate) {
			if !d.Covers(date) {
				continue
			}
			key := instanceKey(d.TemplateID, date)
			if _, ok := required[key]; !ok {
				keys = append(keys, key)
			}
			required[key] += d.RequiredCount
		}
	}

	sort.Strings(keys)
	var problems []string
	for _, key := range keys {
		if filled[key] < required[key] {
			problems = append(problems, fmt.Sprintf("%s has %d of %d required", key, filled[key], required[key]))
		}
	}

	if len(problems) > 0 {
		return fail(problems, map[string]any{"shortfalls": len(problems)})
	}
	return pass()
}

// oneShiftPerDay fails when an employee holds more than one assignment on a date,
// unless every extra assignment on that date is a locked manual override
func oneShiftPerDay(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	byEmployee := ctx.workByEmployee(assignments)

	var problems []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		perDate := make(map[string][]work)
		var dates []string
		for _, w := range byEmployee[id] {
			key := w.slot.DateKey()
			if len(perDate[key]) == 0 {
				dates = append(dates, key)
			}
			perDate[key] = append(perDate[key], w)
		}
		for _, key := range dates {
			items := perDate[key]
			if len(items) < 2 {
				continue
			}
			unlocked := 0
			for _, w := range items {
				if !w.locked {
					unlocked++
				}
			}
			if unlocked > 0 {
				problems = append(problems, fmt.Sprintf("employee %s has %d shifts on %s", id, len(items), key))
			}
		}
	}

	if len(problems) > 0 {
		return fail(problems, nil)
	}
	return pass()
}
