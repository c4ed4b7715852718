package rules

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// preferredAvailability adds one penalty point per assignment of an employee
// who stated preferences but has none matching that slot. A preference matches
// when scoped to the exact template, or when it is a general preference for the date.
func preferredAvailability(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	preferences := make(map[string][]model.AvailabilityRecord)
	for _, r := range ctx.Availability {
		if r.Kind == model.AvailabilityPreferred {
			preferences[r.EmployeeID] = append(preferences[r.EmployeeID], r)
		}
	}

	unmatched := 0
	for _, a := range assignments {
		if a.Slot == nil || a.EmployeeID == "" {
			continue
		}
		prefs, ok := preferences[a.EmployeeID]
		if !ok {
			continue
		}
		matched := false
		for _, p := range prefs {
			if p.AppliesTo(a.Slot) {
				matched = true
				break
			}
		}
		if !matched {
			unmatched++
		}
	}

	if unmatched == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: float64(unmatched),
		Message: fmt.Sprintf("%d assignments ignore stated preferences", unmatched),
		Details: map[string]any{"unmatched": unmatched},
	}
}

// shiftTypeChanges adds one point each time an employee switches shift category between consecutive days
func shiftTypeChanges(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	byEmployee := ctx.workByEmployee(assignments)

	changes := 0
	for _, id := range sortedEmployeeIDs(byEmployee) {
		items := byEmployee[id]
		for i := 1; i < len(items); i++ {
			prev, cur := items[i-1], items[i]
			nextDay := model.TruncateDate(prev.slot.Date).AddDate(0, 0, 1)
			if !model.SameDate(nextDay, cur.slot.Date) {
				continue
			}
			if prev.slot.Category != cur.slot.Category {
				changes++
			}
		}
	}

	if changes == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: float64(changes),
		Message: fmt.Sprintf("%d day-to-day shift type changes", changes),
		Details: map[string]any{"changes": changes},
	}
}

// balanceHours penalises the population standard deviation of assigned hours
// across every employee in the context
func balanceHours(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	if len(ctx.Employees) == 0 {
		return SoftResult{}
	}

	hours := make(map[string]float64, len(ctx.Employees))
	for id := range ctx.Employees {
		hours[id] = 0
	}
	for id, items := range ctx.workByEmployee(assignments) {
		if _, ok := ctx.Employees[id]; !ok {
			continue
		}
		for _, w := range items {
			hours[id] += w.slot.Hours()
		}
	}

	mean := 0.0
	for _, h := range hours {
		mean += h
	}
	mean /= float64(len(hours))

	variance := 0.0
	for _, h := range hours {
		variance += (h - mean) * (h - mean)
	}
	stddev := math.Sqrt(variance / float64(len(hours)))

	if stddev == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: stddev,
		Message: fmt.Sprintf("assigned hours deviate by %.2f", stddev),
		Details: map[string]any{"stddev": stddev, "mean": mean},
	}
}

// consecutiveBlocks rewards working in longer blocks. Each block of consecutive
// days counts one point and every extra day inside a block earns one point
// back; an employee's total never drops below zero.
func consecutiveBlocks(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	byEmployee := ctx.workByEmployee(assignments)

	total := 0.0
	for _, id := range sortedEmployeeIDs(byEmployee) {
		dates := distinctDates(byEmployee[id], nil)
		blocks, bonus := 0, 0
		for i, d := range dates {
			if i > 0 && d.Equal(dates[i-1].AddDate(0, 0, 1)) {
				bonus++
				continue
			}
			blocks++
		}
		total += math.Max(0, float64(blocks-bonus))
	}

	if total == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: total,
		Message: fmt.Sprintf("fragmented work pattern scores %.0f", total),
	}
}

// splitWeekend adds one point per employee weekend where exactly one of Saturday and Sunday is worked
func splitWeekend(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	byEmployee := ctx.workByEmployee(assignments)

	splits := 0
	for _, id := range sortedEmployeeIDs(byEmployee) {
		weekends := make(map[string]int)
		for _, d := range distinctDates(byEmployee[id], nil) {
			switch d.Weekday() {
			case time.Saturday:
				weekends[d.Format(model.DateLayout)]++
			case time.Sunday:
				weekends[d.AddDate(0, 0, -1).Format(model.DateLayout)]++
			}
		}
		keys := make([]string, 0, len(weekends))
		for k := range weekends {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if weekends[k] == 1 {
				splits++
			}
		}
	}

	if splits == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: float64(splits),
		Message: fmt.Sprintf("%d split weekends", splits),
		Details: map[string]any{"splits": splits},
	}
}
