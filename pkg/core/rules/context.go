package rules

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Context supplies everything rules need besides the assignments themselves
type Context struct {
	StartDate    time.Time
	EndDate      time.Time
	Employees    map[string]model.Employee
	Teams        map[string]model.Team
	Templates    map[string]model.ShiftTemplate
	Availability []model.AvailabilityRecord
	Demand       []model.DemandRequirement
	Logger       *zap.Logger
}

// NewContext indexes the given entities by id
func NewContext(
	start, end time.Time,
	employees []model.Employee,
	teams []model.Team,
	templates []model.ShiftTemplate,
	availability []model.AvailabilityRecord,
	demand []model.DemandRequirement,
	logger *zap.Logger,
) *Context {
	ctx := &Context{
		StartDate:    model.TruncateDate(start),
		EndDate:      model.TruncateDate(end),
		Employees:    make(map[string]model.Employee, len(employees)),
		Teams:        make(map[string]model.Team, len(teams)),
		Templates:    make(map[string]model.ShiftTemplate, len(templates)),
		Availability: availability,
		Demand:       demand,
		Logger:       logger,
	}
	for _, e := range employees {
		ctx.Employees[e.ID] = e
	}
	for _, t := range teams {
		ctx.Teams[t.ID] = t
	}
	for _, t := range templates {
		ctx.Templates[t.ID] = t
	}
	return ctx
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// work is one employee's share of an assignment
type work struct {
	employeeID string
	slot       *model.Slot
	locked     bool
	viaTeam    bool
}

// membersOf returns the employees working an assignment
func (c *Context) membersOf(a model.Assignment) []string {
	if a.TeamID != "" {
		return c.Teams[a.TeamID].MemberIDs
	}
	if a.EmployeeID != "" {
		return []string{a.EmployeeID}
	}
	return nil
}

// workByEmployee expands team assignments into members and sorts each
// employee's work chronologically
func (c *Context) workByEmployee(assignments []model.Assignment) map[string][]work {
	result := make(map[string][]work)
	for _, a := range assignments {
		if a.Slot == nil {
			continue
		}
		for _, id := range c.membersOf(a) {
			result[id] = append(result[id], work{
				employeeID: id,
				slot:       a.Slot,
				locked:     a.Locked,
				viaTeam:    a.TeamID != "",
			})
		}
	}
	for id := range result {
		items := result[id]
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].slot.Start.Before(items[j].slot.Start)
		})
	}
	return result
}

// sortedEmployeeIDs returns map keys in a stable order so messages are deterministic
func sortedEmployeeIDs(m map[string][]work) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// distinctDates returns the sorted distinct dates of the given work items
// that satisfy keep (nil keeps everything)
func distinctDates(items []work, keep func(work) bool) []time.Time {
	seen := make(map[string]bool)
	var dates []time.Time
	for _, w := range items {
		if keep != nil && !keep(w) {
			continue
		}
		key := w.slot.DateKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		dates = append(dates, model.TruncateDate(w.slot.Date))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// longestRun returns the longest streak of consecutive calendar dates
func longestRun(dates []time.Time) (int, time.Time) {
	best, current := 0, 0
	var bestStart, currentStart time.Time
	for i, d := range dates {
		if i > 0 && d.Equal(dates[i-1].AddDate(0, 0, 1)) {
			current++
		} else {
			current = 1
			currentStart = d
		}
		if current > best {
			best = current
			bestStart = currentStart
		}
	}
	return best, bestStart
}

func instanceKey(templateID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", templateID, date.Format(model.DateLayout))
}
