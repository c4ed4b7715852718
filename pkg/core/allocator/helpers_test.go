package allocator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

var (
	dayShift = model.ShiftTemplate{
		ID:       "day",
		Start:    model.MustParseClock("09:00"),
		End:      model.MustParseClock("17:00"),
		Category: model.CategoryDay,
	}
	earlyShift = model.ShiftTemplate{
		ID:       "early",
		Start:    model.MustParseClock("07:00"),
		End:      model.MustParseClock("15:00"),
		Category: model.CategoryDay,
	}
	nightShift = model.ShiftTemplate{
		ID:       "night",
		Start:    model.MustParseClock("22:00"),
		End:      model.MustParseClock("06:00"),
		Category: model.CategoryNight,
	}
	teamNightShift = model.ShiftTemplate{
		ID:       "team_night",
		Start:    model.MustParseClock("22:00"),
		End:      model.MustParseClock("06:00"),
		Category: model.CategoryNight,
		Mode:     model.ModeTeam,
	}
)

func mustDate(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func employees(ids ...string) []model.Employee {
	var result []model.Employee
	for _, id := range ids {
		result = append(result, model.Employee{ID: id, Name: id, Active: true})
	}
	return result
}

// dailyDemand requires count slots of the template on every weekday
func dailyDemand(tmpl model.ShiftTemplate, count int) []model.DemandRequirement {
	var demand []model.DemandRequirement
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		demand = append(demand, model.DemandRequirement{
			ID:            fmt.Sprintf("%s-%d", tmpl.ID, wd),
			TemplateID:    tmpl.ID,
			Weekday:       wd,
			RequiredCount: count,
		})
	}
	return demand
}

func slotOn(tmpl model.ShiftTemplate, date string, position int) *model.Slot {
	d := mustDate(date)
	start, end := tmpl.Window(d)
	return &model.Slot{
		ID:         fmt.Sprintf("%s-%s-%d", tmpl.ID, date, position),
		Date:       d,
		TemplateID: tmpl.ID,
		Start:      start,
		End:        end,
		Position:   position,
		Mode:       tmpl.EffectiveMode(),
		Category:   tmpl.Category,
	}
}

func testEngine(limits rules.Limits) *rules.Engine {
	return rules.NewEngine(rules.DefaultRegistry(), rules.DefaultDefinitions(limits, rules.DefaultSoftWeights()), zap.NewNop())
}

func allStrategies(t *testing.T, opts Options) []Strategy {
	t.Helper()
	var strategies []Strategy
	for _, alg := range []model.Algorithm{
		model.AlgorithmGreedy,
		model.AlgorithmBacktracking,
		model.AlgorithmAnnealing,
		model.AlgorithmScoreRank,
	} {
		s, err := NewStrategy(alg, testEngine(opts.Limits), opts, zap.NewNop())
		require.NoError(t, err)
		strategies = append(strategies, s)
	}
	return strategies
}

// testOptions keeps the search budgets small so tests stay fast
func testOptions() Options {
	opts := DefaultOptions()
	opts.Backtracking.MaxIterations = 5000
	opts.Backtracking.Timeout = 2 * time.Second
	opts.Annealing.Iterations = 300
	opts.Annealing.Timeout = 2 * time.Second
	return opts
}

// assignmentKeys returns the (slot, assignee) sequence of a result
func assignmentKeys(res *Result) []string {
	var keys []string
	for _, a := range res.Assignments {
		keys = append(keys, a.Slot.Key()+"="+a.AssigneeID())
	}
	return keys
}

// workByEmployee expands team assignments into member shifts
func workByEmployee(res *Result, teams []model.Team) map[string][]model.Assignment {
	members := make(map[string][]string)
	for _, t := range teams {
		members[t.ID] = t.MemberIDs
	}
	result := make(map[string][]model.Assignment)
	for _, a := range res.Assignments {
		if a.TeamID != "" {
			for _, id := range members[a.TeamID] {
				result[id] = append(result[id], a)
			}
			continue
		}
		result[a.EmployeeID] = append(result[a.EmployeeID], a)
	}
	return result
}

// requireNoDoubleBooking checks nobody works twice on a date unless locked
func requireNoDoubleBooking(t *testing.T, res *Result, teams []model.Team) {
	t.Helper()
	for id, items := range workByEmployee(res, teams) {
		seen := make(map[string]bool)
		for _, a := range items {
			if a.Locked {
				continue
			}
			key := a.Slot.DateKey()
			require.False(t, seen[key], "employee %s double booked on %s", id, key)
			seen[key] = true
		}
	}
}

// requireRest checks night to non-night transitions on adjacent dates
func requireRest(t *testing.T, res *Result, teams []model.Team, minRest time.Duration) {
	t.Helper()
	for id, items := range workByEmployee(res, teams) {
		for _, earlier := range items {
			for _, later := range items {
				if earlier.Slot.Category != model.CategoryNight || later.Slot.Category == model.CategoryNight {
					continue
				}
				if !model.SameDate(earlier.Slot.Date.AddDate(0, 0, 1), later.Slot.Date) {
					continue
				}
				gap := later.Slot.Start.Sub(earlier.Slot.End)
				require.True(t, gap >= minRest, "employee %s rests only %s", id, gap)
			}
		}
	}
}

// requireNightBound checks the longest run of consecutive night dates
func requireNightBound(t *testing.T, res *Result, teams []model.Team, limit int) {
	t.Helper()
	for id, items := range workByEmployee(res, teams) {
		nights := make(map[string]bool)
		for _, a := range items {
			if a.Slot.Category == model.CategoryNight {
				nights[a.Slot.DateKey()] = true
			}
		}
		for key := range nights {
			d := mustDate(key)
			if nights[d.AddDate(0, 0, -1).Format(model.DateLayout)] {
				continue
			}
			run := 0
			for nights[d.Format(model.DateLayout)] {
				run++
				d = d.AddDate(0, 0, 1)
			}
			require.LessOrEqual(t, run, limit, "employee %s works %d nights in a row", id, run)
		}
	}
}

// requireCoverageOrConflict checks every slot is either assigned or in conflict, never both
func requireCoverageOrConflict(t *testing.T, res *Result) {
	t.Helper()
	assigned := make(map[*model.Slot]int)
	for _, a := range res.Assignments {
		assigned[a.Slot]++
	}
	conflicted := make(map[*model.Slot]int)
	for _, c := range res.Conflicts {
		conflicted[c.Slot]++
	}
	for _, slot := range res.Slots {
		require.Equal(t, 1, assigned[slot]+conflicted[slot], "slot %s", slot.Key())
	}
	require.Equal(t, len(res.Slots), res.Telemetry.SlotsFilled+res.Telemetry.Conflicts)
}
