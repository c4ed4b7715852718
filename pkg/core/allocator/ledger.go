package allocator

import (
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Ledger tracks who works which shift while a strategy runs.
// It holds prior assignments (history and locked edits) as well as the
// strategy's own, so eligibility checks see across schedule boundaries.
type Ledger struct {
	// shifts maps employee id to date key to the slots worked that day
	shifts map[string]map[string][]*model.Slot

	// counts is the number of assignments made during this run per assignee
	// (employee or team id). Prior assignments are not counted.
	counts map[string]int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		shifts: make(map[string]map[string][]*model.Slot),
		counts: make(map[string]int),
	}
}

// Book records that members work slot. counted marks an assignment made by
// the current run and attributes it to assigneeID.
func (l *Ledger) Book(members []string, slot *model.Slot, assigneeID string, counted bool) {
	key := slot.DateKey()
	for _, id := range members {
		days, ok := l.shifts[id]
		if !ok {
			days = make(map[string][]*model.Slot)
			l.shifts[id] = days
		}
		days[key] = append(days[key], slot)
	}
	if counted {
		l.counts[assigneeID]++
	}
}

// Release undoes a Book with the same arguments
func (l *Ledger) Release(members []string, slot *model.Slot, assigneeID string, counted bool) {
	key := slot.DateKey()
	for _, id := range members {
		slots := l.shifts[id][key]
		for i, s := range slots {
			if s == slot {
				l.shifts[id][key] = append(slots[:i:i], slots[i+1:]...)
				break
			}
		}
	}
	if counted {
		l.counts[assigneeID]--
	}
}

// ShiftsOn returns the slots an employee works on date
func (l *Ledger) ShiftsOn(employeeID string, date time.Time) []*model.Slot {
	return l.shifts[employeeID][model.TruncateDate(date).Format(model.DateLayout)]
}

// Count returns the number of assignments made this run for an employee or team
func (l *Ledger) Count(assigneeID string) int {
	return l.counts[assigneeID]
}

// workedNight reports whether the employee works a night shift on date
func (l *Ledger) workedNight(employeeID string, date time.Time) bool {
	for _, s := range l.ShiftsOn(employeeID, date) {
		if s.Category == model.CategoryNight {
			return true
		}
	}
	return false
}

func (l *Ledger) worked(employeeID string, date time.Time) bool {
	return len(l.ShiftsOn(employeeID, date)) > 0
}
