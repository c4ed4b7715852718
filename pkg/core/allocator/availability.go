package allocator

import (
	"sort"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// availabilityIndex groups availability records by employee and kind
type availabilityIndex struct {
	blackouts map[string][]model.AvailabilityRecord
	preferred map[string][]model.AvailabilityRecord
	pinned    map[string][]model.AvailabilityRecord
}

func newAvailabilityIndex(records []model.AvailabilityRecord) *availabilityIndex {
	ix := &availabilityIndex{
		blackouts: make(map[string][]model.AvailabilityRecord),
		preferred: make(map[string][]model.AvailabilityRecord),
		pinned:    make(map[string][]model.AvailabilityRecord),
	}
	for _, r := range records {
		switch r.Kind {
		case model.AvailabilityBlackout:
			ix.blackouts[r.EmployeeID] = append(ix.blackouts[r.EmployeeID], r)
		case model.AvailabilityPreferred:
			ix.preferred[r.EmployeeID] = append(ix.preferred[r.EmployeeID], r)
		case model.AvailabilityPinned:
			ix.pinned[r.EmployeeID] = append(ix.pinned[r.EmployeeID], r)
		}
	}
	return ix
}

func anyApplies(records []model.AvailabilityRecord, slot *model.Slot) bool {
	for _, r := range records {
		if r.AppliesTo(slot) {
			return true
		}
	}
	return false
}

func (ix *availabilityIndex) blackedOut(employeeID string, slot *model.Slot) bool {
	return anyApplies(ix.blackouts[employeeID], slot)
}

func (ix *availabilityIndex) pinnedTo(employeeID string, slot *model.Slot) bool {
	return anyApplies(ix.pinned[employeeID], slot)
}

// preference reports whether the employee prefers the slot, and whether the
// matching preference is scoped to the slot's template
func (ix *availabilityIndex) preference(employeeID string, slot *model.Slot) (matched, scoped bool) {
	for _, r := range ix.preferred[employeeID] {
		if !r.AppliesTo(slot) {
			continue
		}
		matched = true
		if r.TemplateID != "" {
			return true, true
		}
	}
	return matched, false
}

// pinnedEmployees returns the ids of employees pinned to the slot, sorted
func (ix *availabilityIndex) pinnedEmployees(slot *model.Slot) []string {
	var ids []string
	for id, records := range ix.pinned {
		if anyApplies(records, slot) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (ix *availabilityIndex) pinnedCount(employeeID string) int {
	return len(ix.pinned[employeeID])
}

func (ix *availabilityIndex) preferredCount(employeeID string) int {
	return len(ix.preferred[employeeID])
}
