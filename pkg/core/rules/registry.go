package rules

import (
	"strings"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// HardResult is the outcome of a hard rule
type HardResult struct {
	Passed  bool
	Message string
	Details map[string]any

	// Problems lists each distinct breach; Message joins them
	Problems []string
}

// SoftResult is the outcome of a soft rule. Penalty is multiplied by the rule weight.
type SoftResult struct {
	Penalty float64
	Message string
	Details map[string]any
}

// HardFunc evaluates a hard rule against a set of assignments
type HardFunc func(assignments []model.Assignment, ctx *Context, params Params) HardResult

// SoftFunc evaluates a soft rule against a set of assignments
type SoftFunc func(assignments []model.Assignment, ctx *Context, params Params) SoftResult

// Registry maps rule ids to evaluators.
// Each rule may also carry a human label, matched case-insensitively for
// rule definitions stored under older display names.
type Registry struct {
	hard   map[string]HardFunc
	soft   map[string]SoftFunc
	labels map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		hard:   make(map[string]HardFunc),
		soft:   make(map[string]SoftFunc),
		labels: make(map[string]string),
	}
}

// RegisterHard adds a hard rule evaluator
func (r *Registry) RegisterHard(id, label string, fn HardFunc) {
	r.hard[id] = fn
	r.addLabel(id, label)
}

// RegisterSoft adds a soft rule evaluator
func (r *Registry) RegisterSoft(id, label string, fn SoftFunc) {
	r.soft[id] = fn
	r.addLabel(id, label)
}

func (r *Registry) addLabel(id, label string) {
	if label != "" {
		r.labels[strings.ToLower(strings.TrimSpace(label))] = id
	}
}

// Resolve returns the registered id for a definition: its own id if known,
// otherwise the id whose label matches the definition's label or id.
func (r *Registry) Resolve(def model.RuleDefinition) (string, bool) {
	if r.known(def.Type, def.ID) {
		return def.ID, true
	}
	for _, name := range []string{def.Label, def.ID} {
		id, ok := r.labels[strings.ToLower(strings.TrimSpace(name))]
		if ok && r.known(def.Type, id) {
			return id, true
		}
	}
	return "", false
}

func (r *Registry) known(ruleType model.RuleType, id string) bool {
	switch ruleType {
	case model.RuleHard:
		_, ok := r.hard[id]
		return ok
	case model.RuleSoft:
		_, ok := r.soft[id]
		return ok
	}
	return false
}

// DefaultRegistry registers every built-in rule
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterHard(RuleMaxNightsPerWeek, "Max Night Shifts Per Week", maxNightsPerWeek)
	r.RegisterHard(RuleMinRestHours, "Minimum Rest Hours", minRestHours)
	r.RegisterHard(RuleMaxConsecutiveDays, "Max Consecutive Work Days", maxConsecutiveDays)
	r.RegisterHard(RuleMaxConsecutiveNights, "Max Consecutive Night Shifts", maxConsecutiveNights)
	r.RegisterHard(RuleRequiredSkillCoverage, "Required Skill Coverage", requiredSkillCoverage)
	r.RegisterHard(RuleNoBlackoutOverlap, "No Blackout Overlap", noBlackoutOverlap)
	r.RegisterHard(RulePinnedAssignments, "Pinned Assignments", pinnedAssignments)
	r.RegisterHard(RuleDemandCoverage, "Demand Coverage", demandCoverage)
	r.RegisterHard(RuleOneShiftPerDay, "One Shift Per Day", oneShiftPerDay)
	r.RegisterHard(RuleExpression, "", expressionHard)

	r.RegisterSoft(RulePreferredAvailability, "Honor Preferences", preferredAvailability)
	r.RegisterSoft(RuleShiftTypeChanges, "Minimize Shift Type Changes", shiftTypeChanges)
	r.RegisterSoft(RuleBalanceHours, "Balance Hours", balanceHours)
	r.RegisterSoft(RuleConsecutiveBlocks, "Prefer Consecutive Blocks", consecutiveBlocks)
	r.RegisterSoft(RuleSplitWeekend, "Avoid Split Weekends", splitWeekend)
	r.RegisterSoft(RuleExpression, "", expressionSoft)

	return r
}
