package rules

import "github.com/jakechorley/shift-roster/pkg/core/model"

// Limits are the tenant-wide legal and operational limits
type Limits struct {
	MaxNightsPerWeek      int
	MinRestHours          float64
	MaxConsecutiveDays    int
	MaxConsecutiveNights  int
	TeamBlackoutTolerance float64
}

// DefaultLimits returns conservative limits used when nothing is configured
func DefaultLimits() Limits {
	return Limits{
		MaxNightsPerWeek:      3,
		MinRestHours:          11,
		MaxConsecutiveDays:    6,
		MaxConsecutiveNights:  2,
		TeamBlackoutTolerance: 0.2,
	}
}

// SoftWeights are the weights of the built-in soft rules
type SoftWeights struct {
	PreferredAvailability float64
	ShiftTypeChanges      float64
	BalanceHours          float64
	ConsecutiveBlocks     float64
	SplitWeekend          float64
}

// DefaultSoftWeights returns the built-in soft rule weights
func DefaultSoftWeights() SoftWeights {
	return SoftWeights{
		PreferredAvailability: 2,
		ShiftTypeChanges:      1,
		BalanceHours:          1,
		ConsecutiveBlocks:     0.5,
		SplitWeekend:          1,
	}
}

// DefaultDefinitions builds the full built-in rule set for the given limits.
// Used when a tenant has no stored rule definitions.
func DefaultDefinitions(limits Limits, weights SoftWeights) []model.RuleDefinition {
	return []model.RuleDefinition{
		{ID: RuleMaxNightsPerWeek, Type: model.RuleHard, Params: map[string]any{"max": limits.MaxNightsPerWeek}},
		{ID: RuleMinRestHours, Type: model.RuleHard, Params: map[string]any{"hours": limits.MinRestHours}},
		{ID: RuleMaxConsecutiveDays, Type: model.RuleHard, Params: map[string]any{"max": limits.MaxConsecutiveDays}},
		{ID: RuleMaxConsecutiveNights, Type: model.RuleHard, Params: map[string]any{"max": limits.MaxConsecutiveNights}},
		{ID: RuleRequiredSkillCoverage, Type: model.RuleHard},
		{ID: RuleNoBlackoutOverlap, Type: model.RuleHard, Params: map[string]any{"team_tolerance": limits.TeamBlackoutTolerance}},
		{ID: RulePinnedAssignments, Type: model.RuleHard},
		{ID: RuleDemandCoverage, Type: model.RuleHard},
		{ID: RuleOneShiftPerDay, Type: model.RuleHard},

		{ID: RulePreferredAvailability, Type: model.RuleSoft, Weight: weights.PreferredAvailability},
		{ID: RuleShiftTypeChanges, Type: model.RuleSoft, Weight: weights.ShiftTypeChanges},
		{ID: RuleBalanceHours, Type: model.RuleSoft, Weight: weights.BalanceHours},
		{ID: RuleConsecutiveBlocks, Type: model.RuleSoft, Weight: weights.ConsecutiveBlocks},
		{ID: RuleSplitWeekend, Type: model.RuleSoft, Weight: weights.SplitWeekend},
	}
}
