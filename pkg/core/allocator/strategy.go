package allocator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

// Strategy fills the slots of one scheduling period
type Strategy interface {
	// Name returns the algorithm identifier
	Name() model.Algorithm

	// Generate expands demand into slots and assigns employees or teams to them.
	// Unfillable slots are reported as conflicts; only invalid input or a
	// cancelled context return an error.
	Generate(ctx context.Context, in Input) (*Result, error)
}

// Input is everything a strategy needs for one period
type Input struct {
	StartDate time.Time
	EndDate   time.Time

	// Employees is the active pool. Inactive employees are ignored.
	Employees []model.Employee

	// Teams is the pool for team-mode slots
	Teams []model.Team

	Templates []model.ShiftTemplate
	Demand    []model.DemandRequirement

	// Availability includes blackouts derived from leave
	Availability []model.AvailabilityRecord

	// Locked are manual edits that pre-fill their slots. They are matched to
	// expanded slots by date, template and position.
	Locked []model.Assignment

	// History are assignments from before StartDate, used for rest and
	// streak checks across the period boundary and for prior night load
	History []model.Assignment

	Seed int64

	// Persisted rolling scores by employee and team id (ScoreRank only)
	EmployeeScores map[string]float64
	TeamScores     map[string]float64
}

// Result is the output of a strategy run
type Result struct {
	// Slots are every slot of the period in chronological order
	Slots []*model.Slot

	// Assignments include locked assignments, in slot order
	Assignments []model.Assignment

	Conflicts []model.Conflict
	Telemetry model.Telemetry

	// Evaluation is the rule engine's verdict on Assignments
	Evaluation rules.Evaluation

	// Scores charge every non-locked assignment and decay once per run
	Scores       []ScoreUpdate
	ScoreHistory []model.ScoreHistoryEntry
}

// BacktrackingOptions bound the backtracking search
type BacktrackingOptions struct {
	MaxIterations int
	Timeout       time.Duration
}

// AnnealingOptions configure simulated annealing
type AnnealingOptions struct {
	Iterations         int
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
	Timeout            time.Duration
}

// ScoringOptions configure the rolling fatigue scores used by ScoreRank
type ScoringOptions struct {
	// CategoryWeights is added to the winner's score per shift category
	CategoryWeights map[model.ShiftCategory]float64

	// TeamMemberFraction of the team weight is added to every member
	TeamMemberFraction float64

	// DecayRate is applied multiplicatively to every score at the end of a run
	DecayRate float64

	// PreferenceBonus is subtracted from the effective score of an employee who prefers the slot
	PreferenceBonus float64
}

// Options configure every strategy
type Options struct {
	Limits       rules.Limits
	ShuffleSlots bool
	Backtracking BacktrackingOptions
	Annealing    AnnealingOptions
	Scoring      ScoringOptions
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Limits: rules.DefaultLimits(),
		Backtracking: BacktrackingOptions{
			MaxIterations: 20000,
			Timeout:       5 * time.Second,
		},
		Annealing: AnnealingOptions{
			Iterations:         2000,
			InitialTemperature: 10,
			CoolingRate:        0.995,
			MinTemperature:     0.01,
			Timeout:            5 * time.Second,
		},
		Scoring: ScoringOptions{
			CategoryWeights: map[model.ShiftCategory]float64{
				model.CategoryNight:   3,
				model.CategoryEvening: 2,
				model.CategoryCustom:  1.5,
				model.CategoryDay:     1,
			},
			TeamMemberFraction: 0.3,
			DecayRate:          0.1,
			PreferenceBonus:    1,
		},
	}
}

// NewStrategy returns the strategy registered for alg
func NewStrategy(alg model.Algorithm, engine *rules.Engine, opts Options, logger *zap.Logger) (Strategy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch alg {
	case model.AlgorithmGreedy:
		return NewGreedy(engine, opts, logger), nil
	case model.AlgorithmBacktracking:
		return NewBacktracking(engine, opts, logger), nil
	case model.AlgorithmAnnealing:
		return NewAnnealing(engine, opts, logger), nil
	case model.AlgorithmScoreRank:
		return NewScoreRank(engine, opts, logger), nil
	}
	return nil, fmt.Errorf("unknown algorithm %q", alg)
}
