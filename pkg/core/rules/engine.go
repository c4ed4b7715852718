package rules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Violation is a failed hard rule or a penalised soft rule
type Violation struct {
	RuleID  string
	Message string
	Details map[string]any
	Penalty float64

	// Problems are the distinct breaches of a hard rule
	Problems []string

	// Error is set when the evaluator itself failed
	Error bool
}

// Evaluation is the result of running every rule over a set of assignments
type Evaluation struct {
	HardViolations []Violation
	SoftViolations []Violation
	Score          float64
	IsValid        bool
}

// ErroredRules returns the ids of rules whose evaluator failed
func (e Evaluation) ErroredRules() []string {
	var ids []string
	for _, v := range e.HardViolations {
		if v.Error {
			ids = append(ids, v.RuleID)
		}
	}
	return ids
}

// Problems returns every hard breach keyed by rule id and problem text
func (e Evaluation) Problems() map[string]bool {
	problems := make(map[string]bool)
	for _, v := range e.HardViolations {
		for _, key := range v.problemKeys() {
			problems[key] = true
		}
	}
	return problems
}

// ValidWithin reports whether every hard breach is already in known, i.e.
// the evaluation introduces no problem that known does not have
func (e Evaluation) ValidWithin(known map[string]bool) bool {
	for _, v := range e.HardViolations {
		for _, key := range v.problemKeys() {
			if !known[key] {
				return false
			}
		}
	}
	return true
}

func (v Violation) problemKeys() []string {
	if len(v.Problems) == 0 {
		return []string{v.RuleID + "|" + v.Message}
	}
	keys := make([]string, len(v.Problems))
	for i, problem := range v.Problems {
		keys[i] = v.RuleID + "|" + problem
	}
	return keys
}

// Engine evaluates assignments against a list of rule definitions
type Engine struct {
	registry *Registry
	rules    []model.RuleDefinition
	logger   *zap.Logger
}

// NewEngine creates an engine for the given rule set
func NewEngine(registry *Registry, rules []model.RuleDefinition, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		rules:    rules,
		logger:   logger,
	}
}

// Rules returns the rule definitions the engine evaluates
func (e *Engine) Rules() []model.RuleDefinition {
	return e.rules
}

// Without returns an engine that skips the given rule ids
func (e *Engine) Without(ids ...string) *Engine {
	skip := make(map[string]bool, len(ids))
	for _, id := range ids {
		skip[id] = true
	}

	kept := make([]model.RuleDefinition, 0, len(e.rules))
	for _, def := range e.rules {
		id, _ := e.registry.Resolve(def)
		if skip[def.ID] || (id != "" && skip[id]) {
			continue
		}
		kept = append(kept, def)
	}
	return NewEngine(e.registry, kept, e.logger)
}

// Evaluate runs every rule. Hard failures make the evaluation invalid and
// soft penalties accumulate into Score weighted by each rule's weight.
func (e *Engine) Evaluate(assignments []model.Assignment, ctx *Context) Evaluation {
	result := Evaluation{IsValid: true}

	for _, def := range e.rules {
		id, ok := e.registry.Resolve(def)
		if !ok {
			e.logger.Warn("Skipping unknown rule",
				zap.String("rule_id", def.ID),
				zap.String("label", def.Label),
				zap.String("type", string(def.Type)))
			continue
		}

		params := Params(def.Params)

		switch def.Type {
		case model.RuleHard:
			res, err := e.runHard(id, assignments, ctx, params)
			if err != nil {
				result.IsValid = false
				result.HardViolations = append(result.HardViolations, Violation{
					RuleID:  def.ID,
					Message: fmt.Sprintf("rule %s failed to evaluate: %v", def.ID, err),
					Error:   true,
				})
				continue
			}
			if !res.Passed {
				result.IsValid = false
				result.HardViolations = append(result.HardViolations, Violation{
					RuleID:   def.ID,
					Message:  res.Message,
					Details:  res.Details,
					Problems: res.Problems,
				})
			}

		case model.RuleSoft:
			res, err := e.runSoft(id, assignments, ctx, params)
			if err != nil {
				// evaluator failures always invalidate, soft or hard
				result.IsValid = false
				result.HardViolations = append(result.HardViolations, Violation{
					RuleID:  def.ID,
					Message: fmt.Sprintf("rule %s failed to evaluate: %v", def.ID, err),
					Error:   true,
				})
				continue
			}
			if res.Penalty != 0 {
				weighted := res.Penalty * def.Weight
				result.Score += weighted
				result.SoftViolations = append(result.SoftViolations, Violation{
					RuleID:  def.ID,
					Message: res.Message,
					Details: res.Details,
					Penalty: weighted,
				})
			}
		}
	}

	return result
}

func (e *Engine) runHard(id string, assignments []model.Assignment, ctx *Context, params Params) (res HardResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return e.registry.hard[id](assignments, ctx, params), nil
}

func (e *Engine) runSoft(id string, assignments []model.Assignment, ctx *Context, params Params) (res SoftResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return e.registry.soft[id](assignments, ctx, params), nil
}
