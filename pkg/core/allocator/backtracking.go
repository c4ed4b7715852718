package allocator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

// Backtracking searches depth-first for a complete assignment that the rule
// engine accepts, keeping the lowest scoring one found within budget.
// When no complete valid assignment is found it falls back to Greedy.
type Backtracking struct {
	engine *rules.Engine
	opts   Options
	logger *zap.Logger
}

// NewBacktracking creates a backtracking strategy
func NewBacktracking(engine *rules.Engine, opts Options, logger *zap.Logger) *Backtracking {
	return &Backtracking{engine: engine, opts: opts, logger: logger}
}

func (b *Backtracking) Name() model.Algorithm {
	return model.AlgorithmBacktracking
}

func (b *Backtracking) Generate(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	p, err := newPlan(in, b.opts, b.logger)
	if err != nil {
		return nil, err
	}

	s := b.newSearch(ctx, p)
	if s.stopReason == "" {
		s.dfs(0)
	}
	if s.err != nil {
		return nil, s.err
	}

	if s.best != nil {
		res := p.result(b.Name(), b.engine, s.best, nil, started)
		res.Telemetry.Iterations = s.iterations
		res.Telemetry.Accepted = s.solutions
		b.logger.Info("Backtracking schedule generated",
			zap.Int("iterations", s.iterations),
			zap.Int("solutions", s.solutions),
			zap.Float64("score", s.bestScore))
		return res, nil
	}

	reason := s.stopReason
	if reason == "" {
		reason = "no assignment satisfies every hard rule"
	}
	b.logger.Warn("Backtracking found no solution, falling back to greedy",
		zap.String("reason", reason),
		zap.Int("iterations", s.iterations))

	filled, reasons, err := NewGreedy(b.engine, b.opts, b.logger).fill(ctx, p)
	if err != nil {
		return nil, err
	}
	res := p.result(b.Name(), b.engine, p.assemble(filled), reasons, started)
	res.Telemetry.Iterations = s.iterations
	res.Telemetry.Fallback = true
	res.Telemetry.FallbackReason = reason
	return res, nil
}

// search is the state of one depth-first search
type search struct {
	ctx      context.Context
	plan     *plan
	engine   *rules.Engine
	ledger   *Ledger
	deadline time.Time
	maxIter  int

	// options holds each open slot's candidates, best first
	options [][]candidate
	current []model.Assignment

	iterations int
	solutions  int
	best       []model.Assignment
	bestScore  float64

	stopReason string
	err        error
}

func (b *Backtracking) newSearch(ctx context.Context, p *plan) *search {
	s := &search{
		ctx:     ctx,
		plan:    p,
		engine:  b.engine,
		ledger:  p.newLedger(),
		maxIter: b.opts.Backtracking.MaxIterations,
		options: make([][]candidate, len(p.open)),
		current: make([]model.Assignment, len(p.open)),
	}
	if b.opts.Backtracking.Timeout > 0 {
		s.deadline = time.Now().Add(b.opts.Backtracking.Timeout)
	}

	for i, slot := range p.open {
		cands, reason := p.candidates(slot, s.ledger)
		if len(cands) == 0 {
			s.stopReason = fmt.Sprintf("slot %s has no eligible candidate (%s)", slot.Key(), reason)
			return s
		}

		priority := make(map[string]float64, len(cands))
		for _, c := range cands {
			priority[c.id] = p.pairPriority(slot, c)
		}
		sort.SliceStable(cands, func(a, b int) bool {
			pa, pb := priority[cands[a].id], priority[cands[b].id]
			if pa != pb {
				return pa > pb
			}
			return seededHash(p.seed, slot.Key(), cands[a].id) < seededHash(p.seed, slot.Key(), cands[b].id)
		})
		s.options[i] = cands
	}
	return s
}

// pairPriority scores a (slot, candidate) pair for search order:
// +10 pinned, +3 preferred for this template, +2 preferred for the date,
// -0.5 per prior night shift. Teams use the mean over members.
func (p *plan) pairPriority(slot *model.Slot, c candidate) float64 {
	total := 0.0
	for _, id := range c.members {
		if p.availability.pinnedTo(id, slot) {
			total += 10
		}
		if matched, scoped := p.availability.preference(id, slot); matched {
			if scoped {
				total += 3
			} else {
				total += 2
			}
		}
		total -= 0.5 * float64(p.priorNights[id])
	}
	return total / float64(max(len(c.members), 1))
}

func (s *search) stopped() bool {
	return s.stopReason != "" || s.err != nil
}

func (s *search) dfs(depth int) {
	if s.stopped() {
		return
	}
	if s.maxIter > 0 && s.iterations >= s.maxIter {
		s.stopReason = fmt.Sprintf("iteration budget of %d exhausted", s.maxIter)
		return
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.stopReason = "time budget exhausted"
		return
	}
	if s.iterations%128 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = fmt.Errorf("backtracking cancelled: %w", err)
			return
		}
	}
	s.iterations++

	if depth == len(s.plan.open) {
		s.accept()
		return
	}

	slot := s.plan.open[depth]
	for _, c := range s.options[depth] {
		if !s.plan.allows(c, slot, s.ledger) {
			continue
		}
		s.ledger.Book(c.members, slot, c.id, true)
		s.current[depth] = c.assign(slot)
		s.dfs(depth + 1)
		s.ledger.Release(c.members, slot, c.id, true)
		if s.stopped() {
			return
		}
	}
}

// accept evaluates a complete assignment. Rules that fail to evaluate
// reject the solution.
func (s *search) accept() {
	filled := make(map[*model.Slot]model.Assignment, len(s.current))
	for _, a := range s.current {
		filled[a.Slot] = a
	}
	assignments := s.plan.assemble(filled)

	eval := s.engine.Evaluate(assignments, s.plan.rulesCtx)
	if !eval.IsValid {
		return
	}
	s.solutions++
	if s.best == nil || eval.Score < s.bestScore {
		s.best = assignments
		s.bestScore = eval.Score
	}
	if s.bestScore == 0 {
		// nothing can beat a perfect score
		s.stopReason = "optimal solution found"
	}
}
