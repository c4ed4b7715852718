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

// Greedy fills slots one at a time with the best ranked eligible candidate.
//
// Candidates are ranked by:
//  1. fewest assignments so far this run
//  2. highest static fitness (pinned and preferred density, less prior night load)
//  3. seeded tiebreak hash
type Greedy struct {
	engine *rules.Engine
	opts   Options
	logger *zap.Logger
}

// NewGreedy creates a greedy strategy
func NewGreedy(engine *rules.Engine, opts Options, logger *zap.Logger) *Greedy {
	return &Greedy{engine: engine, opts: opts, logger: logger}
}

func (g *Greedy) Name() model.Algorithm {
	return model.AlgorithmGreedy
}

func (g *Greedy) Generate(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	p, err := newPlan(in, g.opts, g.logger)
	if err != nil {
		return nil, err
	}

	filled, reasons, err := g.fill(ctx, p)
	if err != nil {
		return nil, err
	}

	res := p.result(g.Name(), g.engine, p.assemble(filled), reasons, started)
	g.logger.Info("Greedy schedule generated",
		zap.Int("slots", res.Telemetry.SlotsTotal),
		zap.Int("filled", res.Telemetry.SlotsFilled),
		zap.Int("conflicts", res.Telemetry.Conflicts))
	return res, nil
}

// fill assigns every open slot it can and returns the conflict reason for the rest
func (g *Greedy) fill(ctx context.Context, p *plan) (map[*model.Slot]model.Assignment, map[*model.Slot]string, error) {
	ledger := p.newLedger()
	filled := p.placePinned(ledger)
	reasons := make(map[*model.Slot]string)

	order := make([]*model.Slot, 0, len(p.open))
	for _, slot := range p.open {
		if _, ok := filled[slot]; !ok {
			order = append(order, slot)
		}
	}
	if g.opts.ShuffleSlots {
		shuffle(order, newLCG(p.seed))
	}

	fitness := make(map[string]float64)
	fitnessOf := func(c candidate) float64 {
		if f, ok := fitness[c.id]; ok {
			return f
		}
		total := 0.0
		for _, id := range c.members {
			total += 2*float64(p.availability.pinnedCount(id)) +
				float64(p.availability.preferredCount(id)) -
				0.5*float64(p.priorNights[id])
		}
		f := total / float64(max(len(c.members), 1))
		fitness[c.id] = f
		return f
	}

	for i, slot := range order {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("greedy scheduling cancelled: %w", err)
			}
		}

		cands, reason := p.candidates(slot, ledger)
		if len(cands) == 0 {
			reasons[slot] = reason
			g.logger.Debug("No candidate for slot", zap.String("slot", slot.Key()), zap.String("reason", reason))
			continue
		}

		sort.SliceStable(cands, func(a, b int) bool {
			ca, cb := ledger.Count(cands[a].id), ledger.Count(cands[b].id)
			if ca != cb {
				return ca < cb
			}
			fa, fb := fitnessOf(cands[a]), fitnessOf(cands[b])
			if fa != fb {
				return fa > fb
			}
			return seededHash(p.seed, slot.Key(), cands[a].id) < seededHash(p.seed, slot.Key(), cands[b].id)
		})

		best := cands[0]
		filled[slot] = best.assign(slot)
		ledger.Book(best.members, slot, best.id, true)
		g.logger.Debug("Assigned slot", zap.String("slot", slot.Key()), zap.String("assignee", best.id))
	}

	return filled, reasons, nil
}
