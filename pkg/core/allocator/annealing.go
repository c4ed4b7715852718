package allocator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

// Annealing improves a greedy schedule by swapping assignees between pairs of
// assignments. Better valid neighbours are always accepted and worse ones
// with probability exp(-delta/temperature).
type Annealing struct {
	engine *rules.Engine
	opts   Options
	logger *zap.Logger
}

// NewAnnealing creates a simulated annealing strategy
func NewAnnealing(engine *rules.Engine, opts Options, logger *zap.Logger) *Annealing {
	return &Annealing{engine: engine, opts: opts, logger: logger}
}

func (a *Annealing) Name() model.Algorithm {
	return model.AlgorithmAnnealing
}

func (a *Annealing) Generate(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()
	cfg := a.opts.Annealing

	p, err := newPlan(in, a.opts, a.logger)
	if err != nil {
		return nil, err
	}

	filled, reasons, err := NewGreedy(a.engine, a.opts, a.logger).fill(ctx, p)
	if err != nil {
		return nil, err
	}
	current := p.assemble(filled)

	engine := a.engine
	baseline := engine.Evaluate(current, p.rulesCtx)
	if errored := baseline.ErroredRules(); len(errored) > 0 {
		a.logger.Warn("Skipping rules that failed to evaluate", zap.Strings("rules", errored))
		engine = engine.Without(errored...)
		baseline = engine.Evaluate(current, p.rulesCtx)
	}

	// breaches the greedy start already has (typically coverage when there are
	// conflicts) are tolerated; a neighbour adding any other breach is invalid
	known := baseline.Problems()

	var mutable []int
	for i, asg := range current {
		if !asg.Locked {
			mutable = append(mutable, i)
		}
	}

	rng := newLCG(p.seed)
	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	currentScore := baseline.Score
	best := current
	bestScore := currentScore
	temperature := cfg.InitialTemperature
	iterations, accepted := 0, 0

	for ; iterations < cfg.Iterations && temperature >= cfg.MinTemperature && len(mutable) >= 2; iterations++ {
		if iterations%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("annealing cancelled: %w", err)
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				a.logger.Debug("Annealing time budget exhausted", zap.Int("iterations", iterations))
				break
			}
		}

		neighbour, i, j, ok := swapNeighbour(current, mutable, rng)
		temperature *= cfg.CoolingRate
		if !ok || !p.fits(neighbour, i, j) {
			continue
		}

		eval := engine.Evaluate(neighbour, p.rulesCtx)
		if !eval.ValidWithin(known) {
			continue
		}
		if !metropolis(eval.Score-currentScore, temperature, rng) {
			continue
		}

		current, currentScore = neighbour, eval.Score
		accepted++
		if currentScore < bestScore {
			best, bestScore = current, currentScore
		}
	}

	res := p.result(a.Name(), engine, best, reasons, started)
	res.Telemetry.Iterations = iterations
	res.Telemetry.Accepted = accepted
	a.logger.Info("Annealing schedule generated",
		zap.Int("iterations", iterations),
		zap.Int("accepted", accepted),
		zap.Float64("initial_score", baseline.Score),
		zap.Float64("score", bestScore))
	return res, nil
}

// swapNeighbour exchanges the assignees of two unlocked assignments of the
// same mode and returns their indices. Returns false when the picked pair
// cannot be swapped.
func swapNeighbour(current []model.Assignment, mutable []int, rng *lcg) ([]model.Assignment, int, int, bool) {
	i := mutable[rng.intn(len(mutable))]
	j := mutable[rng.intn(len(mutable))]
	if i == j {
		return nil, 0, 0, false
	}
	a, b := current[i], current[j]
	if a.Slot.Mode != b.Slot.Mode || a.AssigneeID() == b.AssigneeID() {
		return nil, 0, 0, false
	}

	neighbour := make([]model.Assignment, len(current))
	copy(neighbour, current)
	neighbour[i].EmployeeID, neighbour[j].EmployeeID = b.EmployeeID, a.EmployeeID
	neighbour[i].TeamID, neighbour[j].TeamID = b.TeamID, a.TeamID
	return neighbour, i, j, true
}
