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

// ScoreRank gives each slot, in chronological order, to the eligible
// candidate with the lowest rolling fatigue score and then charges that
// candidate the slot's category weight. Scores decay once the run ends.
type ScoreRank struct {
	engine *rules.Engine
	opts   Options
	logger *zap.Logger
}

// NewScoreRank creates a ScoreRank strategy
func NewScoreRank(engine *rules.Engine, opts Options, logger *zap.Logger) *ScoreRank {
	return &ScoreRank{engine: engine, opts: opts, logger: logger}
}

func (s *ScoreRank) Name() model.Algorithm {
	return model.AlgorithmScoreRank
}

func (s *ScoreRank) Generate(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	p, err := newPlan(in, s.opts, s.logger)
	if err != nil {
		return nil, err
	}

	book := p.scoreBook()

	ledger := p.newLedger()
	filled := p.placePinned(ledger)
	reasons := make(map[*model.Slot]string)

	for i, slot := range p.open {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("scorerank scheduling cancelled: %w", err)
			}
		}

		if a, ok := filled[slot]; ok {
			book.Record(a, p.members(a), started)
			continue
		}

		cands, reason := p.candidates(slot, ledger)
		if len(cands) == 0 {
			reasons[slot] = reason
			s.logger.Debug("No candidate for slot", zap.String("slot", slot.Key()), zap.String("reason", reason))
			continue
		}

		effective := make(map[string]float64, len(cands))
		for _, c := range cands {
			effective[c.id] = s.effectiveScore(p, book, slot, c)
		}
		date := slot.DateKey()
		sort.SliceStable(cands, func(a, b int) bool {
			ea, eb := effective[cands[a].id], effective[cands[b].id]
			if ea != eb {
				return ea < eb
			}
			return seededHash(p.seed, date, cands[a].id) < seededHash(p.seed, date, cands[b].id)
		})

		winner := cands[0]
		a := winner.assign(slot)
		filled[slot] = a
		ledger.Book(winner.members, slot, winner.id, true)
		book.Record(a, winner.members, started)

		s.logger.Debug("Assigned slot",
			zap.String("slot", slot.Key()),
			zap.String("assignee", winner.id),
			zap.Float64("effective_score", effective[winner.id]))
	}

	res := p.result(s.Name(), s.engine, p.assemble(filled), reasons, started)

	s.logger.Info("ScoreRank schedule generated",
		zap.Int("slots", res.Telemetry.SlotsTotal),
		zap.Int("filled", res.Telemetry.SlotsFilled),
		zap.Int("conflicts", res.Telemetry.Conflicts),
		zap.Int("scores", len(res.Scores)))
	return res, nil
}

// effectiveScore is the running score less the preference bonus for an
// employee, or the team score plus the mean member score for a team
func (s *ScoreRank) effectiveScore(p *plan, book *ScoreBook, slot *model.Slot, c candidate) float64 {
	if !c.team {
		score := book.Score(model.SubjectEmployee, c.id)
		if matched, _ := p.availability.preference(c.id, slot); matched {
			score -= s.opts.Scoring.PreferenceBonus
		}
		return score
	}

	score := book.Score(model.SubjectTeam, c.id)
	if len(c.members) == 0 {
		return score
	}
	total := 0.0
	for _, id := range c.members {
		total += book.Score(model.SubjectEmployee, id)
	}
	return score + total/float64(len(c.members))
}
