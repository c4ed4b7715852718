package allocator

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// ScoreUpdate is the end-of-run state of one rolling score
type ScoreUpdate struct {
	Subject   model.ScoreSubject
	SubjectID string

	// Previous is the persisted score before the run
	Previous float64

	// Delta is the total weight added during the run
	Delta float64

	// Score is max(0, Previous*(1-decay) + Delta)
	Score float64
}

type scoreKey struct {
	subject model.ScoreSubject
	id      string
}

// ScoreBook tracks rolling fatigue scores through one run
type ScoreBook struct {
	opts    ScoringOptions
	initial map[scoreKey]float64
	delta   map[scoreKey]float64
	history []model.ScoreHistoryEntry
}

// NewScoreBook starts a book from persisted employee and team scores
func NewScoreBook(opts ScoringOptions, employees, teams map[string]float64) *ScoreBook {
	b := &ScoreBook{
		opts:    opts,
		initial: make(map[scoreKey]float64),
		delta:   make(map[scoreKey]float64),
	}
	for id, score := range employees {
		b.initial[scoreKey{model.SubjectEmployee, id}] = score
	}
	for id, score := range teams {
		b.initial[scoreKey{model.SubjectTeam, id}] = score
	}
	return b
}

// Track makes sure a subject takes part in end-of-run decay
func (b *ScoreBook) Track(subject model.ScoreSubject, id string) {
	key := scoreKey{subject, id}
	if _, ok := b.initial[key]; !ok {
		b.initial[key] = 0
	}
}

// Score returns the running score: persisted value plus this run's deltas
func (b *ScoreBook) Score(subject model.ScoreSubject, id string) float64 {
	key := scoreKey{subject, id}
	return b.initial[key] + b.delta[key]
}

// Weight returns the score weight of a shift category
func (b *ScoreBook) Weight(category model.ShiftCategory) float64 {
	if w, ok := b.opts.CategoryWeights[category]; ok {
		return w
	}
	return 1
}

// Record adds the weight of an assignment to its assignee. A team assignment
// also adds a fraction of that weight to every member.
func (b *ScoreBook) Record(a model.Assignment, members []string, at time.Time) {
	w := b.Weight(a.Slot.Category)
	if a.TeamID != "" {
		b.add(scoreKey{model.SubjectTeam, a.TeamID}, w, a.Slot.ID, model.ScoreReasonAssignment, at)
		for _, id := range members {
			b.add(scoreKey{model.SubjectEmployee, id}, w*b.opts.TeamMemberFraction, a.Slot.ID, model.ScoreReasonTeamAssignment, at)
		}
		return
	}
	b.add(scoreKey{model.SubjectEmployee, a.EmployeeID}, w, a.Slot.ID, model.ScoreReasonAssignment, at)
}

func (b *ScoreBook) add(key scoreKey, delta float64, slotID, reason string, at time.Time) {
	if delta == 0 {
		return
	}
	b.Track(key.subject, key.id)
	b.delta[key] += delta
	b.history = append(b.history, model.ScoreHistoryEntry{
		ID:        uuid.New().String(),
		Subject:   key.subject,
		SubjectID: key.id,
		SlotID:    slotID,
		Delta:     delta,
		Score:     b.initial[key] + b.delta[key],
		Reason:    reason,
		CreatedAt: at,
	})
}

// Finish applies decay to every tracked score and returns the final scores
// with the full history of the run
func (b *ScoreBook) Finish(at time.Time) ([]ScoreUpdate, []model.ScoreHistoryEntry) {
	keys := make([]scoreKey, 0, len(b.initial))
	for key := range b.initial {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subject != keys[j].subject {
			return keys[i].subject < keys[j].subject
		}
		return keys[i].id < keys[j].id
	})

	updates := make([]ScoreUpdate, 0, len(keys))
	history := b.history
	for _, key := range keys {
		previous, delta := b.initial[key], b.delta[key]
		final := math.Max(0, previous*(1-b.opts.DecayRate)+delta)
		updates = append(updates, ScoreUpdate{
			Subject:   key.subject,
			SubjectID: key.id,
			Previous:  previous,
			Delta:     delta,
			Score:     final,
		})

		if change := final - (previous + delta); change != 0 {
			history = append(history, model.ScoreHistoryEntry{
				ID:        uuid.New().String(),
				Subject:   key.subject,
				SubjectID: key.id,
				Delta:     change,
				Score:     final,
				Reason:    model.ScoreReasonDecay,
				CreatedAt: at,
			})
		}
	}
	return updates, history
}
