package allocator

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/demand"
	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
)

// plan is the state every strategy starts from: expanded slots, locked
// edits bound to those slots, the candidate pools and the filter
type plan struct {
	input  Input
	opts   Options
	logger *zap.Logger
	seed   uint32

	// slots in chronological order; open excludes the locked ones
	slots  []*model.Slot
	open   []*model.Slot
	locked map[*model.Slot]model.Assignment

	employees    []model.Employee
	teams        []model.Team
	employeeByID map[string]model.Employee
	teamByID     map[string]model.Team

	availability *availabilityIndex
	filter       *Filter
	rulesCtx     *rules.Context

	// priorNights counts night shifts worked per employee in the history window
	priorNights map[string]int
}

func newPlan(in Input, opts Options, logger *zap.Logger) (*plan, error) {
	start := model.TruncateDate(in.StartDate)
	end := model.TruncateDate(in.EndDate)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", end.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	p := &plan{
		input:        in,
		opts:         opts,
		logger:       logger,
		seed:         seedBase(in.Seed),
		locked:       make(map[*model.Slot]model.Assignment),
		employeeByID: make(map[string]model.Employee),
		teamByID:     make(map[string]model.Team),
		priorNights:  make(map[string]int),
	}

	for _, e := range in.Employees {
		if !e.Active {
			continue
		}
		p.employees = append(p.employees, e)
		p.employeeByID[e.ID] = e
	}
	sort.Slice(p.employees, func(i, j int) bool { return p.employees[i].ID < p.employees[j].ID })

	var knownTeams []model.Team
	for _, t := range in.Teams {
		var members []string
		for _, id := range t.MemberIDs {
			if _, ok := p.employeeByID[id]; ok {
				members = append(members, id)
			}
		}
		t.MemberIDs = members
		p.teamByID[t.ID] = t
		knownTeams = append(knownTeams, t)
		if len(members) > 0 {
			p.teams = append(p.teams, t)
		}
	}
	sort.Slice(p.teams, func(i, j int) bool { return p.teams[i].ID < p.teams[j].ID })

	var availability []model.AvailabilityRecord
	for _, r := range in.Availability {
		if _, ok := p.employeeByID[r.EmployeeID]; ok {
			availability = append(availability, r)
		}
	}
	p.availability = newAvailabilityIndex(availability)
	p.filter = newFilter(opts.Limits, p.availability, p.employeeByID)

	expanded, err := demand.Expand(in.Demand, in.Templates, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to expand demand: %w", err)
	}
	byKey := make(map[string]*model.Slot, len(expanded))
	for i := range expanded {
		slot := &expanded[i]
		p.slots = append(p.slots, slot)
		byKey[slot.Key()] = slot
	}

	p.bindLocked(byKey)

	sort.SliceStable(p.slots, func(i, j int) bool {
		return p.slots[i].Start.Before(p.slots[j].Start)
	})
	for _, slot := range p.slots {
		if _, ok := p.locked[slot]; !ok {
			p.open = append(p.open, slot)
		}
	}

	for _, a := range in.History {
		if a.Slot == nil || a.Slot.Category != model.CategoryNight {
			continue
		}
		for _, id := range p.members(a) {
			p.priorNights[id]++
		}
	}

	p.rulesCtx = rules.NewContext(start, end, p.employees, knownTeams, in.Templates, availability, in.Demand, logger)

	logger.Debug("Prepared scheduling plan",
		zap.Int("slots", len(p.slots)),
		zap.Int("open_slots", len(p.open)),
		zap.Int("locked", len(p.locked)),
		zap.Int("employees", len(p.employees)),
		zap.Int("teams", len(p.teams)))

	return p, nil
}

// bindLocked attaches each locked assignment to the expanded slot with the
// same key. Locked slots no longer implied by demand are carried in as-is.
func (p *plan) bindLocked(byKey map[string]*model.Slot) {
	for _, a := range p.input.Locked {
		if a.Slot == nil {
			p.logger.Warn("Ignoring locked assignment without a slot", zap.String("assignment_id", a.ID))
			continue
		}
		key := a.Slot.Key()
		slot, ok := byKey[key]
		if !ok {
			carried := *a.Slot
			carried.ID = uuid.New().String()
			slot = &carried
			p.slots = append(p.slots, slot)
			byKey[key] = slot
			p.logger.Debug("Carrying in locked slot missing from demand", zap.String("slot", key))
		}
		if _, taken := p.locked[slot]; taken {
			p.logger.Warn("Ignoring duplicate locked assignment", zap.String("slot", key), zap.String("assignment_id", a.ID))
			continue
		}

		a.ID = uuid.New().String()
		a.Slot = slot
		a.Locked = true
		if a.Source == "" {
			a.Source = model.SourceManual
		}
		p.locked[slot] = a
	}
}

// members returns the employees working an assignment
func (p *plan) members(a model.Assignment) []string {
	if a.TeamID != "" {
		return p.teamByID[a.TeamID].MemberIDs
	}
	if a.EmployeeID != "" {
		return []string{a.EmployeeID}
	}
	return nil
}

// newLedger returns a ledger holding history and locked assignments
func (p *plan) newLedger() *Ledger {
	ledger := NewLedger()
	for _, a := range p.input.History {
		if a.Slot != nil {
			ledger.Book(p.members(a), a.Slot, a.AssigneeID(), false)
		}
	}
	for _, slot := range p.slots {
		if a, ok := p.locked[slot]; ok {
			ledger.Book(p.members(a), slot, a.AssigneeID(), true)
		}
	}
	return ledger
}

// candidate is an employee or a team that may fill a slot
type candidate struct {
	id      string
	team    bool
	members []string
}

func (c candidate) assign(slot *model.Slot) model.Assignment {
	a := model.Assignment{
		ID:     uuid.New().String(),
		Slot:   slot,
		Source: model.SourceAuto,
	}
	if c.team {
		a.TeamID = c.id
	} else {
		a.EmployeeID = c.id
	}
	return a
}

// candidates returns the eligible candidates for slot given what the ledger holds
func (p *plan) candidates(slot *model.Slot, ledger *Ledger) ([]candidate, string) {
	if slot.Mode == model.ModeTeam {
		teams, reason := p.filter.Teams(slot, p.teams, ledger)
		result := make([]candidate, 0, len(teams))
		for _, t := range teams {
			result = append(result, candidate{id: t.ID, team: true, members: t.MemberIDs})
		}
		return result, reason
	}

	employees, reason := p.filter.Employees(slot, p.employees, ledger)
	result := make([]candidate, 0, len(employees))
	for _, e := range employees {
		result = append(result, candidate{id: e.ID, members: []string{e.ID}})
	}
	return result, reason
}

// allows re-checks a candidate against the current ledger
func (p *plan) allows(c candidate, slot *model.Slot, ledger *Ledger) bool {
	if c.team {
		return p.filter.checkTeam(p.teamByID[c.id], slot, ledger) == accepted
	}
	return p.filter.checkEmployee(p.employeeByID[c.id], slot, ledger) == accepted
}

// fits reports whether the assignments at idx still pass the candidate
// filter against history and every other assignment
func (p *plan) fits(assignments []model.Assignment, idx ...int) bool {
	ledger := NewLedger()
	for _, a := range p.input.History {
		if a.Slot != nil {
			ledger.Book(p.members(a), a.Slot, a.AssigneeID(), false)
		}
	}
	for _, a := range assignments {
		ledger.Book(p.members(a), a.Slot, a.AssigneeID(), true)
	}

	for _, i := range idx {
		a := assignments[i]
		c := candidate{id: a.AssigneeID(), team: a.TeamID != "", members: p.members(a)}
		ledger.Release(c.members, a.Slot, c.id, true)
		ok := p.allows(c, a.Slot, ledger)
		ledger.Book(c.members, a.Slot, c.id, true)
		if !ok {
			return false
		}
	}
	return true
}

// placePinned fills employee-mode slots that an eligible employee is pinned to
func (p *plan) placePinned(ledger *Ledger) map[*model.Slot]model.Assignment {
	filled := make(map[*model.Slot]model.Assignment)
	for _, slot := range p.open {
		if slot.Mode == model.ModeTeam {
			continue
		}
		for _, id := range p.availability.pinnedEmployees(slot) {
			e, ok := p.employeeByID[id]
			if !ok || p.filter.checkEmployee(e, slot, ledger) != accepted {
				continue
			}
			c := candidate{id: id, members: []string{id}}
			filled[slot] = c.assign(slot)
			ledger.Book(c.members, slot, c.id, true)
			p.logger.Debug("Placed pinned employee", zap.String("slot", slot.Key()), zap.String("employee_id", id))
			break
		}
	}
	return filled
}

// assemble returns locked and filled assignments in slot order
func (p *plan) assemble(filled map[*model.Slot]model.Assignment) []model.Assignment {
	assignments := make([]model.Assignment, 0, len(p.locked)+len(filled))
	for _, slot := range p.slots {
		if a, ok := p.locked[slot]; ok {
			assignments = append(assignments, a)
			continue
		}
		if a, ok := filled[slot]; ok {
			assignments = append(assignments, a)
		}
	}
	return assignments
}

// evaluate runs the rule engine, skipping rules whose evaluator fails
func (p *plan) evaluate(engine *rules.Engine, assignments []model.Assignment) rules.Evaluation {
	eval := engine.Evaluate(assignments, p.rulesCtx)
	if errored := eval.ErroredRules(); len(errored) > 0 {
		p.logger.Warn("Skipping rules that failed to evaluate", zap.Strings("rules", errored))
		eval = engine.Without(errored...).Evaluate(assignments, p.rulesCtx)
	}
	return eval
}

// result builds the strategy output. reasons holds the conflict reason of each unfilled slot.
func (p *plan) result(alg model.Algorithm, engine *rules.Engine, assignments []model.Assignment, reasons map[*model.Slot]string, started time.Time) *Result {
	var conflicts []model.Conflict
	for _, slot := range p.slots {
		reason, ok := reasons[slot]
		if !ok {
			continue
		}
		severity := model.SeverityMedium
		if reason == model.ReasonNoEmployeesAvailable {
			severity = model.SeverityHigh
		}
		conflicts = append(conflicts, model.Conflict{
			ID:       uuid.New().String(),
			Slot:     slot,
			Reason:   reason,
			Severity: severity,
		})
	}

	eval := p.evaluate(engine, assignments)
	scores, history := p.settleScores(assignments, started)

	return &Result{
		Slots:       p.slots,
		Assignments: assignments,
		Conflicts:   conflicts,
		Evaluation:  eval,
		Telemetry: model.Telemetry{
			Algorithm:      alg,
			Seed:           p.input.Seed,
			SlotsTotal:     len(p.slots),
			SlotsFilled:    len(assignments),
			LockedSlots:    len(p.locked),
			Conflicts:      len(conflicts),
			Score:          eval.Score,
			HardViolations: len(eval.HardViolations),
			Duration:       time.Since(started),
		},
		Scores:       scores,
		ScoreHistory: history,
	}
}

// scoreBook opens a book on the persisted scores of every candidate
func (p *plan) scoreBook() *ScoreBook {
	book := NewScoreBook(p.opts.Scoring, p.input.EmployeeScores, p.input.TeamScores)
	for _, e := range p.employees {
		book.Track(model.SubjectEmployee, e.ID)
	}
	for _, t := range p.teams {
		book.Track(model.SubjectTeam, t.ID)
	}
	return book
}

// settleScores charges every assignment made by the run and decays the rest.
// Locked assignments were charged by an earlier run.
func (p *plan) settleScores(assignments []model.Assignment, at time.Time) ([]ScoreUpdate, []model.ScoreHistoryEntry) {
	book := p.scoreBook()
	for _, a := range assignments {
		if _, ok := p.locked[a.Slot]; ok {
			continue
		}
		book.Record(a, p.members(a), at)
	}
	return book.Finish(time.Now())
}
