package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/allocator"
	"github.com/jakechorley/shift-roster/pkg/core/demand"
	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/db"
)

// RosterOptions configure roster generation for every tenant
type RosterOptions struct {
	Strategy allocator.Options
	Weights  rules.SoftWeights

	// ClosedDates black out every employee, e.g. public holidays
	ClosedDates []time.Time

	// HistoryDays is how many days before the start date are read for
	// rest and streak checks across the boundary
	HistoryDays int
}

// DefaultRosterOptions returns the options used when nothing is configured
func DefaultRosterOptions() RosterOptions {
	return RosterOptions{
		Strategy:    allocator.DefaultOptions(),
		Weights:     rules.DefaultSoftWeights(),
		HistoryDays: 7,
	}
}

// GenerateRosterRequest triggers one generation run. Fields left empty on a
// rerun are inherited from the existing schedule.
type GenerateRosterRequest struct {
	TenantID string

	// TemplateID restricts the run to one shift template
	TemplateID string

	// ExistingScheduleID makes this run a rerun of that schedule
	ExistingScheduleID string

	StartDate time.Time
	EndDate   time.Time
	Algorithm model.Algorithm
	Seed      int64

	// PreserveManualEdits carries the existing schedule's locked assignments into the rerun
	PreserveManualEdits bool

	// TeamID scopes the employee pool to one team
	TeamID string
}

// GenerateRosterResult is the outcome of a completed run
type GenerateRosterResult struct {
	Schedule    *model.Schedule
	Slots       []*model.Slot
	Assignments []model.Assignment
	Conflicts   []model.Conflict
	Telemetry   model.Telemetry
	Evaluation  rules.Evaluation
}

// GenerateRoster loads everything a run needs, invokes the requested strategy
// and persists the schedule with its slots, assignments, conflicts and score
// updates in one transaction. Any error rolls the whole run back.
func GenerateRoster(ctx context.Context, database db.Database, registry *rules.Registry, opts RosterOptions, logger *zap.Logger, req GenerateRosterRequest) (*GenerateRosterResult, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}

	logger.Debug("Generating roster",
		zap.String("tenant_id", req.TenantID),
		zap.String("existing_schedule_id", req.ExistingScheduleID),
		zap.String("algorithm", string(req.Algorithm)))

	var result *GenerateRosterResult
	err := database.RunInTx(ctx, func(tx db.Tx) error {
		r, err := generateInTx(ctx, tx, registry, opts, logger, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error("Roster generation failed, nothing was persisted", zap.Error(err))
		return nil, err
	}

	logger.Info("Roster generated",
		zap.String("schedule_id", result.Schedule.ID),
		zap.String("algorithm", string(result.Schedule.Algorithm)),
		zap.Int("slots", result.Telemetry.SlotsTotal),
		zap.Int("filled", result.Telemetry.SlotsFilled),
		zap.Int("conflicts", result.Telemetry.Conflicts),
		zap.Duration("duration", result.Telemetry.Duration))

	return result, nil
}

func generateInTx(ctx context.Context, tx db.Tx, registry *rules.Registry, opts RosterOptions, logger *zap.Logger, req GenerateRosterRequest) (*GenerateRosterResult, error) {
	params, parent, err := resolveRequest(ctx, tx, logger, req)
	if err != nil {
		return nil, err
	}

	schedule := &model.Schedule{
		ID:         uuid.New().String(),
		TenantID:   params.TenantID,
		TemplateID: params.TemplateID,
		TeamID:     params.TeamID,
		StartDate:  params.StartDate,
		EndDate:    params.EndDate,
		Algorithm:  params.Algorithm,
		Seed:       params.Seed,
		Status:     model.StatusDraft,
		CreatedAt:  time.Now().UTC(),
	}
	if parent != nil {
		schedule.ParentID = parent.ID
	}
	if err := schedule.Transition(model.StatusRunning); err != nil {
		return nil, err
	}

	res, evaluation, err := runStrategy(ctx, tx, registry, opts, logger, params, parent)
	if err != nil {
		// the transaction rolls back, so the failed state is never stored
		_ = schedule.Transition(model.StatusFailed)
		logger.Warn("Schedule run failed", zap.String("schedule_id", schedule.ID), zap.Error(err))
		return nil, err
	}

	completedAt := time.Now().UTC()
	schedule.Summary = res.Telemetry
	schedule.CompletedAt = &completedAt
	if err := schedule.Transition(model.StatusCompleted); err != nil {
		return nil, err
	}

	if err := persistRun(ctx, tx, logger, schedule, res); err != nil {
		return nil, err
	}

	return &GenerateRosterResult{
		Schedule:    schedule,
		Slots:       res.Slots,
		Assignments: res.Assignments,
		Conflicts:   res.Conflicts,
		Telemetry:   res.Telemetry,
		Evaluation:  evaluation,
	}, nil
}

// resolveRequest fills the fields a rerun leaves empty from the existing schedule
func resolveRequest(ctx context.Context, tx db.Tx, logger *zap.Logger, req GenerateRosterRequest) (GenerateRosterRequest, *model.Schedule, error) {
	params := req
	var parent *model.Schedule

	if req.ExistingScheduleID != "" {
		logger.Debug("Fetching existing schedule", zap.String("schedule_id", req.ExistingScheduleID))
		existing, err := tx.GetSchedule(ctx, req.ExistingScheduleID)
		if errors.Is(err, db.ErrNotFound) {
			return params, nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, req.ExistingScheduleID)
		}
		if err != nil {
			return params, nil, fmt.Errorf("failed to fetch existing schedule: %w", err)
		}
		if existing.TenantID != req.TenantID {
			return params, nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, req.ExistingScheduleID)
		}
		parent = existing

		if params.TemplateID == "" {
			params.TemplateID = existing.TemplateID
		}
		if params.TeamID == "" {
			params.TeamID = existing.TeamID
		}
		if params.StartDate.IsZero() {
			params.StartDate = existing.StartDate
		}
		if params.EndDate.IsZero() {
			params.EndDate = existing.EndDate
		}
		if params.Algorithm == "" {
			params.Algorithm = existing.Algorithm
		}
		if params.Seed == 0 {
			params.Seed = existing.Seed
		}
	}

	if params.Algorithm == "" {
		params.Algorithm = model.AlgorithmGreedy
	}
	if params.StartDate.IsZero() || params.EndDate.IsZero() {
		return params, nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	params.StartDate = model.TruncateDate(params.StartDate)
	params.EndDate = model.TruncateDate(params.EndDate)
	if params.EndDate.Before(params.StartDate) {
		return params, nil, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRequest,
			params.EndDate.Format(model.DateLayout), params.StartDate.Format(model.DateLayout))
	}
	if params.PreserveManualEdits && parent == nil {
		logger.Warn("PreserveManualEdits ignored without an existing schedule")
	}

	return params, parent, nil
}

// runStrategy loads the run's entities and invokes the strategy
func runStrategy(ctx context.Context, tx db.Tx, registry *rules.Registry, opts RosterOptions, logger *zap.Logger, params GenerateRosterRequest, parent *model.Schedule) (*allocator.Result, rules.Evaluation, error) {
	input, err := loadInput(ctx, tx, opts, logger, params, parent)
	if err != nil {
		return nil, rules.Evaluation{}, err
	}

	defs, err := tx.ListRuleDefinitions(ctx, params.TenantID)
	if err != nil {
		return nil, rules.Evaluation{}, fmt.Errorf("failed to fetch rule definitions: %w", err)
	}
	if len(defs) == 0 {
		logger.Debug("No rule definitions configured, using defaults")
		defs = rules.DefaultDefinitions(opts.Strategy.Limits, opts.Weights)
	}
	engine := rules.NewEngine(registry, defs, logger)

	strategy, err := allocator.NewStrategy(params.Algorithm, engine, opts.Strategy, logger)
	if err != nil {
		return nil, rules.Evaluation{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	logger.Debug("Running strategy",
		zap.String("algorithm", string(strategy.Name())),
		zap.Int("employees", len(input.Employees)),
		zap.Int("teams", len(input.Teams)),
		zap.Int("locked", len(input.Locked)))

	res, err := strategy.Generate(ctx, input)
	if err != nil {
		return nil, rules.Evaluation{}, fmt.Errorf("failed to run %s strategy: %w", strategy.Name(), err)
	}
	return res, res.Evaluation, nil
}

func loadInput(ctx context.Context, tx db.Tx, opts RosterOptions, logger *zap.Logger, params GenerateRosterRequest, parent *model.Schedule) (allocator.Input, error) {
	tenantID := params.TenantID
	from, to := params.StartDate, params.EndDate

	templates, err := tx.ListShiftTemplates(ctx, tenantID)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch shift templates: %w", err)
	}
	templates = filterTemplates(templates, params.TemplateID)
	if len(templates) == 0 {
		return allocator.Input{}, ErrNoShiftTemplates
	}

	employees, err := tx.ListActiveEmployees(ctx, tenantID, params.TeamID)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch employees: %w", err)
	}
	if len(employees) == 0 {
		return allocator.Input{}, ErrNoActiveEmployees
	}
	logger.Debug("Fetched employees", zap.Int("count", len(employees)))

	teams, err := tx.ListTeams(ctx, tenantID)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch teams: %w", err)
	}
	if params.TeamID != "" {
		teams = filterTeams(teams, params.TeamID)
	}

	requirements, err := tx.ListDemandRequirements(ctx, tenantID)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch demand requirements: %w", err)
	}
	requirements = filterDemand(requirements, templates)
	if len(requirements) == 0 {
		logger.Info("No demand requirements configured, using one slot per template per day")
		requirements = demand.DefaultDemand(templates)
	}

	leave, err := tx.ListLeaveRecords(ctx, tenantID, from, to)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch leave records: %w", err)
	}
	availability, err := tx.ListAvailability(ctx, tenantID, from, to)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to fetch availability: %w", err)
	}
	for _, l := range leave {
		availability = append(availability, l.Blackouts(from, to)...)
	}
	availability = append(availability, closureBlackouts(opts.ClosedDates, employees, from, to)...)

	var history []model.Assignment
	if opts.HistoryDays > 0 {
		history, err = tx.ListAssignmentsBetween(ctx, tenantID, from.AddDate(0, 0, -opts.HistoryDays), from.AddDate(0, 0, -1))
		if err != nil {
			return allocator.Input{}, fmt.Errorf("failed to fetch prior assignments: %w", err)
		}
	}

	var locked []model.Assignment
	if params.PreserveManualEdits && parent != nil {
		locked, err = lockedAssignments(ctx, tx, parent.ID)
		if err != nil {
			return allocator.Input{}, err
		}
		logger.Debug("Preserving manual edits", zap.Int("count", len(locked)))
	}

	scores, err := tx.LockScores(ctx, tenantID)
	if err != nil {
		return allocator.Input{}, fmt.Errorf("failed to lock scores: %w", err)
	}
	employeeScores := make(map[string]float64)
	teamScores := make(map[string]float64)
	for _, s := range scores {
		switch s.Subject {
		case model.SubjectEmployee:
			employeeScores[s.SubjectID] = s.Score
		case model.SubjectTeam:
			teamScores[s.SubjectID] = s.Score
		}
	}

	return allocator.Input{
		StartDate:      from,
		EndDate:        to,
		Employees:      employees,
		Teams:          teams,
		Templates:      templates,
		Demand:         requirements,
		Availability:   availability,
		Locked:         locked,
		History:        history,
		Seed:           params.Seed,
		EmployeeScores: employeeScores,
		TeamScores:     teamScores,
	}, nil
}

func lockedAssignments(ctx context.Context, tx db.Tx, scheduleID string) ([]model.Assignment, error) {
	slots, err := tx.ListSlots(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing slots: %w", err)
	}
	assignments, err := tx.ListAssignments(ctx, scheduleID, slots)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing assignments: %w", err)
	}
	var locked []model.Assignment
	for _, a := range assignments {
		if a.Locked {
			locked = append(locked, a)
		}
	}
	return locked, nil
}

func persistRun(ctx context.Context, tx db.Tx, logger *zap.Logger, schedule *model.Schedule, res *allocator.Result) error {
	logger.Debug("Persisting schedule", zap.String("schedule_id", schedule.ID))

	if err := tx.InsertSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	if err := tx.InsertSlots(ctx, schedule.ID, res.Slots); err != nil {
		return fmt.Errorf("failed to insert slots: %w", err)
	}
	if err := tx.InsertAssignments(ctx, schedule.ID, res.Assignments); err != nil {
		return fmt.Errorf("failed to insert assignments: %w", err)
	}
	if err := tx.InsertConflicts(ctx, schedule.ID, res.Conflicts); err != nil {
		return fmt.Errorf("failed to insert conflicts: %w", err)
	}

	if len(res.Scores) == 0 {
		return nil
	}

	now := time.Now().UTC()
	scores := make([]db.Score, 0, len(res.Scores))
	for _, u := range res.Scores {
		scores = append(scores, db.Score{
			TenantID:  schedule.TenantID,
			Subject:   u.Subject,
			SubjectID: u.SubjectID,
			Score:     u.Score,
			UpdatedAt: now,
		})
	}
	if err := tx.SaveScores(ctx, scores); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}

	history := make([]model.ScoreHistoryEntry, len(res.ScoreHistory))
	for i, h := range res.ScoreHistory {
		h.ScheduleID = schedule.ID
		history[i] = h
	}
	if err := tx.AppendScoreHistory(ctx, schedule.TenantID, history); err != nil {
		return fmt.Errorf("failed to append score history: %w", err)
	}

	logger.Debug("Scores updated", zap.Int("scores", len(scores)), zap.Int("history", len(history)))
	return nil
}

func filterTemplates(templates []model.ShiftTemplate, templateID string) []model.ShiftTemplate {
	if templateID == "" {
		return templates
	}
	var result []model.ShiftTemplate
	for _, t := range templates {
		if t.ID == templateID {
			result = append(result, t)
		}
	}
	return result
}

func filterTeams(teams []model.Team, teamID string) []model.Team {
	var result []model.Team
	for _, t := range teams {
		if t.ID == teamID {
			result = append(result, t)
		}
	}
	return result
}

// filterDemand drops requirements for templates outside the run
func filterDemand(requirements []model.DemandRequirement, templates []model.ShiftTemplate) []model.DemandRequirement {
	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[t.ID] = true
	}
	var result []model.DemandRequirement
	for _, r := range requirements {
		if known[r.TemplateID] {
			result = append(result, r)
		}
	}
	return result
}

// closureBlackouts blacks out every employee on closed dates within [from, to]
func closureBlackouts(closed []time.Time, employees []model.Employee, from, to time.Time) []model.AvailabilityRecord {
	var records []model.AvailabilityRecord
	for _, d := range closed {
		d = model.TruncateDate(d)
		if d.Before(from) || d.After(to) {
			continue
		}
		for _, e := range employees {
			records = append(records, model.AvailabilityRecord{
				ID:         fmt.Sprintf("closure:%s:%s", d.Format(model.DateLayout), e.ID),
				EmployeeID: e.ID,
				Date:       d,
				Kind:       model.AvailabilityBlackout,
			})
		}
	}
	return records
}
