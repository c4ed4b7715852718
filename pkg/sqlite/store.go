package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

const batchSize = 200

// store implements db.Tx on one gorm transaction
type store struct {
	db *gorm.DB
}

func (s *store) ListActiveEmployees(ctx context.Context, tenantID, teamID string) ([]model.Employee, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true)
	if teamID != "" {
		// primary team or anyone on the team's roster
		roster := s.db.Model(&teamMemberRow{}).Select("employee_id").Where("team_id = ?", teamID)
		q = q.Where("team_id = ? OR id IN (?)", teamID, roster)
	}
	var rows []employeeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	employees := make([]model.Employee, len(rows))
	for i, r := range rows {
		employees[i] = r.toModel()
	}
	return employees, nil
}

func (s *store) ListTeams(ctx context.Context, tenantID string) ([]model.Team, error) {
	var rows []teamRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var members []teamMemberRow
	err := s.db.WithContext(ctx).Where("team_id IN ?", ids).Order("team_id, position, employee_id").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query team members: %w", err)
	}
	byTeam := make(map[string][]string)
	for _, m := range members {
		byTeam[m.TeamID] = append(byTeam[m.TeamID], m.EmployeeID)
	}

	teams := make([]model.Team, len(rows))
	for i, r := range rows {
		teams[i] = model.Team{ID: r.ID, TenantID: r.TenantID, Name: r.Name, MemberIDs: byTeam[r.ID]}
	}
	return teams, nil
}

func (s *store) ListShiftTemplates(ctx context.Context, tenantID string) ([]model.ShiftTemplate, error) {
	var rows []shiftTemplateRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("start_minute, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query shift templates: %w", err)
	}
	templates := make([]model.ShiftTemplate, len(rows))
	for i, r := range rows {
		templates[i] = r.toModel()
	}
	return templates, nil
}

func (s *store) ListDemandRequirements(ctx context.Context, tenantID string) ([]model.DemandRequirement, error) {
	var rows []demandRow
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("weekday, template_id, position, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query demand requirements: %w", err)
	}
	requirements := make([]model.DemandRequirement, len(rows))
	for i, r := range rows {
		requirements[i] = r.toModel()
	}
	return requirements, nil
}

func (s *store) ListRuleDefinitions(ctx context.Context, tenantID string) ([]model.RuleDefinition, error) {
	var rows []ruleRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query rule definitions: %w", err)
	}
	defs := make([]model.RuleDefinition, len(rows))
	for i, r := range rows {
		defs[i] = model.RuleDefinition{ID: r.ID, Label: r.Label, Type: model.RuleType(r.Type), Params: r.Params, Weight: r.Weight}
	}
	return defs, nil
}

func (s *store) ListLeaveRecords(ctx context.Context, tenantID string, from, to time.Time) ([]model.LeaveRecord, error) {
	var rows []leaveRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND start_date <= ? AND end_date >= ?", tenantID, "approved", to, from).
		Order("start_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leave records: %w", err)
	}
	leave := make([]model.LeaveRecord, len(rows))
	for i, r := range rows {
		leave[i] = model.LeaveRecord{ID: r.ID, EmployeeID: r.EmployeeID, StartDate: r.StartDate.UTC(), EndDate: r.EndDate.UTC()}
	}
	return leave, nil
}

func (s *store) ListAvailability(ctx context.Context, tenantID string, from, to time.Time) ([]model.AvailabilityRecord, error) {
	var rows []availabilityRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND date BETWEEN ? AND ?", tenantID, from, to).
		Order("date, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	records := make([]model.AvailabilityRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toModel()
	}
	return records, nil
}

func (s *store) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	var row scheduleRow
	err := s.db.WithContext(ctx).Where("id = ?", scheduleID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return row.toModel(), nil
}

func (s *store) InsertSchedule(ctx context.Context, schedule *model.Schedule) error {
	row := newScheduleRow(schedule)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *store) InsertSlots(ctx context.Context, scheduleID string, slots []*model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	rows := make([]slotRow, len(slots))
	for i, sl := range slots {
		rows[i] = newSlotRow(scheduleID, sl)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert slots: %w", err)
	}
	return nil
}

func (s *store) InsertAssignments(ctx context.Context, scheduleID string, assignments []model.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	rows := make([]assignmentRow, len(assignments))
	for i, a := range assignments {
		rows[i] = newAssignmentRow(scheduleID, a)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert assignments: %w", err)
	}
	return nil
}

func (s *store) InsertConflicts(ctx context.Context, scheduleID string, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	rows := make([]conflictRow, len(conflicts))
	for i, c := range conflicts {
		rows[i] = conflictRow{ID: c.ID, ScheduleID: scheduleID, SlotID: c.Slot.ID, Reason: c.Reason, Severity: c.Severity}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert conflicts: %w", err)
	}
	return nil
}

func (s *store) ListSlots(ctx context.Context, scheduleID string) ([]*model.Slot, error) {
	var rows []slotRow
	err := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("starts_at, template_id, position").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	slots := make([]*model.Slot, len(rows))
	for i, r := range rows {
		slots[i] = r.toModel()
	}
	return slots, nil
}

func indexSlots(slots []*model.Slot) map[string]*model.Slot {
	byID := make(map[string]*model.Slot, len(slots))
	for _, sl := range slots {
		byID[sl.ID] = sl
	}
	return byID
}

// ListAssignments returns the schedule's assignments in slot order, bound to slots
func (s *store) ListAssignments(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Assignment, error) {
	var rows []assignmentRow
	if err := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	bySlot := make(map[string]assignmentRow, len(rows))
	for _, r := range rows {
		bySlot[r.SlotID] = r
	}
	assignments := make([]model.Assignment, 0, len(rows))
	for _, sl := range slots {
		if r, ok := bySlot[sl.ID]; ok {
			assignments = append(assignments, r.toModel(sl))
		}
	}
	if len(assignments) != len(rows) {
		return nil, fmt.Errorf("schedule %s has %d assignments on unknown slots", scheduleID, len(rows)-len(assignments))
	}
	return assignments, nil
}

func (s *store) ListConflicts(ctx context.Context, scheduleID string, slots []*model.Slot) ([]model.Conflict, error) {
	var rows []conflictRow
	if err := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}

	byID := indexSlots(slots)
	conflicts := make([]model.Conflict, 0, len(rows))
	for _, r := range rows {
		slot := byID[r.SlotID]
		if slot == nil {
			return nil, fmt.Errorf("conflict %s references unknown slot %s", r.ID, r.SlotID)
		}
		conflicts = append(conflicts, model.Conflict{ID: r.ID, Slot: slot, Reason: r.Reason, Severity: r.Severity})
	}
	return conflicts, nil
}

// ListAssignmentsBetween returns assignments of completed, non-superseded
// schedules whose slots fall on dates in [from, to]
func (s *store) ListAssignmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Assignment, error) {
	q := s.db.WithContext(ctx)
	completed := string(model.StatusCompleted)

	superseded := q.Model(&scheduleRow{}).Select("parent_id").Where("parent_id <> '' AND status = ?", completed)
	var scheduleIDs []string
	err := q.Model(&scheduleRow{}).
		Where("tenant_id = ? AND status = ? AND id NOT IN (?)", tenantID, completed, superseded).
		Pluck("id", &scheduleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query completed schedules: %w", err)
	}
	if len(scheduleIDs) == 0 {
		return nil, nil
	}

	var slotRows []slotRow
	err = q.Where("schedule_id IN ? AND date BETWEEN ? AND ?", scheduleIDs, from, to).
		Order("starts_at").
		Find(&slotRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query history slots: %w", err)
	}
	if len(slotRows) == 0 {
		return nil, nil
	}

	slots := make([]*model.Slot, len(slotRows))
	slotIDs := make([]string, len(slotRows))
	for i, r := range slotRows {
		slots[i] = r.toModel()
		slotIDs[i] = r.ID
	}

	var rows []assignmentRow
	if err := q.Where("slot_id IN ?", slotIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query assignment history: %w", err)
	}
	bySlot := make(map[string]assignmentRow, len(rows))
	for _, r := range rows {
		bySlot[r.SlotID] = r
	}
	var assignments []model.Assignment
	for _, sl := range slots {
		if r, ok := bySlot[sl.ID]; ok {
			assignments = append(assignments, r.toModel(sl))
		}
	}
	return assignments, nil
}

// UpsertAssignment replaces whatever currently fills the slot
func (s *store) UpsertAssignment(ctx context.Context, scheduleID string, a model.Assignment) error {
	q := s.db.WithContext(ctx)
	if err := q.Where("schedule_id = ? AND slot_id = ?", scheduleID, a.Slot.ID).Delete(&conflictRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear conflict: %w", err)
	}
	if err := q.Where("slot_id = ?", a.Slot.ID).Delete(&assignmentRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear assignment: %w", err)
	}
	row := newAssignmentRow(scheduleID, a)
	if err := q.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// LockScores returns the tenant's scores. The single connection already
// serialises writers for the rest of the transaction.
func (s *store) LockScores(ctx context.Context, tenantID string) ([]db.Score, error) {
	var rows []scoreRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("subject, subject_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	scores := make([]db.Score, len(rows))
	for i, r := range rows {
		scores[i] = r.toScore()
	}
	return scores, nil
}

func (s *store) SaveScores(ctx context.Context, scores []db.Score) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([]scoreRow, len(scores))
	for i, sc := range scores {
		rows[i] = scoreRow{
			TenantID:  sc.TenantID,
			Subject:   string(sc.Subject),
			SubjectID: sc.SubjectID,
			Score:     sc.Score,
			UpdatedAt: sc.UpdatedAt,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "subject"}, {Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}
	return nil
}

func (s *store) AppendScoreHistory(ctx context.Context, tenantID string, entries []model.ScoreHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]scoreHistoryRow, len(entries))
	for i, h := range entries {
		rows[i] = scoreHistoryRow{
			ID:         h.ID,
			TenantID:   tenantID,
			Subject:    string(h.Subject),
			SubjectID:  h.SubjectID,
			ScheduleID: h.ScheduleID,
			SlotID:     h.SlotID,
			Delta:      h.Delta,
			Score:      h.Score,
			Reason:     h.Reason,
			CreatedAt:  h.CreatedAt,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("failed to append score history: %w", err)
	}
	return nil
}
