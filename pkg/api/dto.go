package api

import (
	"time"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/core/services"
)

type generateRequest struct {
	TenantID            string `json:"tenantId" binding:"required"`
	TemplateID          string `json:"templateId"`
	ExistingScheduleID  string `json:"existingScheduleId"`
	StartDate           string `json:"startDate" binding:"omitempty,datetime=2006-01-02"`
	EndDate             string `json:"endDate" binding:"omitempty,datetime=2006-01-02"`
	Algorithm           string `json:"algorithm" binding:"omitempty,oneof=greedy backtracking annealing scorerank"`
	Seed                int64  `json:"seed"`
	PreserveManualEdits bool   `json:"preserveManualEdits"`
	TeamID              string `json:"teamId"`
}

func (r generateRequest) toService() (services.GenerateRosterRequest, error) {
	req := services.GenerateRosterRequest{
		TenantID:            r.TenantID,
		TemplateID:          r.TemplateID,
		ExistingScheduleID:  r.ExistingScheduleID,
		Algorithm:           model.Algorithm(r.Algorithm),
		Seed:                r.Seed,
		PreserveManualEdits: r.PreserveManualEdits,
		TeamID:              r.TeamID,
	}
	var err error
	if r.StartDate != "" {
		if req.StartDate, err = model.ParseDate(r.StartDate); err != nil {
			return req, err
		}
	}
	if r.EndDate != "" {
		if req.EndDate, err = model.ParseDate(r.EndDate); err != nil {
			return req, err
		}
	}
	return req, nil
}

type lockRequest struct {
	EmployeeID string `json:"employeeId"`
	TeamID     string `json:"teamId"`
}

type slotResponse struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	TemplateID   string `json:"templateId"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Position     int    `json:"position"`
	RequiredRole string `json:"requiredRole,omitempty"`
	Mode         string `json:"mode"`
}

func newSlotResponse(s *model.Slot) slotResponse {
	return slotResponse{
		ID:           s.ID,
		Date:         s.DateKey(),
		TemplateID:   s.TemplateID,
		Start:        s.Start.Format(time.RFC3339),
		End:          s.End.Format(time.RFC3339),
		Position:     s.Position,
		RequiredRole: s.RequiredRole,
		Mode:         string(s.Mode),
	}
}

type assignmentResponse struct {
	ID         string       `json:"id"`
	Slot       slotResponse `json:"slot"`
	EmployeeID string       `json:"employeeId,omitempty"`
	TeamID     string       `json:"teamId,omitempty"`
	Source     string       `json:"source"`
	Locked     bool         `json:"locked"`
}

func newAssignmentResponse(a model.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:         a.ID,
		Slot:       newSlotResponse(a.Slot),
		EmployeeID: a.EmployeeID,
		TeamID:     a.TeamID,
		Source:     string(a.Source),
		Locked:     a.Locked,
	}
}

type conflictResponse struct {
	Slot     slotResponse `json:"slot"`
	Reason   string       `json:"reason"`
	Severity string       `json:"severity"`
}

type violationResponse struct {
	RuleID  string  `json:"ruleId"`
	Message string  `json:"message"`
	Penalty float64 `json:"penalty,omitempty"`
}

type evaluationResponse struct {
	IsValid        bool                `json:"isValid"`
	Score          float64             `json:"score"`
	HardViolations []violationResponse `json:"hardViolations"`
	SoftViolations []violationResponse `json:"softViolations"`
}

func newViolations(vs []rules.Violation) []violationResponse {
	out := make([]violationResponse, len(vs))
	for i, v := range vs {
		out[i] = violationResponse{RuleID: v.RuleID, Message: v.Message, Penalty: v.Penalty}
	}
	return out
}

type scheduleResponse struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenantId"`
	ParentID    string               `json:"parentId,omitempty"`
	StartDate   string               `json:"startDate"`
	EndDate     string               `json:"endDate"`
	Algorithm   string               `json:"algorithm"`
	Seed        int64                `json:"seed"`
	Status      string               `json:"status"`
	Telemetry   model.Telemetry      `json:"telemetry"`
	Assignments []assignmentResponse `json:"assignments"`
	Conflicts   []conflictResponse   `json:"conflicts"`
	Evaluation  evaluationResponse   `json:"evaluation"`
}

func newScheduleResponse(res *services.GenerateRosterResult) scheduleResponse {
	s := res.Schedule
	out := scheduleResponse{
		ID:          s.ID,
		TenantID:    s.TenantID,
		ParentID:    s.ParentID,
		StartDate:   s.StartDate.Format(model.DateLayout),
		EndDate:     s.EndDate.Format(model.DateLayout),
		Algorithm:   string(s.Algorithm),
		Seed:        s.Seed,
		Status:      string(s.Status),
		Telemetry:   res.Telemetry,
		Assignments: make([]assignmentResponse, len(res.Assignments)),
		Conflicts:   make([]conflictResponse, len(res.Conflicts)),
		Evaluation: evaluationResponse{
			IsValid:        res.Evaluation.IsValid,
			Score:          res.Evaluation.Score,
			HardViolations: newViolations(res.Evaluation.HardViolations),
			SoftViolations: newViolations(res.Evaluation.SoftViolations),
		},
	}
	for i, a := range res.Assignments {
		out.Assignments[i] = newAssignmentResponse(a)
	}
	for i, c := range res.Conflicts {
		out.Conflicts[i] = conflictResponse{Slot: newSlotResponse(c.Slot), Reason: c.Reason, Severity: c.Severity}
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}
