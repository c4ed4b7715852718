package model

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a schedule generation run
type RunStatus string

const (
	StatusDraft     RunStatus = "draft"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

var allowedTransitions = map[RunStatus][]RunStatus{
	StatusDraft:   {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// Schedule is one generation run over a date range
type Schedule struct {
	ID       string
	TenantID string

	// ParentID is the schedule this run was generated from (reruns only)
	ParentID   string
	TemplateID string
	TeamID     string

	StartDate   time.Time
	EndDate     time.Time
	Algorithm   Algorithm
	Seed        int64
	Status      RunStatus
	Summary     Telemetry
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Transition moves the schedule to the next status.
// Completed and failed schedules are terminal.
func (s *Schedule) Transition(next RunStatus) error {
	for _, allowed := range allowedTransitions[s.Status] {
		if allowed == next {
			s.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid schedule status transition %s -> %s", s.Status, next)
}
