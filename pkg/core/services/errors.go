package services

import "errors"

// Fatal run errors. A run failing with one of these persists nothing.
var (
	ErrNoShiftTemplates  = errors.New("no shift templates configured")
	ErrNoActiveEmployees = errors.New("no active employees in scope")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrInvalidRequest    = errors.New("invalid request")
)
