package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Format is an export file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatICS  Format = "ics"
)

// ParseFormat parses a format name, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatICS:
		return FormatICS, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want xlsx or ics)", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatICS:
		return "text/calendar; charset=utf-8"
	}
	return "application/octet-stream"
}

// Roster is a stored schedule with everything needed to render it
type Roster struct {
	Schedule    *model.Schedule
	Slots       []*model.Slot
	Assignments []model.Assignment
	Conflicts   []model.Conflict

	// Names maps employee and team ids to display names
	Names map[string]string
}

// name returns the display name for an id, falling back to the id itself
func (r Roster) name(id string) string {
	if n, ok := r.Names[id]; ok && n != "" {
		return n
	}
	return id
}

// Write renders the roster in the given format
func Write(w io.Writer, format Format, r Roster) error {
	if r.Schedule == nil {
		return fmt.Errorf("roster has no schedule")
	}
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatICS:
		return WriteICS(w, r)
	}
	return fmt.Errorf("unsupported export format %q", format)
}
