package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

const (
	rosterSheet  = "Roster"
	summarySheet = "Summary"
)

var rosterHeader = []string{"Date", "Weekday", "Template", "Position", "Start", "End", "Assignee", "Source", "Locked", "Conflict"}

// WriteXLSX writes one roster row per slot plus a summary sheet of the run telemetry
func WriteXLSX(w io.Writer, r Roster) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return fmt.Errorf("failed to name roster sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, title := range rosterHeader {
		if err := setCell(f, rosterSheet, i+1, 1, title); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(rosterHeader), 1)
	if err := f.SetCellStyle(rosterSheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	assigned := make(map[*model.Slot]model.Assignment, len(r.Assignments))
	for _, a := range r.Assignments {
		assigned[a.Slot] = a
	}
	conflicts := make(map[*model.Slot]model.Conflict, len(r.Conflicts))
	for _, c := range r.Conflicts {
		conflicts[c.Slot] = c
	}

	for i, slot := range r.Slots {
		row := i + 2
		values := []any{
			slot.DateKey(),
			slot.Date.Weekday().String(),
			slot.TemplateID,
			slot.Position,
			slot.Start.Format("15:04"),
			slot.End.Format("15:04"),
		}
		if a, ok := assigned[slot]; ok {
			values = append(values, r.name(a.AssigneeID()), string(a.Source), a.Locked, "")
		} else if c, ok := conflicts[slot]; ok {
			values = append(values, "", "", false, c.Reason)
		} else {
			values = append(values, "", "", false, "")
		}
		for col, v := range values {
			if err := setCell(f, rosterSheet, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	s := r.Schedule
	summary := [][]any{
		{"Schedule", s.ID},
		{"Status", string(s.Status)},
		{"Period", fmt.Sprintf("%s to %s", s.StartDate.Format(model.DateLayout), s.EndDate.Format(model.DateLayout))},
		{"Algorithm", string(s.Algorithm)},
		{"Seed", s.Seed},
		{"Slots", s.Summary.SlotsTotal},
		{"Filled", s.Summary.SlotsFilled},
		{"Conflicts", s.Summary.Conflicts},
		{"Score", s.Summary.Score},
		{"Fallback", s.Summary.Fallback},
	}
	for i, pair := range summary {
		for col, v := range pair {
			if err := setCell(f, summarySheet, col+1, i+1, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
	}
	return nil
}
