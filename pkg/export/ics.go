package export

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
)

// WriteICS writes one calendar event per assignment
func WriteICS(w io.Writer, r Roster) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//shift-roster//roster export//EN")

	stamp := time.Now().UTC()
	if r.Schedule.CompletedAt != nil {
		stamp = r.Schedule.CompletedAt.UTC()
	}

	for _, a := range r.Assignments {
		event := cal.AddEvent(fmt.Sprintf("%s@%s", a.ID, r.Schedule.ID))
		event.SetDtStampTime(stamp)
		event.SetStartAt(a.Slot.Start)
		event.SetEndAt(a.Slot.End)
		event.SetSummary(fmt.Sprintf("%s: %s", a.Slot.TemplateID, r.name(a.AssigneeID())))
		description := fmt.Sprintf("Position %d, %s shift", a.Slot.Position, a.Slot.Category)
		if a.Locked {
			description += ", manually locked"
		}
		event.SetDescription(description)
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("failed to write ics: %w", err)
	}
	return nil
}
