package demand

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Occurrences returns every date in [start, end] on which the requirement applies
func Occurrences(req model.DemandRequirement, start, end time.Time) ([]time.Time, error) {
	from := model.TruncateDate(start)
	until := model.TruncateDate(end)
	if !req.EffectiveFrom.IsZero() && model.TruncateDate(req.EffectiveFrom).After(from) {
		from = model.TruncateDate(req.EffectiveFrom)
	}
	if !req.EffectiveTo.IsZero() && model.TruncateDate(req.EffectiveTo).Before(until) {
		until = model.TruncateDate(req.EffectiveTo)
	}
	if from.After(until) {
		return nil, nil
	}

	day, ok := weekdays[req.Weekday]
	if !ok {
		return nil, fmt.Errorf("invalid weekday %d", req.Weekday)
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{day},
		Dtstart:   from,
		Until:     until,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence: %w", err)
	}

	return r.All(), nil
}

// Expand turns recurring demand into concrete slots over [start, end].
// Slots are ordered by date, then by demand order, then by position.
func Expand(demand []model.DemandRequirement, templates []model.ShiftTemplate, start, end time.Time) ([]model.Slot, error) {
	if model.TruncateDate(end).Before(model.TruncateDate(start)) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	byID := make(map[string]model.ShiftTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}

	type pending struct {
		order int
		date  time.Time
		req   model.DemandRequirement
		tmpl  model.ShiftTemplate
	}
	var matches []pending

	for i, req := range demand {
		tmpl, ok := byID[req.TemplateID]
		if !ok {
			return nil, fmt.Errorf("demand requirement %s references unknown shift template %s", req.ID, req.TemplateID)
		}
		if req.RequiredCount <= 0 {
			continue
		}
		dates, err := Occurrences(req, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to expand demand requirement %s: %w", req.ID, err)
		}
		for _, d := range dates {
			matches = append(matches, pending{order: i, date: model.TruncateDate(d), req: req, tmpl: tmpl})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].date.Equal(matches[j].date) {
			return matches[i].date.Before(matches[j].date)
		}
		return matches[i].order < matches[j].order
	})

	// positions continue across requirements sharing a template on the same date
	nextPosition := make(map[string]int)
	var slots []model.Slot
	for _, m := range matches {
		key := m.tmpl.ID + "|" + m.date.Format(model.DateLayout)
		slotStart, slotEnd := m.tmpl.Window(m.date)
		for n := 0; n < m.req.RequiredCount; n++ {
			role := ""
			if n < len(m.req.RequiredRoles) {
				role = m.req.RequiredRoles[n]
			}
			slots = append(slots, model.Slot{
				ID:           uuid.New().String(),
				Date:         m.date,
				TemplateID:   m.tmpl.ID,
				Start:        slotStart,
				End:          slotEnd,
				Position:     nextPosition[key],
				RequiredRole: role,
				Mode:         m.tmpl.EffectiveMode(),
				Category:     m.tmpl.Category,
			})
			nextPosition[key]++
		}
	}

	return slots, nil
}

// DefaultDemand asks for one slot per template on every day of the week.
// Used when a tenant has no demand configured.
func DefaultDemand(templates []model.ShiftTemplate) []model.DemandRequirement {
	var demand []model.DemandRequirement
	for _, t := range templates {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			demand = append(demand, model.DemandRequirement{
				ID:            fmt.Sprintf("default:%s:%d", t.ID, wd),
				TenantID:      t.TenantID,
				TemplateID:    t.ID,
				Weekday:       wd,
				RequiredCount: 1,
			})
		}
	}
	return demand
}
