package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)

	_, err = ParseClock("nine")
	assert.Error(t, err)
}

func TestShiftTemplate_WindowCrossesMidnight(t *testing.T) {
	night := ShiftTemplate{Start: MustParseClock("22:00"), End: MustParseClock("06:00"), Category: CategoryNight}

	start, end := night.Window(date("2025-01-06"))

	assert.Equal(t, time.Date(2025, 1, 6, 22, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 7, 6, 0, 0, 0, time.UTC), end)
	assert.Equal(t, 8*time.Hour, night.Duration())
}

func TestShiftTemplate_EffectiveModeDefaultsToEmployee(t *testing.T) {
	assert.Equal(t, ModeEmployee, ShiftTemplate{}.EffectiveMode())
	assert.Equal(t, ModeTeam, ShiftTemplate{Mode: ModeTeam}.EffectiveMode())
}

func TestDemandRequirement_Covers(t *testing.T) {
	req := DemandRequirement{
		Weekday:       time.Monday,
		EffectiveFrom: date("2025-01-06"),
		EffectiveTo:   date("2025-01-20"),
	}

	assert.True(t, req.Covers(date("2025-01-06")))
	assert.True(t, req.Covers(date("2025-01-20")))
	assert.False(t, req.Covers(date("2025-01-07")), "wrong weekday")
	assert.False(t, req.Covers(date("2024-12-30")), "before effective range")
	assert.False(t, req.Covers(date("2025-01-27")), "after effective range")
}

func TestLeaveRecord_BlackoutsClippedToRange(t *testing.T) {
	leave := LeaveRecord{ID: "l1", EmployeeID: "e1", StartDate: date("2025-01-01"), EndDate: date("2025-01-10")}

	records := leave.Blackouts(date("2025-01-08"), date("2025-01-31"))

	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, AvailabilityBlackout, r.Kind)
		assert.Equal(t, "e1", r.EmployeeID)
	}
	assert.Equal(t, "2025-01-08", records[0].Date.Format(DateLayout))
	assert.Equal(t, "2025-01-10", records[2].Date.Format(DateLayout))
}

func TestAvailabilityRecord_AppliesToWindow(t *testing.T) {
	tmpl := ShiftTemplate{ID: "day", Start: MustParseClock("09:00"), End: MustParseClock("17:00")}
	start, end := tmpl.Window(date("2025-01-06"))
	slot := &Slot{Date: date("2025-01-06"), TemplateID: "day", Start: start, End: end}

	morning := MustParseClock("06:00")
	eight := MustParseClock("08:00")
	noon := MustParseClock("12:00")

	assert.True(t, AvailabilityRecord{Date: date("2025-01-06")}.AppliesTo(slot))
	assert.False(t, AvailabilityRecord{Date: date("2025-01-07")}.AppliesTo(slot))
	assert.False(t, AvailabilityRecord{Date: date("2025-01-06"), TemplateID: "night"}.AppliesTo(slot))
	assert.False(t, AvailabilityRecord{Date: date("2025-01-06"), WindowStart: &morning, WindowEnd: &eight}.AppliesTo(slot))
	assert.True(t, AvailabilityRecord{Date: date("2025-01-06"), WindowStart: &morning, WindowEnd: &noon}.AppliesTo(slot))
}

func TestSchedule_Transition(t *testing.T) {
	s := &Schedule{Status: StatusDraft}

	require.NoError(t, s.Transition(StatusRunning))
	require.NoError(t, s.Transition(StatusCompleted))
	assert.Error(t, s.Transition(StatusRunning), "completed is terminal")

	s = &Schedule{Status: StatusDraft}
	assert.Error(t, s.Transition(StatusCompleted), "draft cannot skip running")
}
