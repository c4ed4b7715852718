package model

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a time of day expressed as minutes after midnight
type Clock int

// ParseClock parses an "HH:MM" string
func ParseClock(s string) (Clock, error) {
	var hours, minutes int
	if _, err := fmt.Sscanf(s, "%d:%d", &hours, &minutes); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hours < 0 || hours > 24 || minutes < 0 || minutes > 59 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(hours*60 + minutes), nil
}

// MustParseClock is ParseClock for constants and tests
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TruncateDate normalises t to midnight UTC of its calendar date
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DatesBetween returns every calendar date in [start, end]
func DatesBetween(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := TruncateDate(start); !d.After(TruncateDate(end)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
