package schedule

import "time"

// Window is a span of hours on one weekday. FromHour and ToHour are both
// inclusive, so {Sunday, 13, 23} covers 13:00 through 23:59.
type Window struct {
	Weekday  time.Weekday
	FromHour int
	ToHour   int
}

// Contains reports whether t falls inside w.
func (w Window) Contains(t time.Time) bool {
	if t.Weekday() != w.Weekday {
		return false
	}
	h := t.Hour()
	return h >= w.FromHour && h <= w.ToHour
}

// ActivityTable lists the windows in which games are typically live.
type ActivityTable []Window

// DefaultActivityTable returns the usual NFL game windows.
func DefaultActivityTable() ActivityTable {
	return ActivityTable{
		{Weekday: time.Sunday, FromHour: 13, ToHour: 23},
		{Weekday: time.Monday, FromHour: 13, ToHour: 23},
		{Weekday: time.Thursday, FromHour: 13, ToHour: 23},
	}
}

// Active reports whether t falls inside any window.
func (a ActivityTable) Active(t time.Time) bool {
	for _, w := range a {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
