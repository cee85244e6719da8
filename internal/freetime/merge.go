package freetime

import (
	"slices"

	"freetime/internal/model"
)

// Merge concatenates the busy ranges that every calendar reports for day
// and sorts them by start, then end. The sort is stable, so the result does
// not depend on the order of calendars.
func Merge(day model.Weekday, calendars ...*model.WeeklySchedule) []model.TimeRange {
	n := 0
	for _, c := range calendars {
		n += len(c.Day(day))
	}
	out := make([]model.TimeRange, 0, n)
	for _, c := range calendars {
		out = append(out, c.Day(day)...)
	}
	slices.SortStableFunc(out, model.TimeRange.Compare)
	return out
}
