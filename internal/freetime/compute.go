package freetime

import (
	"freetime/internal/model"
)

// Compute finds the free time shared by all calendars, one weekday at a
// time, and returns it as a new schedule.
func Compute(calendars []*model.WeeklySchedule, p Policy) *model.WeeklySchedule {
	free := model.NewWeeklySchedule()
	for _, day := range model.Weekdays {
		ComputeDay(free, day, calendars, p)
	}
	return free
}

// ComputeDay adds the free ranges for day to free. Only calendars are
// merged; entries already in free are not treated as busy. Identical ranges
// are recorded once.
func ComputeDay(free *model.WeeklySchedule, day model.Weekday, calendars []*model.WeeklySchedule, p Policy) {
	busy := Merge(day, calendars...)

	accept := func(candidate model.TimeRange) {
		gap, ok := p.clip(candidate)
		if !ok {
			return
		}
		if r, ok := p.Apply(gap); ok {
			free.AddUnique(day, r)
		}
	}

	for _, edge := range p.Caps(busy) {
		accept(edge)
	}
	for gap := range Gaps(busy, p.Mode) {
		accept(gap)
	}
}
