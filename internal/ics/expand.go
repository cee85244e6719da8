package ics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "freetime/internal/log"
	"freetime/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how a free-time calendar is expanded.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps the expansion of a single rule. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Expand reads a calendar produced by Write and lists the concrete
// occurrences of its weekly events inside the configured window, ordered by
// start time.
func Expand(src Source, r io.Reader, cfg ExpandConfig) ([]model.Occurrence, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", src.Name(), err)
	}

	out := make([]model.Occurrence, 0)
	for _, ve := range cal.Events() {
		occ, err := expandEvent(src, ve, cfg)
		if err != nil {
			appLog.Error("expand: event skipped", err, "source", src.Name())
			continue
		}
		out = append(out, occ...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func expandEvent(src Source, ve *ical.VEvent, cfg ExpandConfig) ([]model.Occurrence, error) {
	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	ruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if startProp == nil || endProp == nil || ruleProp == nil {
		return nil, errors.New("missing DTSTART, DTEND or RRULE")
	}

	loc := time.UTC
	if tz, ok := startProp.ICalParameters["TZID"]; ok && len(tz) > 0 {
		l, err := time.LoadLocation(tz[0])
		if err != nil {
			return nil, err
		}
		loc = l
	}

	dtStart, err := dateTimeIn(startProp.Value, loc)
	if err != nil {
		return nil, err
	}
	dtEnd, err := dateTimeIn(endProp.Value, loc)
	if err != nil {
		return nil, err
	}
	dur := dtEnd.Sub(dtStart)

	rule, err := rrule.StrToRRule(ruleProp.Value)
	if err != nil {
		return nil, err
	}
	rule.DTStart(dtStart)

	times := rule.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	if len(times) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("expand: occurrences truncated", "source", src.Name(), "cap", cfg.MaxOccurrencesPerEvent)
		times = times[:cfg.MaxOccurrencesPerEvent]
	}

	var summary string
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, t := range times {
		out = append(out, model.Occurrence{
			SourceID: src.ID,
			Summary:  summary,
			Weekday:  model.Weekday((int(t.Weekday()) + 6) % 7),
			Start:    t,
			End:      t.Add(dur),
		})
	}
	return out, nil
}

// dateTimeIn resolves a DATE-TIME value in loc. Z-suffixed values are UTC.
func dateTimeIn(v string, loc *time.Location) (time.Time, error) {
	date, clock, utc, err := splitDateTime(v)
	if err != nil {
		return time.Time{}, err
	}
	if utc {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, int(clock), 0, loc), nil
}
