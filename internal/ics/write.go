package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"freetime/internal/config"
	appLog "freetime/internal/log"
	"freetime/internal/model"
)

// WriteOptions labels the generated calendar.
type WriteOptions struct {
	CalendarName string
	Description  string
	Summary      string
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.CalendarName == "" {
		o.CalendarName = "Free Time"
	}
	if o.Description == "" {
		o.Description = "Free time between given schedules"
	}
	if o.Summary == "" {
		o.Summary = "Free Time"
	}
	return o
}

// Build turns a free-time schedule into a calendar with one weekly VEVENT
// per range, Monday first and in each day's stored order.
func Build(free *model.WeeklySchedule, meta Meta, opts WriteOptions) *ical.Calendar {
	opts = opts.withDefaults()

	cal := ical.NewCalendarFor("FREETIME")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(opts.CalendarName)
	cal.SetXWRCalDesc(opts.Description)

	var tzParams []ical.PropertyParameter
	if meta.TZID != "" {
		cal.SetXWRTimezone(meta.TZID)
		if tz, err := buildTimezone(meta.TZID, meta.StartDate); err != nil {
			appLog.Warn("unknown timezone, VTIMEZONE omitted", "tzid", meta.TZID, "err", err)
		} else {
			cal.Components = append(cal.Components, tz)
		}
		tzParams = append(tzParams, &ical.KeyValues{Key: "TZID", Value: []string{meta.TZID}})
	}

	// DTSTAMP is pinned to the start date so identical input gives
	// identical output.
	stamp, err := time.Parse(dateLayout, meta.StartDate)
	if err != nil {
		stamp = time.Unix(0, 0)
	}
	utc := meta.UTC && meta.TZID == ""

	for _, day := range model.Weekdays {
		for _, r := range free.Day(day) {
			ev := cal.AddEvent(eventUID(day, r))
			ev.SetDtStampTime(stamp.UTC())
			ev.SetProperty(ical.ComponentPropertyDtStart, formatDateTime(meta.StartDate, r.Start, utc), tzParams...)
			ev.SetProperty(ical.ComponentPropertyDtEnd, formatDateTime(meta.StartDate, r.End, utc), tzParams...)
			ev.SetProperty(ical.ComponentPropertyRrule, weeklyRule(day, meta.EndDate))
			ev.SetSummary(opts.Summary)
		}
	}
	return cal
}

// Write serializes the free-time calendar to w.
func Write(w io.Writer, free *model.WeeklySchedule, meta Meta, opts WriteOptions) error {
	_, err := io.WriteString(w, Build(free, meta, opts).Serialize())
	return err
}

// WriteFile writes the calendar to path atomically, so a failed run never
// leaves a partial file behind.
func WriteFile(path string, free *model.WeeklySchedule, meta Meta, opts WriteOptions) error {
	var b strings.Builder
	if err := Write(&b, free, meta, opts); err != nil {
		return err
	}
	if err := config.WriteFileAtomic(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func weeklyRule(day model.Weekday, until string) string {
	if until == "" {
		return "FREQ=WEEKLY;BYDAY=" + day.String()
	}
	return "FREQ=WEEKLY;UNTIL=" + until + "T000000Z;BYDAY=" + day.String()
}

func eventUID(day model.Weekday, r model.TimeRange) string {
	return fmt.Sprintf("freetime-%s-%s-%s", day, r.Start, r.End)
}
