package ics

import (
	"fmt"
	"time"
	_ "time/tzdata"

	ical "github.com/arran4/golang-ical"

	"freetime/internal/model"
)

// zoneRule is one STANDARD or DAYLIGHT observance of a VTIMEZONE.
type zoneRule struct {
	daylight   bool
	name       string
	offsetFrom int // seconds east of UTC before onset
	offsetTo   int
	onset      time.Time // wall clock in offsetFrom
	rrule      string
}

// zoneRules derives the observances of loc in the given year from its
// transitions. A zone without transitions that year yields a single
// STANDARD observance.
func zoneRules(loc *time.Location, year int) []zoneRule {
	t := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	var out []zoneRule
	for range 8 {
		_, end := t.ZoneBounds()
		if end.IsZero() || end.Year() != year {
			break
		}
		_, from := t.Zone()
		name, to := end.Zone()
		wall := end.UTC().Add(time.Duration(from) * time.Second)
		out = append(out, zoneRule{
			daylight:   to > from,
			name:       name,
			offsetFrom: from,
			offsetTo:   to,
			onset:      wall,
			rrule:      yearlyRule(wall),
		})
		t = end
	}
	if len(out) == 0 {
		name, off := t.Zone()
		out = append(out, zoneRule{
			name:       name,
			offsetFrom: off,
			offsetTo:   off,
			onset:      time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return out
}

// yearlyRule describes the onset day as the nth (or last) weekday of its
// month, e.g. FREQ=YEARLY;BYMONTH=3;BYDAY=2SU.
func yearlyRule(wall time.Time) string {
	n := (wall.Day()-1)/7 + 1
	daysInMonth := time.Date(wall.Year(), wall.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if wall.Day()+7 > daysInMonth {
		n = -1
	}
	return fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;BYDAY=%d%s", int(wall.Month()), n, rruleDayCodes[(int(wall.Weekday())+6)%7])
}

func formatOffset(secs int) string {
	sign := '+'
	if secs < 0 {
		sign, secs = '-', -secs
	}
	return fmt.Sprintf("%c%02d%02d", sign, secs/3600, secs%3600/60)
}

// buildTimezone returns a VTIMEZONE for tzid with observances for the year
// of startDate.
func buildTimezone(tzid, startDate string) (*ical.VTimezone, error) {
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, err
	}
	year := time.Now().Year()
	if d, err := time.Parse(dateLayout, startDate); err == nil {
		year = d.Year()
	}

	tz := &ical.VTimezone{}
	tz.SetProperty(ical.ComponentPropertyTzid, tzid)
	tz.SetProperty(ical.ComponentProperty("X-LIC-LOCATION"), tzid)
	for _, r := range zoneRules(loc, year) {
		if r.daylight {
			obs := &ical.Daylight{}
			setObservance(&obs.ComponentBase, r)
			tz.Components = append(tz.Components, obs)
		} else {
			obs := &ical.Standard{}
			setObservance(&obs.ComponentBase, r)
			tz.Components = append(tz.Components, obs)
		}
	}
	return tz, nil
}

func setObservance(cb *ical.ComponentBase, r zoneRule) {
	cb.SetProperty(ical.ComponentProperty("TZOFFSETFROM"), formatOffset(r.offsetFrom))
	cb.SetProperty(ical.ComponentProperty("TZOFFSETTO"), formatOffset(r.offsetTo))
	cb.SetProperty(ical.ComponentProperty("TZNAME"), r.name)
	cb.SetProperty(ical.ComponentPropertyDtStart, r.onset.Format("20060102T150405"))
	if r.rrule != "" {
		cb.SetProperty(ical.ComponentPropertyRrule, r.rrule)
	}
}

// nextDate returns the YYYYMMDD date after date.
func nextDate(date string) (string, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, 1).Format(dateLayout), nil
}

// formatDateTime renders date plus clock as an iCalendar DATE-TIME. The end
// of day is written as midnight of the following date since hour 24 is not
// a valid DATE-TIME.
func formatDateTime(date string, c model.Clock, utc bool) string {
	if c == model.EndOfDay {
		if next, err := nextDate(date); err == nil {
			date, c = next, model.StartOfDay
		}
	}
	v := date + "T" + c.String()
	if utc {
		v += "Z"
	}
	return v
}
