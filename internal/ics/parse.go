package ics

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "freetime/internal/log"
	"freetime/internal/model"
)

// Meta is the run-wide context taken from the first parsed event: the date
// the weekly schedule starts on, the date it repeats until, and the TZID its
// times are expressed in.
type Meta struct {
	StartDate string // YYYYMMDD
	EndDate   string // YYYYMMDD, empty if the rule has no UNTIL
	TZID      string

	// UTC is set when the start time carried a Z suffix and no TZID.
	UTC bool
}

// MalformedEventError describes a VEVENT that was skipped.
type MalformedEventError struct {
	Source string
	Line   int // line of the BEGIN:VEVENT marker
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%s:%d: malformed event: %s", e.Source, e.Line, e.Reason)
}

// ParseResult is the busy schedule extracted from one calendar document.
type ParseResult struct {
	Source   Source
	Schedule *model.WeeklySchedule

	// Meta is valid only when HasMeta is true.
	Meta    Meta
	HasMeta bool

	// Events counts the events that parsed cleanly, including those that
	// recur only on weekends.
	Events  int
	Skipped []*MalformedEventError
}

// record is the raw content lines of one VEVENT.
type record struct {
	line       int
	lines      []string
	terminated bool
	// broken is set when the record cannot be used regardless of its
	// fields, e.g. one of its lines was too long.
	broken string
}

// maxLineBytes bounds a single unfolded content line. Longer lines are
// dropped and the event holding them is skipped.
const maxLineBytes = 1 << 20

// Parse reads one calendar document and collects the weekday busy ranges of
// its weekly recurring events.
//
//   - Each VEVENT is isolated and handed to golang-ical on its own, so one
//     broken or truncated event never hides the ones after it.
//   - Fields are looked up by property name (DTSTART, DTEND, RRULE).
//   - Weekend days in BYDAY are dropped without error.
//
// The returned error is non-nil only when reading r fails.
func Parse(src Source, r io.Reader) (*ParseResult, error) {
	res := &ParseResult{
		Source:   src,
		Schedule: model.NewWeeklySchedule(),
	}

	records, err := splitEvents(src, r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}

	for _, rec := range records {
		ev, perr := parseRecord(rec)
		if perr != "" {
			merr := &MalformedEventError{Source: src.Name(), Line: rec.line, Reason: perr}
			appLog.Debug("ics vevent skipped", "source", src.Name(), "line", rec.line, "reason", perr)
			res.Skipped = append(res.Skipped, merr)
			continue
		}
		res.Events++
		if !res.HasMeta {
			res.Meta = ev.meta
			res.HasMeta = true
		}
		for _, wd := range ev.days {
			day, ok := model.ParseWeekday(wd)
			if !ok {
				appLog.Debug("ics weekday ignored", "source", src.Name(), "line", rec.line, "byday", wd)
				continue
			}
			res.Schedule.Add(day, ev.busy)
		}
	}

	appLog.Info("ics parse completed",
		"source", src.Name(),
		"event_count", res.Events,
		"busy_ranges", res.Schedule.Len(),
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// splitEvents scans unfolded content lines and groups those belonging to
// each VEVENT. An event that is not closed before the next BEGIN:VEVENT,
// END:VCALENDAR or EOF is returned unterminated.
func splitEvents(src Source, r io.Reader) ([]record, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		out     []record
		cur     *record
		lineNo  int
		pending string
		pendAt  int
		havePnd bool
	)

	flush := func(line string, at int) {
		if len(line) > maxLineBytes {
			appLog.Warn("ics line too long, dropped", "source", src.Name(), "line", at, "bytes", len(line))
			if cur != nil {
				cur.broken = fmt.Sprintf("line %d exceeds %d bytes", at, maxLineBytes)
			}
			return
		}
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case upper == "BEGIN:VEVENT":
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &record{line: at}
		case cur == nil:
		case upper == "END:VEVENT":
			cur.terminated = true
			out = append(out, *cur)
			cur = nil
		case upper == "END:VCALENDAR":
			out = append(out, *cur)
			cur = nil
		case upper == "":
		default:
			cur.lines = append(cur.lines, line)
		}
	}

	for {
		line, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lineNo++
		// Folded continuation (RFC 5545 3.1).
		if havePnd && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			if len(pending) <= maxLineBytes {
				pending += line[1:]
			}
			continue
		}
		if havePnd {
			flush(pending, pendAt)
		}
		pending, pendAt, havePnd = line, lineNo, true
	}
	if havePnd {
		flush(pending, pendAt)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// readLine returns the next line without its line ending. Bytes past
// maxLineBytes are read and discarded, so the returned line is at most one
// byte over the limit, enough for the caller to notice.
func readLine(br *bufio.Reader) (string, error) {
	var b []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && len(b) > 0 {
				return string(b), nil
			}
			return "", err
		}
		if len(b) <= maxLineBytes {
			b = append(b, chunk...)
			if len(b) > maxLineBytes {
				b = b[:maxLineBytes+1]
			}
		}
		if !isPrefix {
			return string(b), nil
		}
	}
}

type parsedEvent struct {
	meta Meta
	busy model.TimeRange
	days []string
}

// parseRecord returns a non-empty reason when rec cannot be used.
func parseRecord(rec record) (parsedEvent, string) {
	var ev parsedEvent
	if rec.broken != "" {
		return ev, rec.broken
	}
	if !rec.terminated {
		return ev, "missing END:VEVENT"
	}

	var doc strings.Builder
	doc.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\n")
	for _, l := range rec.lines {
		doc.WriteString(l)
		doc.WriteString("\r\n")
	}
	doc.WriteString("END:VEVENT\r\nEND:VCALENDAR\r\n")
	cal, err := ical.ParseCalendar(strings.NewReader(doc.String()))
	if err != nil {
		return ev, err.Error()
	}
	events := cal.Events()
	if len(events) != 1 {
		return ev, "not a single VEVENT"
	}
	ve := events[0]

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return ev, "missing DTSTART"
	}
	startDate, start, utc, err := splitDateTime(startProp.Value)
	if err != nil {
		return ev, "DTSTART: " + err.Error()
	}

	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp == nil {
		return ev, "missing DTEND"
	}
	endDate, end, _, err := splitDateTime(endProp.Value)
	if err != nil {
		return ev, "DTEND: " + err.Error()
	}
	// An end at midnight of the following day closes the day.
	if end == model.StartOfDay && endDate > startDate {
		end = model.EndOfDay
	}
	busy, err := model.NewTimeRange(start, end)
	if err != nil {
		return ev, err.Error()
	}

	ruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if ruleProp == nil {
		return ev, "missing RRULE"
	}
	opt, err := rrule.StrToROption(ruleProp.Value)
	if err != nil {
		return ev, "RRULE: " + err.Error()
	}

	days := make([]string, 0, len(opt.Byweekday))
	for i := range opt.Byweekday {
		days = append(days, dayCode(opt.Byweekday[i].Day()))
	}
	if len(days) == 0 {
		// Weekly rules without BYDAY repeat on DTSTART's weekday.
		d, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return ev, "DTSTART: " + err.Error()
		}
		days = append(days, dayCode((int(d.Weekday())+6)%7))
	}

	ev.meta = Meta{StartDate: startDate}
	if tz, ok := startProp.ICalParameters["TZID"]; ok && len(tz) > 0 {
		ev.meta.TZID = tz[0]
	} else {
		ev.meta.UTC = utc
	}
	if !opt.Until.IsZero() {
		ev.meta.EndDate = opt.Until.UTC().Format(dateLayout)
	}
	ev.busy = busy
	ev.days = days
	return ev, ""
}

const dateLayout = "20060102"

var rruleDayCodes = [7]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// dayCode maps an rrule weekday number (0=Monday) to its BYDAY code.
func dayCode(n int) string {
	if n < 0 || n >= len(rruleDayCodes) {
		return ""
	}
	return rruleDayCodes[n]
}

// splitDateTime splits a DATE-TIME value such as 20180108T090000 (optionally
// with a trailing Z) into its date and time-of-day. The time of day is the
// last six digits of the value; utc reports the Z suffix.
func splitDateTime(v string) (date string, c model.Clock, utc bool, err error) {
	v = strings.TrimSpace(v)
	v, utc = strings.CutSuffix(v, "Z")
	date, clock, ok := strings.Cut(v, "T")
	if !ok {
		return "", 0, false, fmt.Errorf("%q is not a date-time", v)
	}
	if len(date) != 8 {
		return "", 0, false, fmt.Errorf("%q: bad date", v)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", 0, false, fmt.Errorf("%q: bad date", v)
	}
	if len(clock) != 6 {
		return "", 0, false, fmt.Errorf("%q: want HHMMSS", v)
	}
	c, err = model.ParseClock(clock)
	if err != nil {
		return "", 0, false, err
	}
	return date, c, utc, nil
}
