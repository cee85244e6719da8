package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"
)

// Clock is a time of day expressed as seconds since midnight.
//
// The valid range is [0, EndOfDay]; EndOfDay (24:00:00) is allowed so that a
// range can run to the end of a day.
type Clock int

const (
	StartOfDay Clock = 0
	EndOfDay   Clock = 24 * 60 * 60
)

// ClockFromHHMMSS converts an HHMMSS-style integer (e.g. 70000 for 07:00:00,
// 240000 for end of day) into a Clock.
func ClockFromHHMMSS(v int) (Clock, error) {
	if v < 0 {
		return 0, fmt.Errorf("clock %d: negative", v)
	}
	h, m, s := v/10000, v/100%100, v%100
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("clock %06d: minutes/seconds out of range", v)
	}
	c := Clock(h*3600 + m*60 + s)
	if c > EndOfDay {
		return 0, fmt.Errorf("clock %06d: past end of day", v)
	}
	return c, nil
}

// ParseClock parses the digits of an HHMMSS value. At most six digits are
// accepted; shorter inputs are treated as if left-padded with zeros.
func ParseClock(s string) (Clock, error) {
	if s == "" || len(s) > 6 {
		return 0, fmt.Errorf("clock %q: want up to 6 digits", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("clock %q: non-digit", s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return ClockFromHHMMSS(v)
}

// MustClock is like ClockFromHHMMSS but panics on error. Intended for
// constants and tests.
func MustClock(v int) Clock {
	c, err := ClockFromHHMMSS(v)
	if err != nil {
		panic(err)
	}
	return c
}

// HHMMSS returns the clock as an HHMMSS-style integer.
func (c Clock) HHMMSS() int {
	s := int(c)
	return s/3600*10000 + s%3600/60*100 + s%60
}

// String renders the clock as a zero-padded six digit HHMMSS string.
func (c Clock) String() string {
	return fmt.Sprintf("%06d", c.HHMMSS())
}

// Add shifts the clock by d, truncated to whole seconds. The result is not
// clamped to the day.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Second)
}

// Sub returns the duration c-o.
func (c Clock) Sub(o Clock) time.Duration {
	return time.Duration(c-o) * time.Second
}

// InDay reports whether c lies within [StartOfDay, EndOfDay].
func (c Clock) InDay() bool {
	return c >= StartOfDay && c <= EndOfDay
}

// TimeRange is a half-open interval [Start, End) on a single day.
type TimeRange struct {
	Start Clock
	End   Clock
}

var ErrEmptyRange = errors.New("time range: start must be before end")

// NewTimeRange returns a validated range.
func NewTimeRange(start, end Clock) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if !r.Valid() {
		return TimeRange{}, fmt.Errorf("%w: %s-%s", ErrEmptyRange, start, end)
	}
	return r, nil
}

func (r TimeRange) Valid() bool {
	return r.Start < r.End && r.Start.InDay() && r.End.InDay()
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Compare orders ranges by Start, then End.
func (r TimeRange) Compare(o TimeRange) int {
	switch {
	case r.Start != o.Start:
		return int(r.Start - o.Start)
	default:
		return int(r.End - o.End)
	}
}

func (r TimeRange) Less(o TimeRange) bool {
	return r.Compare(o) < 0
}

// Overlaps reports whether the interiors of r and o intersect.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Weekday indexes the five working days, Monday=0 through Friday=4.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
)

// DaysPerWeek is the number of weekday buckets in a WeeklySchedule.
const DaysPerWeek = 5

// Weekdays lists the buckets in processing order.
var Weekdays = [DaysPerWeek]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

var weekdayCodes = [DaysPerWeek]string{"MO", "TU", "WE", "TH", "FR"}

// ParseWeekday maps an iCalendar day code to a Weekday. Weekend codes and
// anything else report false.
func ParseWeekday(code string) (Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return Weekday(i), true
		}
	}
	return 0, false
}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Friday
}

// String returns the iCalendar day code ("MO".."FR").
func (d Weekday) String() string {
	if !d.Valid() {
		return "ERROR"
	}
	return weekdayCodes[d]
}

// TimeWeekday converts to the standard library's weekday.
func (d Weekday) TimeWeekday() time.Weekday {
	return time.Monday + time.Weekday(d)
}

// WeeklySchedule holds one sorted list of ranges per weekday.
//
// The zero value is ready to use.
type WeeklySchedule struct {
	days [DaysPerWeek][]TimeRange
}

func NewWeeklySchedule() *WeeklySchedule {
	return &WeeklySchedule{}
}

// Add inserts r into the bucket for day, keeping the bucket sorted. Equal
// ranges are kept; a new entry goes after any existing equal entries.
// Ranges for days outside Monday..Friday are ignored.
func (w *WeeklySchedule) Add(day Weekday, r TimeRange) {
	if !day.Valid() {
		return
	}
	list := w.days[day]
	i := sort.Search(len(list), func(i int) bool { return r.Less(list[i]) })
	w.days[day] = slices.Insert(list, i, r)
}

// AddUnique inserts r unless an identical range is already present for day.
// It reports whether r was inserted.
func (w *WeeklySchedule) AddUnique(day Weekday, r TimeRange) bool {
	if !day.Valid() || w.Contains(day, r) {
		return false
	}
	w.Add(day, r)
	return true
}

func (w *WeeklySchedule) Contains(day Weekday, r TimeRange) bool {
	if !day.Valid() {
		return false
	}
	_, found := slices.BinarySearchFunc(w.days[day], r, TimeRange.Compare)
	return found
}

// Day returns the ranges for day in ascending order. The slice must not be
// modified.
func (w *WeeklySchedule) Day(day Weekday) []TimeRange {
	if !day.Valid() {
		return nil
	}
	return w.days[day]
}

// Len returns the number of ranges across all days.
func (w *WeeklySchedule) Len() int {
	n := 0
	for _, d := range w.days {
		n += len(d)
	}
	return n
}

// Occurrence is a single concrete instance of a weekly free-time event,
// produced when a written calendar is expanded over its date range.
type Occurrence struct {
	SourceID string
	Summary  string
	Weekday  Weekday

	// Start / End are in the calendar's TZID location.
	Start time.Time
	End   time.Time
}
