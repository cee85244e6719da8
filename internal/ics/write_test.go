package ics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freetime/internal/model"
)

var testMeta = Meta{StartDate: "20180108", EndDate: "20180504", TZID: "America/New_York"}

func freeFixture() *model.WeeklySchedule {
	free := model.NewWeeklySchedule()
	free.Add(model.Monday, rng(70500, 85500))
	free.Add(model.Monday, rng(100500, 105500))
	free.Add(model.Monday, rng(120500, 235500))
	free.Add(model.Friday, rng(70500, 235500))
	return free
}

func TestWriteEmitsOneEventPerRange(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, freeFixture(), testMeta, WriteOptions{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Contains(t, out, "END:VCALENDAR")
	assert.Equal(t, 4, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "BEGIN:VTIMEZONE")
	assert.Contains(t, out, "X-WR-CALNAME:Free Time")
	assert.Contains(t, out, "DTSTART;TZID=America/New_York:20180108T070500")
	assert.Contains(t, out, "DTEND;TZID=America/New_York:20180108T085500")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY;UNTIL=20180504T000000Z;BYDAY=FR")
	assert.Contains(t, out, "SUMMARY:Free Time")
	assert.Contains(t, out, "DTSTAMP:20180108T000000Z")
	assert.Equal(t, 4, strings.Count(out, "DTSTAMP:"))

	vtz := out[strings.Index(out, "BEGIN:VTIMEZONE"):strings.Index(out, "END:VTIMEZONE")]
	assert.Contains(t, vtz, "TZID:America/New_York")
	daylight := vtz[strings.Index(vtz, "BEGIN:DAYLIGHT"):strings.Index(vtz, "END:DAYLIGHT")]
	assert.Contains(t, daylight, "TZOFFSETFROM:-0500")
	assert.Contains(t, daylight, "TZOFFSETTO:-0400")
	assert.Contains(t, daylight, "TZNAME:EDT")
	assert.Contains(t, daylight, "DTSTART:20180311T020000")
	assert.Contains(t, daylight, "RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU")
	standard := vtz[strings.Index(vtz, "BEGIN:STANDARD"):strings.Index(vtz, "END:STANDARD")]
	assert.Contains(t, standard, "TZOFFSETFROM:-0400")
	assert.Contains(t, standard, "TZOFFSETTO:-0500")
	assert.Contains(t, standard, "TZNAME:EST")
	assert.Contains(t, standard, "DTSTART:20181104T020000")
	assert.Contains(t, standard, "RRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU")

	mon := strings.Index(out, "T070500")
	fri := strings.Index(out, "BYDAY=FR")
	assert.Less(t, mon, fri, "Monday events come first")
}

func TestWriteThenParseRoundTrip(t *testing.T) {
	t.Parallel()
	free := freeFixture()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, free, testMeta, WriteOptions{Summary: "Open"}))

	res, err := Parse(Source{ID: "freetime.ics"}, &buf)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, testMeta, res.Meta)
	for _, day := range model.Weekdays {
		assert.Equal(t, free.Day(day), res.Schedule.Day(day), day.String())
	}
}

func TestWriteWithoutTimezoneOrUntil(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, freeFixture(), Meta{StartDate: "20180108"}, WriteOptions{}))
	out := buf.String()
	assert.NotContains(t, out, "VTIMEZONE")
	assert.Contains(t, out, "DTSTART:20180108T070500")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY;BYDAY=MO")
}

func TestWriteFileIsAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "freetime.ics")
	require.NoError(t, WriteFile(path, freeFixture(), testMeta, WriteOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VEVENT")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExpandFirstWeek(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, freeFixture(), testMeta, WriteOptions{}))

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	from := time.Date(2018, 1, 8, 0, 0, 0, 0, loc)

	occ, err := Expand(Source{ID: "out"}, &buf, ExpandConfig{
		RangeStart: from,
		RangeEnd:   from.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, occ, 4)

	assert.Equal(t, model.Monday, occ[0].Weekday)
	assert.True(t, time.Date(2018, 1, 8, 7, 5, 0, 0, loc).Equal(occ[0].Start), occ[0].Start)
	assert.True(t, time.Date(2018, 1, 8, 8, 55, 0, 0, loc).Equal(occ[0].End), occ[0].End)
	assert.Equal(t, "Free Time", occ[0].Summary)

	last := occ[3]
	assert.Equal(t, model.Friday, last.Weekday)
	assert.True(t, time.Date(2018, 1, 12, 7, 5, 0, 0, loc).Equal(last.Start), last.Start)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	t.Parallel()
	now := time.Now()
	_, err := Expand(Source{}, strings.NewReader(""), ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestWriteEndOfDayAsNextMidnight(t *testing.T) {
	t.Parallel()
	free := model.NewWeeklySchedule()
	free.Add(model.Monday, rng(230000, 240000))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, free, testMeta, WriteOptions{}))
	out := buf.String()
	assert.Contains(t, out, "DTSTART;TZID=America/New_York:20180108T230000")
	assert.Contains(t, out, "DTEND;TZID=America/New_York:20180109T000000")
	assert.NotContains(t, out, "T240000")

	res, err := Parse(Source{ID: "out"}, strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []model.TimeRange{rng(230000, 240000)}, res.Schedule.Day(model.Monday))

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	from := time.Date(2018, 1, 8, 0, 0, 0, 0, loc)
	occ, err := Expand(Source{ID: "out"}, strings.NewReader(out), ExpandConfig{RangeStart: from, RangeEnd: from.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.True(t, time.Date(2018, 1, 9, 0, 0, 0, 0, loc).Equal(occ[0].End), occ[0].End)
}

func TestWriteUTCInputRoundTrip(t *testing.T) {
	t.Parallel()
	body := "BEGIN:VCALENDAR\nVERSION:2.0\nBEGIN:VEVENT\n" +
		"DTSTART:20180108T140000Z\nDTEND:20180108T150000Z\n" +
		"RRULE:FREQ=WEEKLY;UNTIL=20180504T035959Z;BYDAY=MO\n" +
		"END:VEVENT\nEND:VCALENDAR\n"
	in, err := Parse(Source{ID: "utc.ics"}, strings.NewReader(body))
	require.NoError(t, err)
	require.True(t, in.Meta.UTC)

	free := model.NewWeeklySchedule()
	free.Add(model.Monday, rng(70500, 135500))
	free.Add(model.Monday, rng(150500, 240000))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, free, in.Meta, WriteOptions{}))
	out := buf.String()
	assert.Contains(t, out, "DTSTART:20180108T070500Z")
	assert.Contains(t, out, "DTEND:20180108T135500Z")
	assert.Contains(t, out, "DTEND:20180109T000000Z")
	assert.NotContains(t, out, "TZID")
	assert.NotContains(t, out, "VTIMEZONE")

	res, err := Parse(Source{ID: "out"}, strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, in.Meta, res.Meta)
	assert.Equal(t, free.Day(model.Monday), res.Schedule.Day(model.Monday))

	from := time.Date(2018, 1, 8, 0, 0, 0, 0, time.UTC)
	occ, err := Expand(Source{ID: "out"}, strings.NewReader(out), ExpandConfig{RangeStart: from, RangeEnd: from.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, occ, 2)
	assert.True(t, time.Date(2018, 1, 8, 7, 5, 0, 0, time.UTC).Equal(occ[0].Start), occ[0].Start)
}

func TestWriteUnknownTimezoneOmitsVTimezone(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	meta := Meta{StartDate: "20180108", TZID: "Custom/Nowhere"}
	require.NoError(t, Write(&buf, freeFixture(), meta, WriteOptions{}))
	assert.NotContains(t, buf.String(), "BEGIN:VTIMEZONE")
	assert.Contains(t, buf.String(), "DTSTART;TZID=Custom/Nowhere:20180108T070500")
}
