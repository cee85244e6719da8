package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneRulesEurope(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	rules := zoneRules(loc, 2018)
	require.Len(t, rules, 2)

	assert.True(t, rules[0].daylight)
	assert.Equal(t, "CEST", rules[0].name)
	assert.Equal(t, "+0100", formatOffset(rules[0].offsetFrom))
	assert.Equal(t, "+0200", formatOffset(rules[0].offsetTo))
	assert.Equal(t, "20180325T020000", rules[0].onset.Format("20060102T150405"))
	assert.Equal(t, "FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU", rules[0].rrule)

	assert.False(t, rules[1].daylight)
	assert.Equal(t, "CET", rules[1].name)
	assert.Equal(t, "20181028T030000", rules[1].onset.Format("20060102T150405"))
	assert.Equal(t, "FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU", rules[1].rrule)
}

func TestZoneRulesFixedOffset(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	rules := zoneRules(loc, 2018)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].daylight)
	assert.Equal(t, "IST", rules[0].name)
	assert.Equal(t, "+0530", formatOffset(rules[0].offsetFrom))
	assert.Equal(t, "+0530", formatOffset(rules[0].offsetTo))
	assert.Empty(t, rules[0].rrule)
}

func TestFormatDateTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "20180108T070500", formatDateTime("20180108", rng(70500, 80000).Start, false))
	assert.Equal(t, "20180109T000000Z", formatDateTime("20180108", rng(230000, 240000).End, true))
	assert.Equal(t, "20181231T235500", formatDateTime("20181231", rng(230000, 235500).End, false))
	assert.Equal(t, "20190101T000000", formatDateTime("20181231", rng(230000, 240000).End, false))
	assert.Equal(t, "-0330", formatOffset(-(3*3600 + 30*60)))
}
