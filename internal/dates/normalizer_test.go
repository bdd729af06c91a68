package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseString_KnownFormats(t *testing.T) {
	tests := []struct {
		in                   string
		hour, minute, second int
	}{
		{"6/17/2025 1:31:07 PM", 13, 31, 7},
		{"6/17/2025 1:31 PM", 13, 31, 0},
		{"17/06/2025 1:31:07 PM", 13, 31, 7},
		{"6/17/2025 13:31:07", 13, 31, 7},
		{"6/17/2025 13:31", 13, 31, 0},
		{"17/06/2025 13:31:07", 13, 31, 7},
		{"17/06/2025 13:31", 13, 31, 0},
		{"2025-06-17 13:31:07", 13, 31, 7},
		{"2025-06-17 13:31", 13, 31, 0},
		{"2025-06-17T13:31:07", 13, 31, 7},
		{"2025-06-17T13:31:07Z", 13, 31, 7},
		{"2025-06-17", 0, 0, 0},
		{"6/17/2025", 0, 0, 0},
		{"17/06/2025", 0, 0, 0},
		{"  06/17/2025 01:31:07 pm ", 13, 31, 7},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseString(tt.in, nil)
			require.True(t, ok)
			assert.Equal(t, 2025, got.Year())
			assert.Equal(t, time.June, got.Month())
			assert.Equal(t, 17, got.Day())
			assert.Equal(t, tt.hour, got.Hour())
			assert.Equal(t, tt.minute, got.Minute())
			assert.Equal(t, tt.second, got.Second())
		})
	}
}

func TestParseString_MonthFirstWinsOnAmbiguity(t *testing.T) {
	got, ok := ParseString("01/02/2025", nil)
	require.True(t, ok)
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 2, got.Day())

	got, ok = ParseString("01/02/2025 10:00:00 AM", nil)
	require.True(t, ok)
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 2, got.Day())
}

func TestParseString_Unparseable(t *testing.T) {
	for _, in := range []string{"", "   ", "nan", "not a date", "2025/17/45", "32/13/2025"} {
		_, ok := ParseString(in, nil)
		assert.False(t, ok, in)
	}
}

func TestParse_AttachesZoneToNaiveValues(t *testing.T) {
	loc := LocationFor("CR")

	got, ok := Parse("6/17/2025 1:31:07 PM", loc)
	require.True(t, ok)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 13, got.Hour(), "wall clock must be kept, not converted")

	got, ok = Parse("2025-06-17T13:31:07Z", loc)
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location(), "explicit UTC must not be replaced")

	aware := time.Date(2025, 6, 17, 8, 0, 0, 0, time.UTC)
	got, ok = Parse(aware, loc)
	require.True(t, ok)
	assert.True(t, aware.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}

func TestParse_SpreadsheetSerial(t *testing.T) {
	// 45825 is 2025-06-17 in the 1900 date system; .5 is noon
	got, ok := Parse(45825.5, nil)
	require.True(t, ok)
	assert.Equal(t, 2025, got.Year())
	assert.Equal(t, time.June, got.Month())
	assert.Equal(t, 17, got.Day())
	assert.Equal(t, 12, got.Hour())

	loc := LocationFor("PA")
	got, ok = Parse(45825, loc)
	require.True(t, ok)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 17, got.Day())
}

func TestParse_NullShapes(t *testing.T) {
	var nilTime *time.Time
	for _, v := range []any{nil, nilTime, time.Time{}, 0.0, -3.0, struct{}{}} {
		_, ok := Parse(v, nil)
		assert.False(t, ok, "%#v", v)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2025, 1, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2025, 1, 10, 23, 59, 0, 0, time.UTC)
	c := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestLocationFor(t *testing.T) {
	assert.Equal(t, "America/Costa_Rica", LocationFor("").String())
	assert.Equal(t, "America/Panama", LocationFor(" pa ").String())
	assert.Equal(t, "America/Costa_Rica", LocationFor("ZZ").String())

	c, ok := CountryForZone("America/Bogota")
	require.True(t, ok)
	assert.Equal(t, "CO", c.Code)

	list := Countries()
	require.Len(t, list, 15)
	assert.Equal(t, "AR", list[0].Code)
}
