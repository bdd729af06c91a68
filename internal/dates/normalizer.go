// Package dates turns the heterogeneous date cells found in partner
// spreadsheets into comparable time values.
//
// String values are matched against a fixed, ordered list of layouts and the
// first layout that parses wins. Month-first layouts are tried before
// day-first ones, so an ambiguous "01/02/2025" is read as January 2nd. This is
// a business policy, not something inferred from the data.
package dates

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type layout struct {
	format string
	utc    bool // the layout itself pins the value to UTC
}

var layouts = []layout{
	{format: "1/2/2006 3:04:05 PM"},
	{format: "1/2/2006 3:04 PM"},
	{format: "2/1/2006 3:04:05 PM"},
	{format: "2/1/2006 3:04 PM"},

	{format: "1/2/2006 15:04:05"},
	{format: "1/2/2006 15:04"},
	{format: "2/1/2006 15:04:05"},
	{format: "2/1/2006 15:04"},

	{format: "2006-01-02 15:04:05"},
	{format: "2006-01-02 15:04"},
	{format: "2006-01-02T15:04:05"},
	{format: "2006-01-02T15:04:05Z", utc: true},

	{format: "2006-01-02"},
	{format: "1/2/2006"},
	{format: "2/1/2006"},
}

// Layouts returns the string layouts in the order they are tried
func Layouts() []string {
	out := make([]string, len(layouts))
	for i, l := range layouts {
		out[i] = l.format
	}
	return out
}

// Parse normalizes a raw cell value. It reports false for empty or
// unparseable input and never fails.
//
// When loc is non-nil, values without zone information (plain strings, Excel
// serial numbers) are read as wall clock time in loc. Values that already
// carry a zone are returned untouched.
func Parse(value any, loc *time.Location) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case float64:
		return fromSerial(v, loc)
	case float32:
		return fromSerial(float64(v), loc)
	case int:
		return fromSerial(float64(v), loc)
	case int64:
		return fromSerial(float64(v), loc)
	case []byte:
		return ParseString(string(v), loc)
	case string:
		return ParseString(v, loc)
	default:
		slog.Warn("Unsupported date value type", "type", fmt.Sprintf("%T", value))
		return time.Time{}, false
	}
}

// ParseString tries every known layout in order
func ParseString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "NAN" || s == "NAT" {
		return time.Time{}, false
	}

	for _, l := range layouts {
		var (
			t   time.Time
			err error
		)
		if loc != nil && !l.utc {
			t, err = time.ParseInLocation(l.format, s, loc)
		} else {
			t, err = time.Parse(l.format, s)
		}
		if err == nil {
			return t, true
		}
	}

	slog.Warn("Could not parse date", "value", s, "formats_tried", len(layouts))
	return time.Time{}, false
}

func fromSerial(serial float64, loc *time.Location) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
		return time.Time{}, false
	}

	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		slog.Warn("Invalid spreadsheet date serial", "value", serial, "error", err)
		return time.Time{}, false
	}
	if loc == nil {
		return t, true
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), true
}

// SameDay compares two instants at calendar date granularity, each in its own zone
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
