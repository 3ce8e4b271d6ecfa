package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeHint carries the optional temporal declarations a dataset may supply
// for a variable: a CF-style "<unit> since <epoch>" string and a named
// calendar. Either may be empty.
type TimeHint struct {
	Units    string // e.g. "days since 1950-01-01 00:00:00"
	Calendar string // e.g. "standard", "noleap", "360_day"
}

// ErrUnparseableTime marks a temporal value no strategy could interpret.
// Rows carrying it are skipped; the file continues.
var ErrUnparseableTime = fmt.Errorf("unparseable time value")

// sinceRe matches CF-style offset declarations: "<unit>(s) since <epoch>".
var sinceRe = regexp.MustCompile(`(?i)^\s*([a-z]+?)s?\s+since\s+(.+?)\s*$`)

// isoLayouts are tried in order for string values. Layouts without an
// explicit zone are interpreted as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102T150405Z",
	"20060102150405",
}

// NormalizeTime converts one raw temporal value to a UTC instant.
//
// Strategies, tried in order:
//
//  1. Calendar-aware numeric offset, when the hint declares
//     "<unit> since <epoch>". Units: seconds, minutes, hours, days,
//     months, years. Calendars: standard/gregorian/proleptic_gregorian/
//     julian (Go time arithmetic), noleap/365_day, all_leap/366_day,
//     and 360_day (fixed-length month arithmetic).
//  2. ISO-8601-like string parsing.
//  3. Heuristic numeric bands by magnitude (see numericBands).
//
// Sub-second precision present in the input survives conversion.
func NormalizeTime(raw string, hint TimeHint) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparseableTime)
	}

	if hint.Units != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return offsetTime(v, hint)
		}
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return NormalizeNumericTime(v, TimeHint{})
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, raw)
}

// NormalizeNumericTime converts an already-numeric temporal value, as found
// on a grid file's time axis. With a units hint it applies the declared
// offset; otherwise it falls back to the magnitude bands.
func NormalizeNumericTime(value float64, hint TimeHint) (time.Time, error) {
	if hint.Units != "" {
		return offsetTime(value, hint)
	}
	return numericBands(value)
}

// offsetTime applies a "<unit> since <epoch>" declaration to a numeric value.
func offsetTime(value float64, hint TimeHint) (time.Time, error) {
	m := sinceRe.FindStringSubmatch(hint.Units)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: malformed units %q", ErrUnparseableTime, hint.Units)
	}
	unit := strings.ToLower(m[1])
	epoch, err := parseEpoch(m[2])
	if err != nil {
		return time.Time{}, err
	}

	cal := strings.ToLower(strings.TrimSpace(hint.Calendar))
	switch cal {
	case "", "standard", "gregorian", "proleptic_gregorian", "julian":
		return standardOffset(epoch, value, unit)
	case "noleap", "365_day":
		return fixedCalendarOffset(epoch, value, unit, days365)
	case "all_leap", "366_day":
		return fixedCalendarOffset(epoch, value, unit, days366)
	case "360_day":
		return fixedCalendarOffset(epoch, value, unit, days360)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown calendar %q", ErrUnparseableTime, hint.Calendar)
	}
}

func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: epoch %q", ErrUnparseableTime, s)
}

// standardOffset adds value units to the epoch using Go time arithmetic.
// Fractional parts are preserved down to nanoseconds.
func standardOffset(epoch time.Time, value float64, unit string) (time.Time, error) {
	switch unit {
	case "second", "sec":
		return addSeconds(epoch, value), nil
	case "minute", "min":
		return addSeconds(epoch, value*60), nil
	case "hour", "hr":
		return addSeconds(epoch, value*3600), nil
	case "day":
		return addSeconds(epoch, value*86400), nil
	case "month":
		whole := math.Trunc(value)
		frac := value - whole
		t := epoch.AddDate(0, int(whole), 0)
		// Fractional months use the mean Gregorian month length.
		return addSeconds(t, frac*30.436875*86400), nil
	case "year":
		whole := math.Trunc(value)
		frac := value - whole
		t := epoch.AddDate(int(whole), 0, 0)
		return addSeconds(t, frac*365.2425*86400), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrUnparseableTime, unit)
	}
}

func addSeconds(t time.Time, secs float64) time.Time {
	return t.Add(time.Duration(secs * float64(time.Second)))
}

// Fixed calendars: every year has the same length, so offsets are pure
// day arithmetic in a synthetic (year, ordinal-day) space.
type fixedCalendar struct {
	yearDays int
	monthLen [12]int
}

var (
	days365 = fixedCalendar{365, [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}}
	days366 = fixedCalendar{366, [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}}
	days360 = fixedCalendar{360, [12]int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30}}
)

// ordinal returns the zero-based day-of-year for a month/day pair, clamping
// dates the calendar cannot represent (e.g. Feb 29 in noleap, day 31 in
// 360_day) to the last representable day of the month.
func (c fixedCalendar) ordinal(month time.Month, day int) int {
	ord := 0
	for i := 0; i < int(month)-1; i++ {
		ord += c.monthLen[i]
	}
	if day > c.monthLen[month-1] {
		day = c.monthLen[month-1]
	}
	return ord + day - 1
}

// date converts a zero-based day-of-year back to month and day.
func (c fixedCalendar) date(ord int) (time.Month, int) {
	for i, n := range c.monthLen {
		if ord < n {
			return time.Month(i + 1), ord + 1
		}
		ord -= n
	}
	return time.December, c.monthLen[11]
}

// fixedCalendarOffset applies an offset under a fixed-length-year calendar.
// The result is expressed as a proleptic Gregorian UTC instant with the
// same nominal year/month/day, which is the conventional interpretation
// when loading model output into wall-clock storage.
func fixedCalendarOffset(epoch time.Time, value float64, unit string, cal fixedCalendar) (time.Time, error) {
	var days float64
	switch unit {
	case "second", "sec":
		days = value / 86400
	case "minute", "min":
		days = value * 60 / 86400
	case "hour", "hr":
		days = value * 3600 / 86400
	case "day":
		days = value
	case "month":
		// Only meaningful for 360_day; approximated elsewhere by year/12.
		days = value * float64(cal.yearDays) / 12
	case "year":
		days = value * float64(cal.yearDays)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrUnparseableTime, unit)
	}

	whole := int(math.Floor(days))
	fracSecs := (days - math.Floor(days)) * 86400

	epochSecs := epoch.Hour()*3600 + epoch.Minute()*60 + epoch.Second()
	total := epoch.Year()*cal.yearDays + cal.ordinal(epoch.Month(), epoch.Day()) + whole

	year := total / cal.yearDays
	ord := total % cal.yearDays
	if ord < 0 {
		ord += cal.yearDays
		year--
	}
	month, day := cal.date(ord)

	t := time.Date(year, month, day, 0, 0, 0, epoch.Nanosecond(), time.UTC)
	return addSeconds(t, float64(epochSecs)+fracSecs), nil
}

// Numeric band boundaries for undeclared values. The bands are heuristic
// and assumed disjoint in practice; a value plausible under two
// interpretations resolves by first-match order without cross-validation.
const (
	bandYearMin = 1900
	bandYearMax = 2100
	// Month counts since 1900-01: 240 (=1920) up to the year band.
	bandMonthsMin = 240
	// Day counts below the 1900→1970 span read as days since 1970;
	// larger counts read as days since 1900. 25569 days is exactly
	// 1970-01-01 in the 1900 epoch.
	bandDays1970Max = 25569
	// Day counts above this (year 2200 in the 1900 epoch) are implausible.
	bandDays1900Max = 109572
	// Anything at least this large is treated as POSIX seconds.
	bandPosixMin = 1e8
)

var (
	epoch1900 = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	epoch1970 = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// numericBands interprets a bare number with no declaration by magnitude:
// decimal/bare year, months since 1900, days since 1970, days since 1900,
// then POSIX seconds.
func numericBands(v float64) (time.Time, error) {
	switch {
	case v >= bandYearMin && v <= bandYearMax:
		if v == math.Trunc(v) {
			return time.Date(int(v), time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
		return decimalYear(v), nil
	case v >= bandMonthsMin && v < bandYearMin:
		whole := math.Trunc(v)
		t := epoch1900.AddDate(0, int(whole), 0)
		return addSeconds(t, (v-whole)*30.436875*86400), nil
	case v > bandYearMax && v <= bandDays1970Max:
		return addSeconds(epoch1970, v*86400), nil
	case v > bandDays1970Max && v <= bandDays1900Max:
		return addSeconds(epoch1900, v*86400), nil
	case v >= bandPosixMin:
		secs := math.Trunc(v)
		return time.Unix(int64(secs), int64((v-secs)*1e9)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: numeric value %g fits no band", ErrUnparseableTime, v)
	}
}

// decimalYear converts e.g. 1998.5 to the instant that fraction of the way
// through 1998, honoring the actual year length.
func decimalYear(v float64) time.Time {
	year := int(math.Floor(v))
	frac := v - math.Floor(v)
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration(frac * float64(end.Sub(start))))
}
