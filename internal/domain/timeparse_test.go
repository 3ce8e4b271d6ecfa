package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime_DeclaredOffsets(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		hint     TimeHint
		expected time.Time
	}{
		{
			name:     "days since 1950 gregorian",
			raw:      "7305.5",
			hint:     TimeHint{Units: "days since 1950-01-01 00:00:00"},
			expected: time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "hours since epoch",
			raw:      "25.5",
			hint:     TimeHint{Units: "hours since 2000-01-01 00:00:00"},
			expected: time.Date(2000, 1, 2, 1, 30, 0, 0, time.UTC),
		},
		{
			name:     "seconds with sub-second fraction",
			raw:      "0.25",
			hint:     TimeHint{Units: "seconds since 1970-01-01"},
			expected: time.Date(1970, 1, 1, 0, 0, 0, 250_000_000, time.UTC),
		},
		{
			name:     "singular unit spelling",
			raw:      "2",
			hint:     TimeHint{Units: "day since 1990-01-01"},
			expected: time.Date(1990, 1, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "noleap calendar skips Feb 29",
			raw:      "59",
			hint:     TimeHint{Units: "days since 2000-01-01", Calendar: "noleap"},
			expected: time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "noleap full year",
			raw:      "365",
			hint:     TimeHint{Units: "days since 2000-01-01", Calendar: "365_day"},
			expected: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "360_day month",
			raw:      "30",
			hint:     TimeHint{Units: "days since 2000-01-01", Calendar: "360_day"},
			expected: time.Date(2000, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "360_day year",
			raw:      "360",
			hint:     TimeHint{Units: "days since 2000-01-01", Calendar: "360_day"},
			expected: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "negative offset before epoch",
			raw:      "-1",
			hint:     TimeHint{Units: "days since 2000-01-01"},
			expected: time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTime(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestNormalizeTime_ISOStrings(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected time.Time
	}{
		{"rfc3339", "2021-06-15T04:30:00Z", time.Date(2021, 6, 15, 4, 30, 0, 0, time.UTC)},
		{"rfc3339 sub-second", "2021-06-15T04:30:00.125Z", time.Date(2021, 6, 15, 4, 30, 0, 125_000_000, time.UTC)},
		{"no zone treated as UTC", "2021-06-15 04:30:00", time.Date(2021, 6, 15, 4, 30, 0, 0, time.UTC)},
		{"date only", "2021-06-15", time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"offset zone converted", "2021-06-15T14:30:00+10:00", time.Date(2021, 6, 15, 4, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTime(tt.raw, TimeHint{})
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestNormalizeTime_NumericBands(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected time.Time
	}{
		{"bare year", "2004", time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"decimal year", "1998.5", time.Date(1998, 7, 2, 12, 0, 0, 0, time.UTC)},
		{"months since 1900", "600", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"days since 1970", "10000", time.Date(1997, 5, 19, 0, 0, 0, 0, time.UTC)},
		{"days since 1900", "40000", epoch1900.Add(40000 * 24 * time.Hour)},
		{"posix seconds", "1700000000", time.Unix(1700000000, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTime(tt.raw, TimeHint{})
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestNormalizeTime_Unparseable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		hint TimeHint
	}{
		{"empty", "", TimeHint{}},
		{"garbage", "not-a-time", TimeHint{}},
		{"numeric below any band", "100", TimeHint{}},
		{"malformed units", "12", TimeHint{Units: "fortnights hence"}},
		{"unknown calendar", "12", TimeHint{Units: "days since 2000-01-01", Calendar: "lunar"}},
		{"bad epoch", "12", TimeHint{Units: "days since whenever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeTime(tt.raw, tt.hint)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnparseableTime)
		})
	}
}

func TestNormalizeTime_SubSecondSurvivesOffsets(t *testing.T) {
	got, err := NormalizeTime("1.5", TimeHint{Units: "seconds since 2020-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 500_000_000, got.Nanosecond())
}
