package model

import "time"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Fixed width keeps lexicographic order equal to chronological order, so
// the store can compare and sort timestamps as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Clock supplies wall-clock time to components that stamp rows.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
