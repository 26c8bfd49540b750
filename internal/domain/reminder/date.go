package reminder

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the string encoding of every calendar date in the store.
const DateLayout = "2006-01-02"

// ParseDate parses a stored calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// DateOf returns the calendar date of t (in t's location) as midnight UTC, so
// it compares directly with values returned by ParseDate.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar date of t in DateLayout.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}
