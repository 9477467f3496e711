package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidFilter is returned for malformed query bounds.
var ErrInvalidFilter = errors.New("invalid filter")

// DateLayout is the calendar date format accepted for filter bounds.
const DateLayout = "2006-01-02"

// Filter selects records by model and inclusive time bounds.
// Zero values mean "unbounded".
type Filter struct {
	Model string
	Start time.Time
	End   time.Time
}

// Match reports whether r passes the filter.
// This is a PURE function.
func (f Filter) Match(r Record) bool {
	if !f.Start.IsZero() && r.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && r.Timestamp.After(f.End) {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	return true
}

// Validate rejects inverted windows.
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidFilter,
			f.Start.Format(time.RFC3339), f.End.Format(time.RFC3339))
	}
	return nil
}

// Apply returns the records that pass the filter, preserving order.
// This is a PURE function.
func Apply(records []Record, f Filter) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// ParseTime parses a filter bound given as YYYY-MM-DD or RFC 3339.
// A bare date resolves to the start of that UTC day, or to its last
// instant when endOfDay is set, so "--end 2025-01-31" includes the whole day.
func ParseTime(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if d, err := time.ParseInLocation(DateLayout, value, time.UTC); err == nil {
		if endOfDay {
			_, end := DayBounds(d)
			return end, nil
		}
		return d, nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q is not a date (YYYY-MM-DD) or RFC 3339 timestamp", ErrInvalidFilter, value)
}
