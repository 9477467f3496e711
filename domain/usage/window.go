package usage

import "time"

// DayStart returns UTC midnight of t's UTC date.
// This is a PURE function.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the first and last instant of t's UTC day.
// This is a PURE function.
func DayBounds(t time.Time) (start, end time.Time) {
	start = DayStart(t)
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return
}

// WeekBounds returns the UTC week containing t, starting Monday.
// This is a PURE function.
func WeekBounds(t time.Time) (start, end time.Time) {
	day := DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start = day.AddDate(0, 0, -offset)
	end = start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return
}

// MonthBounds returns the start and end of t's UTC calendar month.
// This is a PURE function.
func MonthBounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}

// LastNDays returns a window covering exactly n UTC days ending with now's day.
// n < 1 is treated as 1.
// This is a PURE function.
func LastNDays(now time.Time, n int) (start, end time.Time) {
	if n < 1 {
		n = 1
	}
	_, end = DayBounds(now)
	start = DayStart(now).AddDate(0, 0, -(n - 1))
	return
}
