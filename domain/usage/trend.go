package usage

import (
	"encoding/json"
	"time"
)

// DailyBucket aggregates one UTC calendar day (value type).
type DailyBucket struct {
	Date   time.Time // UTC midnight
	Calls  int64
	Tokens int64
	Cost   float64
}

// Day returns the bucket date as YYYY-MM-DD.
func (b DailyBucket) Day() string {
	return b.Date.Format(DateLayout)
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (b DailyBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string  `json:"date"`
		Calls  int64   `json:"calls"`
		Tokens int64   `json:"tokens"`
		Cost   float64 `json:"cost"`
	}{b.Day(), b.Calls, b.Tokens, b.Cost})
}

// DailyTrend buckets records by the UTC date of their timestamp.
// The result has one bucket for every date from windowStart to windowEnd
// inclusive, sorted ascending, with zero values for idle days.
// Records dated outside the window are ignored; input order does not matter.
// This is a PURE function.
func DailyTrend(records []Record, windowStart, windowEnd time.Time) []DailyBucket {
	first := DayStart(windowStart)
	last := DayStart(windowEnd)
	if last.Before(first) {
		return []DailyBucket{}
	}

	days := int(last.Sub(first).Hours()/24) + 1
	buckets := make([]DailyBucket, days)
	for i := range buckets {
		buckets[i].Date = first.AddDate(0, 0, i)
	}

	for _, r := range records {
		day := DayStart(r.Timestamp)
		if day.Before(first) || day.After(last) {
			continue
		}
		b := &buckets[int(day.Sub(first).Hours()/24)]
		b.Calls++
		b.Tokens += r.TotalTokens()
		b.Cost += r.Cost
	}

	return buckets
}
