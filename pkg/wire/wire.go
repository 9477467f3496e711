// Package wire implements the ledger line format shared by the jsonl store
// and the json/jsonl exporters.
//
// Each record is one JSON object:
//
//	{"ts":"2025-01-02T03:04:05.123456Z","model":"m","prompt_tokens":1,
//	 "completion_tokens":2,"total_tokens":3,"cost":0.001,"id":"gen-1","metadata":{}}
//
// total_tokens is written for readers of the raw file and ignored on decode.
package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/artpar/costledger/domain/usage"
)

// TimestampLayout is the fixed-width UTC layout written to the ledger.
// Fixed width keeps lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// ErrMalformed is returned for lines that cannot be decoded into a record.
var ErrMalformed = errors.New("malformed ledger entry")

// readLayouts are tried in order after RFC 3339. Timestamps without a zone
// are taken as UTC.
var readLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// Entry is the on-disk shape of a record.
type Entry struct {
	Timestamp        string         `json:"ts" yaml:"ts"`
	Model            string         `json:"model" yaml:"model"`
	PromptTokens     int64          `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64          `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int64          `json:"total_tokens" yaml:"total_tokens"`
	Cost             float64        `json:"cost" yaml:"cost"`
	ID               string         `json:"id,omitempty" yaml:"id,omitempty"`
	Metadata         usage.Metadata `json:"metadata,omitempty" yaml:"-"`
}

// FromRecord converts a record to its wire entry.
func FromRecord(r usage.Record) Entry {
	return Entry{
		Timestamp:        FormatTimestamp(r.Timestamp),
		Model:            r.Model,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens(),
		Cost:             r.Cost,
		ID:               r.ID,
		Metadata:         r.Metadata,
	}
}

// ToRecord converts a wire entry back to a validated record.
func (e Entry) ToRecord() (usage.Record, error) {
	ts, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return usage.Record{}, err
	}
	var md usage.Metadata
	if len(e.Metadata) > 0 {
		md = e.Metadata
	}
	return usage.NewRecord(ts, e.Model, e.PromptTokens, e.CompletionTokens, e.Cost, e.ID, md)
}

// FormatTimestamp renders t in the ledger layout.
func FormatTimestamp(t time.Time) string {
	return usage.Normalize(t).Format(TimestampLayout)
}

// ParseTimestamp accepts RFC 3339 (any offset) or a zone-less timestamp
// and returns it in UTC at ledger precision.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing ts", ErrMalformed)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return usage.Normalize(t), nil
	}
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return usage.Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised ts %q", ErrMalformed, s)
}

// Marshal encodes r as a single line without the trailing newline.
func Marshal(r usage.Record) ([]byte, error) {
	b, err := json.Marshal(FromRecord(r))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

// Unmarshal decodes one line. Lines that are not valid JSON, lack required
// fields or violate record invariants return an error wrapping ErrMalformed
// or usage.ErrInvalidRecord.
func Unmarshal(line []byte) (usage.Record, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return usage.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return e.ToRecord()
}
