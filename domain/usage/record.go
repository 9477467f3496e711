// Package usage provides the ledger record type and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a record violates its invariants.
var ErrInvalidRecord = errors.New("invalid record")

// Precision is the timestamp resolution kept by the ledger.
const Precision = time.Microsecond

// Metadata carries caller-supplied context attached to a record.
// Values are kept as raw JSON so unknown keys survive a round trip untouched.
type Metadata map[string]json.RawMessage

// NewMetadata encodes arbitrary JSON-representable values into Metadata.
func NewMetadata(values map[string]any) (Metadata, error) {
	if len(values) == 0 {
		return nil, nil
	}
	md := make(Metadata, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		md[k] = raw
	}
	return md, nil
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Decode unmarshals the value stored under key into v.
// Returns false if the key is absent.
func (m Metadata) Decode(key string, v any) (bool, error) {
	raw, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Record is one metered API call (immutable value type).
// TotalTokens is derived from the token counts and never stored separately.
type Record struct {
	Timestamp        time.Time
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64 // USD
	ID               string  // optional correlation id, not enforced unique
	Metadata         Metadata
}

// NewRecord builds a validated record stamped at the given instant.
// The timestamp is normalized to UTC at ledger precision.
func NewRecord(at time.Time, model string, promptTokens, completionTokens int64, cost float64, id string, metadata Metadata) (Record, error) {
	r := Record{
		Timestamp:        Normalize(at),
		Model:            strings.TrimSpace(model),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             cost,
		ID:               id,
		Metadata:         metadata.Clone(),
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// TotalTokens returns prompt plus completion tokens.
func (r Record) TotalTokens() int64 {
	return r.PromptTokens + r.CompletionTokens
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidRecord)
	case strings.TrimSpace(r.Model) == "":
		return fmt.Errorf("%w: model is required", ErrInvalidRecord)
	case r.PromptTokens < 0:
		return fmt.Errorf("%w: prompt_tokens must be >= 0, got %d", ErrInvalidRecord, r.PromptTokens)
	case r.CompletionTokens < 0:
		return fmt.Errorf("%w: completion_tokens must be >= 0, got %d", ErrInvalidRecord, r.CompletionTokens)
	case math.IsNaN(r.Cost) || math.IsInf(r.Cost, 0) || r.Cost < 0:
		return fmt.Errorf("%w: cost must be a finite value >= 0, got %v", ErrInvalidRecord, r.Cost)
	}
	return nil
}

// Normalize converts t to UTC at ledger precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}
