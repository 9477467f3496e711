// Package threshold provides pure functions for spend limit checks.
// All functions are deterministic with no side effects.
package threshold

import (
	"math"

	"github.com/artpar/costledger/domain/usage"
)

// Window names the period a limit applies to. The check itself is
// window-agnostic; the caller supplies a summary already scoped to it.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// Level indicates how close to or over the limit spend is.
type Level int

const (
	LevelOK          Level = iota // < 80%
	LevelApproaching              // >= 80%
	LevelCritical                 // >= 95%
	LevelBreached                 // cost >= limit
)

// Warning thresholds as fractions of the limit.
const (
	approachingPct = 80.0
	criticalPct    = 95.0
)

// Result is the outcome of a limit check (value type).
// Exactly one of Remaining and Overage is meaningful, chosen by Breached.
type Result struct {
	Window      Window  `json:"window,omitempty"`
	Limit       float64 `json:"limit"`
	Current     float64 `json:"current"`
	Breached    bool    `json:"breached"`
	Remaining   float64 `json:"remaining"`
	Overage     float64 `json:"overage"`
	PercentUsed float64 `json:"percent_used"`
	Level       Level   `json:"level"`
}

// Check compares a summary's total cost against limit.
// Spend at or above the limit is a breach.
// This is a PURE function - no side effects.
func Check(limit float64, summary usage.Summary) Result {
	current := summary.Cost
	result := Result{
		Limit:   limit,
		Current: current,
	}

	if limit > 0 {
		result.PercentUsed = current / limit * 100
	} else if current > 0 {
		result.PercentUsed = math.Inf(1)
	}

	if current >= limit {
		result.Breached = true
		result.Overage = current - limit
		result.Level = LevelBreached
		return result
	}

	result.Remaining = limit - current
	switch {
	case result.PercentUsed >= criticalPct:
		result.Level = LevelCritical
	case result.PercentUsed >= approachingPct:
		result.Level = LevelApproaching
	default:
		result.Level = LevelOK
	}
	return result
}

// CheckWindow is Check with the result tagged by window.
// This is a PURE function.
func CheckWindow(window Window, limit float64, summary usage.Summary) Result {
	result := Check(limit, summary)
	result.Window = window
	return result
}

// String returns the string representation of a level.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelApproaching:
		return "approaching"
	case LevelCritical:
		return "critical"
	case LevelBreached:
		return "breached"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
