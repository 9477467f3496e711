// Package retention provides pure functions for ledger cleanup.
package retention

import (
	"time"

	"github.com/artpar/costledger/domain/usage"
)

// Partition splits records at cutoff. Records stamped at or after the
// cutoff are kept; earlier ones are removed. Relative order is preserved
// in both slices.
// This is a PURE function.
func Partition(records []usage.Record, cutoff time.Time) (kept, removed []usage.Record) {
	kept = make([]usage.Record, 0, len(records))
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed
}
