// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/costledger/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("ledger store closed")

// LedgerStore persists usage records durably.
//
// Implementations must make a successful Append visible to any later Load,
// including one from another process, and must never leave a partially
// written record that a later Load would return.
type LedgerStore interface {
	// Append validates and durably stores one record, returning it as stored.
	Append(ctx context.Context, r usage.Record) (usage.Record, error)

	// Load returns every record matching the filter, in storage order.
	// A ledger that does not exist yet yields an empty slice.
	Load(ctx context.Context, f usage.Filter) ([]usage.Record, error)

	// Replace atomically swaps the ledger contents for records.
	// Concurrent readers see either the old or the new contents.
	Replace(ctx context.Context, records []usage.Record) error

	// Close releases held resources.
	Close() error
}
