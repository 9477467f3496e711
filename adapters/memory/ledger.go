// Package memory provides in-memory implementations of storage ports.
// Useful for testing and for embedding the ledger without a file.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

// LedgerStore is an in-memory implementation of ports.LedgerStore.
type LedgerStore struct {
	mu      sync.RWMutex
	records []usage.Record
	closed  bool
}

// NewLedgerStore creates a new in-memory ledger, optionally seeded.
func NewLedgerStore(seed ...usage.Record) *LedgerStore {
	s := &LedgerStore{records: make([]usage.Record, 0, len(seed))}
	for _, r := range seed {
		s.records = append(s.records, clone(r))
	}
	return s
}

// Append stores a record.
func (s *LedgerStore) Append(ctx context.Context, r usage.Record) (usage.Record, error) {
	if err := ctx.Err(); err != nil {
		return usage.Record{}, err
	}
	if err := r.Validate(); err != nil {
		return usage.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return usage.Record{}, ports.ErrStoreClosed
	}

	s.records = append(s.records, clone(r))
	return r, nil
}

// Load returns matching records in insertion order.
func (s *LedgerStore) Load(ctx context.Context, f usage.Filter) ([]usage.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]usage.Record, 0)
	for _, r := range s.records {
		if f.Match(r) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// Replace swaps the contents for records.
func (s *LedgerStore) Replace(ctx context.Context, records []usage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := make([]usage.Record, 0, len(records))
	for _, r := range records {
		next = append(next, clone(r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.ErrStoreClosed
	}
	s.records = next
	return nil
}

// Close marks the store closed.
func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored records.
func (s *LedgerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(r usage.Record) usage.Record {
	r.Metadata = r.Metadata.Clone()
	return r
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*LedgerStore)(nil)
