// Package jsonl provides the default file-backed ledger store.
// The ledger is an append-only file holding one JSON record per line.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
	"github.com/artpar/costledger/ports"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755

	// ctxCheckEvery is how many lines a scan reads between context checks.
	ctxCheckEvery = 1024
)

// Store implements ports.LedgerStore over a JSON Lines file.
//
// Append relies on O_APPEND so that each record lands as one write; a
// reader in another process never observes half a line from a completed
// append. The mutex only orders writers inside this process.
type Store struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a store for the ledger file at path. Nothing is touched on
// disk until the first Append or Replace.
func New(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "ledger.jsonl").Logger(),
	}
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

// Append validates r and writes it as a single line, then fsyncs.
func (s *Store) Append(ctx context.Context, r usage.Record) (usage.Record, error) {
	if err := ctx.Err(); err != nil {
		return usage.Record{}, err
	}
	if err := r.Validate(); err != nil {
		return usage.Record{}, err
	}

	line, err := wire.Marshal(r)
	if err != nil {
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return usage.Record{}, ports.ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return usage.Record{}, fmt.Errorf("append record: create directory: %w", err)
	}

	// A crash mid-write can leave the file without a trailing newline.
	// Start on a fresh line so the partial one stays isolated.
	terminated, err := endsWithNewline(s.path)
	if err != nil {
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}

	buf := make([]byte, 0, len(line)+2)
	if !terminated {
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return usage.Record{}, fmt.Errorf("append record: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}

	return r, nil
}

// Load returns the records matching f in file order.
func (s *Store) Load(ctx context.Context, f usage.Filter) ([]usage.Record, error) {
	records, _, err := s.Scan(ctx, f)
	return records, err
}

// Scan is Load that also reports how many lines were skipped as malformed.
func (s *Store) Scan(ctx context.Context, f usage.Filter) ([]usage.Record, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []usage.Record{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load ledger: %w", err)
	}
	defer file.Close()

	var (
		records = make([]usage.Record, 0)
		reader  = bufio.NewReaderSize(file, 64*1024)
		lineNo  int
		skipped int
	)

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, skipped, fmt.Errorf("load ledger: %w", readErr)
		}

		if len(line) > 0 {
			lineNo++
			if lineNo%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, skipped, err
				}
			}

			if line = bytes.TrimSpace(line); len(line) > 0 {
				r, err := wire.Unmarshal(line)
				if err != nil {
					skipped++
					s.logger.Debug().Err(err).Int("line", lineNo).Msg("skipping malformed ledger line")
				} else if f.Match(r) {
					records = append(records, r)
				}
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	if skipped > 0 {
		s.logger.Debug().
			Str("path", s.path).
			Int("skipped", skipped).
			Int("loaded", len(records)).
			Msg("ledger contained malformed lines")
	}

	return records, skipped, nil
}

// Replace atomically rewrites the ledger with records.
func (s *Store) Replace(ctx context.Context, records []usage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, r := range records {
		line, err := wire.Marshal(r)
		if err != nil {
			return fmt.Errorf("replace ledger: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.ErrStoreClosed
	}

	perm := os.FileMode(filePerm)
	if info, err := os.Stat(s.path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := atomicWriteFile(s.path, buf.Bytes(), perm); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	s.logger.Debug().Str("path", s.path).Int("records", len(records)).Msg("ledger replaced")
	return nil
}

// Close marks the store closed. The file is opened per operation, so there
// is nothing else to release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// endsWithNewline reports whether the file is absent, empty, or ends in '\n'.
func endsWithNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*Store)(nil)
