package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
	"github.com/artpar/costledger/ports"
)

// LedgerStore implements ports.LedgerStore using SQLite.
// Storage order is insertion order (seq).
type LedgerStore struct {
	db     *DB
	logger zerolog.Logger

	mu     sync.Mutex // serializes writers in this process
	closed bool
}

// NewLedgerStore wraps an open, migrated database.
func NewLedgerStore(db *DB, logger zerolog.Logger) *LedgerStore {
	return &LedgerStore{
		db:     db,
		logger: logger.With().Str("component", "ledger.sqlite").Logger(),
	}
}

// OpenLedgerStore opens the database at path, migrates it and returns a
// store that owns the connection.
func OpenLedgerStore(ctx context.Context, path string, logger zerolog.Logger) (*LedgerStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewLedgerStore(db, logger), nil
}

// Append stores a record.
func (s *LedgerStore) Append(ctx context.Context, r usage.Record) (usage.Record, error) {
	if err := r.Validate(); err != nil {
		return usage.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return usage.Record{}, ports.ErrStoreClosed
	}

	if err := insertRecord(ctx, s.db, r); err != nil {
		return usage.Record{}, fmt.Errorf("append record: %w", err)
	}
	return r, nil
}

// Load returns matching records in insertion order.
func (s *LedgerStore) Load(ctx context.Context, f usage.Filter) ([]usage.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ts, model, prompt_tokens, completion_tokens, cost, record_id, metadata FROM ledger_records`
	var (
		where []string
		args  []any
	)
	if !f.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, wire.FormatTimestamp(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, wire.FormatTimestamp(f.End))
	}
	if f.Model != "" {
		where = append(where, "model = ?")
		args = append(args, f.Model)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	records := make([]usage.Record, 0)
	skipped := 0
	for rows.Next() {
		var (
			ts, model          string
			prompt, completion int64
			cost               float64
			id, metadata       sql.NullString
		)
		if err := rows.Scan(&ts, &model, &prompt, &completion, &cost, &id, &metadata); err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}

		r, err := decodeRow(ts, model, prompt, completion, cost, id, metadata)
		if err != nil {
			skipped++
			s.logger.Debug().Err(err).Str("ts", ts).Msg("skipping malformed ledger row")
			continue
		}
		// Bounds were compared at microsecond precision in SQL.
		if f.Match(r) {
			records = append(records, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	if skipped > 0 {
		s.logger.Debug().Int("skipped", skipped).Msg("ledger contained malformed rows")
	}
	return records, nil
}

// Replace swaps the table contents in one transaction.
func (s *LedgerStore) Replace(ctx context.Context, records []usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_records"); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	for _, r := range records {
		if err := insertRecord(ctx, tx, r); err != nil {
			return fmt.Errorf("replace ledger: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	s.logger.Debug().Int("records", len(records)).Msg("ledger replaced")
	return nil
}

// Close closes the underlying database.
func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, r usage.Record) error {
	var id, metadata sql.NullString
	if r.ID != "" {
		id = sql.NullString{String: r.ID, Valid: true}
	}
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_records (ts, model, prompt_tokens, completion_tokens, cost, record_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, wire.FormatTimestamp(r.Timestamp), r.Model, r.PromptTokens, r.CompletionTokens, r.Cost, id, metadata)
	return err
}

func decodeRow(ts, model string, prompt, completion int64, cost float64, id, metadata sql.NullString) (usage.Record, error) {
	at, err := wire.ParseTimestamp(ts)
	if err != nil {
		return usage.Record{}, err
	}
	var md usage.Metadata
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
			return usage.Record{}, fmt.Errorf("%w: metadata: %v", wire.ErrMalformed, err)
		}
	}
	return usage.NewRecord(at, model, prompt, completion, cost, id.String, md)
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*LedgerStore)(nil)
