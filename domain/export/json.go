package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

// JSON writes an indented array of wire objects, metadata included.
type JSON struct{}

func (JSON) Name() string        { return "json" }
func (JSON) Description() string { return "Indented JSON array with full record fidelity" }
func (JSON) Extension() string   { return "json" }

// Export writes records as a JSON array. An empty set is "[]".
func (JSON) Export(w io.Writer, records []usage.Record) error {
	entries := make([]wire.Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, wire.FromRecord(r))
	}

	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// ParseJSON reads a document written by the json exporter.
// Every entry must be a valid record.
func ParseJSON(r io.Reader) ([]usage.Record, error) {
	var entries []wire.Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	records := make([]usage.Record, 0, len(entries))
	for i, e := range entries {
		rec, err := e.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// JSONL writes the ledger line format, usable as a ledger backup.
type JSONL struct{}

func (JSONL) Name() string        { return "jsonl" }
func (JSONL) Description() string { return "One JSON object per line (ledger format)" }
func (JSONL) Extension() string   { return "jsonl" }

// Export writes one line per record.
func (JSONL) Export(w io.Writer, records []usage.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		line, err := wire.Marshal(r)
		if err != nil {
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
