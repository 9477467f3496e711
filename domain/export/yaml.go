package export

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

// yamlEntry is a wire entry with metadata decoded into plain values so it
// renders as YAML rather than embedded JSON.
type yamlEntry struct {
	wire.Entry `yaml:",inline"`
	Metadata   map[string]any `yaml:"metadata,omitempty"`
}

// YAML writes a document with a record count and the record list.
type YAML struct{}

func (YAML) Name() string        { return "yaml" }
func (YAML) Description() string { return "YAML document with full record fidelity" }
func (YAML) Extension() string   { return "yaml" }

// Export writes records as YAML.
func (YAML) Export(w io.Writer, records []usage.Record) error {
	entries := make([]yamlEntry, 0, len(records))
	for _, r := range records {
		e := yamlEntry{Entry: wire.FromRecord(r)}
		if len(r.Metadata) > 0 {
			e.Metadata = make(map[string]any, len(r.Metadata))
			for k, raw := range r.Metadata {
				var v any
				if err := json.Unmarshal(raw, &v); err != nil {
					return fmt.Errorf("metadata %q: %w", k, err)
				}
				e.Metadata[k] = v
			}
		}
		entries = append(entries, e)
	}

	doc := struct {
		Count   int         `yaml:"count"`
		Records []yamlEntry `yaml:"records"`
	}{Count: len(entries), Records: entries}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
