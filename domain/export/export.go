// Package export renders ledger records to external formats.
// Exporters are pluggable; the built-in ones register themselves in
// DefaultRegistry.
package export

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/costledger/domain/usage"
)

// Exporter writes a record set in one format.
type Exporter interface {
	// Name returns the format name (e.g., "csv", "json").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Extension returns the conventional file extension, without the dot.
	Extension() string

	// Export writes records to w in input order.
	Export(w io.Writer, records []usage.Record) error
}

// Registry manages registered exporters.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{exporters: make(map[string]Exporter)}
}

// Register adds an exporter to the registry.
func (r *Registry) Register(e Exporter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exporters[e.Name()]; exists {
		return fmt.Errorf("exporter %q already registered", e.Name())
	}
	r.exporters[e.Name()] = e
	return nil
}

// Get returns an exporter by name.
func (r *Registry) Get(name string) (Exporter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.exporters[name]
	return e, ok
}

// Lookup is Get with an error naming the known formats.
func (r *Registry) Lookup(name string) (Exporter, error) {
	if e, ok := r.Get(name); ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown export format %q (available: %v)", name, r.List())
}

// List returns all registered format names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in exporters.
var DefaultRegistry = NewRegistry()

// Register adds an exporter to the default registry.
func Register(e Exporter) error {
	return DefaultRegistry.Register(e)
}

// Get returns an exporter from the default registry.
func Get(name string) (Exporter, bool) {
	return DefaultRegistry.Get(name)
}

// Lookup resolves a format in the default registry.
func Lookup(name string) (Exporter, error) {
	return DefaultRegistry.Lookup(name)
}

// List returns the formats in the default registry.
func List() []string {
	return DefaultRegistry.List()
}

func init() {
	for _, e := range []Exporter{CSV{}, JSON{}, JSONL{}, YAML{}} {
		if err := Register(e); err != nil {
			panic(err)
		}
	}
}
