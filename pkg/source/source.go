// Package source provides row data to the executor.
//
// A Source answers table scans; it knows nothing about plans or SQL. The
// executor asks for a table and a column list and pulls rows one at a
// time, so a source can stream from memory, a local database file, or a
// remote server without buffering whole results.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relstack-labs/relq/pkg/plan"
)

// RowIterator streams rows from a scan. Next returns io.EOF after the
// last row. Iterators are single-use and not safe for concurrent calls.
type RowIterator interface {
	Next(ctx context.Context) (plan.Row, error)
	Close() error
}

// Source supplies rows for named tables.
type Source interface {
	// Scan starts reading the named table, returning values for exactly
	// the requested columns in the requested order.
	Scan(ctx context.Context, table string, columns []string) (RowIterator, error)
	Close() error
}

// Registry maps source names to open sources. The empty name is the
// engine default.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	def     string
}

// NewRegistry returns an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a named source. The first registered source becomes the
// default until SetDefault overrides it.
func (r *Registry) Register(name string, s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sources) == 0 {
		r.def = name
	}
	r.sources[name] = s
}

// SetDefault names the source used for unqualified scans.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[name]; !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	r.def = name
	return nil
}

// Get resolves a source by name; the empty name resolves to the default.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	if s, ok := r.sources[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

// Names lists registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered source, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, s := range r.sources {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.sources = make(map[string]Source)
	return first
}
