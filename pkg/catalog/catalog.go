// Package catalog resolves table names to their schemas.
//
// The catalog is the planner's view of the outside world: it answers
// "what columns does this table have" and nothing else. Row data comes
// from pkg/source at execution time.
package catalog

import (
	"sort"
	"sync"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// Catalog resolves a table name to its schema.
type Catalog interface {
	// Resolve returns the schema of the named table. Unknown tables fail
	// with an optimize-kind error.
	Resolve(table string) (*plan.Schema, error)
}

// Memory is an in-memory catalog backed by a map. The zero value is not
// usable; construct with NewMemory.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*plan.Schema
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*plan.Schema)}
}

// Define registers or replaces a table schema.
func (m *Memory) Define(table string, schema *plan.Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = schema
}

// Resolve implements Catalog.
func (m *Memory) Resolve(table string) (*plan.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.tables[table]; ok {
		return s, nil
	}
	return nil, query.NewError(query.KindOptimize, "table %q not found in catalog", table)
}

// Tables lists the registered table names in sorted order.
func (m *Memory) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
