package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// Memory is an in-memory source for fixtures and tests. It doubles as a
// catalog.Catalog so one object can back both planning and execution.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	schema plan.Schema
	rows   []plan.Row
}

// NewMemory creates an empty memory source.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

// Define registers a table with its schema and rows. Rows are stored as
// given; callers must not mutate them afterwards.
func (m *Memory) Define(table string, schema plan.Schema, rows []plan.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = &memTable{schema: schema, rows: rows}
}

// Resolve implements catalog.Catalog.
func (m *Memory) Resolve(table string) (*plan.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tables[table]; ok {
		s := t.schema
		return &s, nil
	}
	return nil, query.NewError(query.KindOptimize, "table %q not found", table)
}

// Scan implements Source.
func (m *Memory) Scan(ctx context.Context, table string, columns []string) (RowIterator, error) {
	m.mu.RLock()
	t, ok := m.tables[table]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %q not found", table)
	}

	ordinals := make([]int, len(columns))
	for i, name := range columns {
		ord := t.schema.Ordinal(name)
		if ord < 0 {
			return nil, fmt.Errorf("table %q has no column %q", table, name)
		}
		ordinals[i] = ord
	}
	return &memIterator{rows: t.rows, ordinals: ordinals}, nil
}

// Close implements Source.
func (m *Memory) Close() error { return nil }

type memIterator struct {
	rows     []plan.Row
	ordinals []int
	pos      int
}

func (it *memIterator) Next(ctx context.Context) (plan.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	src := it.rows[it.pos]
	it.pos++
	out := make(plan.Row, len(it.ordinals))
	for i, ord := range it.ordinals {
		out[i] = src[ord]
	}
	return out, nil
}

func (it *memIterator) Close() error {
	it.rows = nil
	return nil
}
