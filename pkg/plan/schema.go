// Package plan defines the relational plan handed from an optimizer to the
// executor.
//
// A Plan is an arena of nodes referenced by index. Optimizers are free to
// share subtrees between parents (common subexpressions), which is why nodes
// hold NodeIDs rather than owning pointers; the arena keeps the graph
// acyclic by construction checks rather than ownership discipline.
package plan

import (
	"fmt"
	"strings"
)

// Type is the declared type of a column or scalar expression.
type Type int

// Column types.
const (
	TypeAny Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
)

// String returns the lowercase type name.
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	default:
		return "any"
	}
}

// Value is a runtime column value: nil, bool, int64, float64 or string.
// Sources converting external data are responsible for producing one of
// these representations.
type Value = any

// Row is an ordered sequence of column values matching a node's schema.
type Row = []Value

// Column describes one output column of a plan node.
type Column struct {
	Name string
	Type Type
}

// Schema is the ordered column layout of a node's output rows.
type Schema struct {
	Columns []Column
}

// NewSchema builds a schema from columns.
func NewSchema(cols ...Column) Schema {
	return Schema{Columns: cols}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Ordinal returns the position of the named column, or -1.
func (s Schema) Ordinal(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Concat appends another schema's columns, as a join output layout.
func (s Schema) Concat(other Schema) Schema {
	cols := make([]Column, 0, len(s.Columns)+len(other.Columns))
	cols = append(cols, s.Columns...)
	cols = append(cols, other.Columns...)
	return Schema{Columns: cols}
}

// Equal reports whether two schemas have identical layout.
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range s.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	return true
}

// String renders the schema as "(a int, b string)".
func (s Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", c.Name, c.Type)
	}
	b.WriteByte(')')
	return b.String()
}
