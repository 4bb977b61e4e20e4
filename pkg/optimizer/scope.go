package optimizer

import (
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// scopeColumn is one name visible during lowering. Table is the alias or
// table name qualifying the column, "" for derived columns.
type scopeColumn struct {
	table string
	name  string
	typ   plan.Type
}

// scope maps column names to ordinals in the current row layout. Ordinals
// follow slice order, so concatenating scopes mirrors concatenating rows.
type scope struct {
	cols []scopeColumn
}

func scopeFromSchema(table string, s *plan.Schema) *scope {
	sc := &scope{cols: make([]scopeColumn, 0, s.Len())}
	for _, c := range s.Columns {
		sc.cols = append(sc.cols, scopeColumn{table: table, name: c.Name, typ: c.Type})
	}
	return sc
}

// concat joins two scopes for a join node; left ordinals stay, right
// ordinals shift by the left width.
func (s *scope) concat(other *scope) *scope {
	out := &scope{cols: make([]scopeColumn, 0, len(s.cols)+len(other.cols))}
	out.cols = append(out.cols, s.cols...)
	out.cols = append(out.cols, other.cols...)
	return out
}

func (s *scope) schema() plan.Schema {
	cols := make([]plan.Column, len(s.cols))
	for i, c := range s.cols {
		cols[i] = plan.Column{Name: c.name, Type: c.typ}
	}
	return plan.Schema{Columns: cols}
}

// resolve finds a column by optional qualifier and name. An unqualified
// name matching several columns is ambiguous unless the duplicates were
// merged by a USING or NATURAL join, in which case the leftmost wins.
func (s *scope) resolve(table, name string, shared map[string]bool) (int, plan.Type, error) {
	found := -1
	var typ plan.Type
	for i, c := range s.cols {
		if c.name != name {
			continue
		}
		if table != "" && c.table != table {
			continue
		}
		if found >= 0 {
			if table == "" && shared[name] {
				continue // USING column, leftmost occurrence wins
			}
			return 0, 0, query.NewError(query.KindOptimize, "column %q is ambiguous", name)
		}
		found = i
		typ = c.typ
	}
	if found < 0 {
		if table != "" {
			return 0, 0, query.NewError(query.KindOptimize, "column %q not found in %q", name, table)
		}
		return 0, 0, query.NewError(query.KindOptimize, "column %q not found", name)
	}
	return found, typ, nil
}
