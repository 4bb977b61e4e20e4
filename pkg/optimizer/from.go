package optimizer

import (
	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// lowerFromClause plans the FROM chain left to right, returning the last
// node, the combined scope, and the set of column names merged by USING or
// NATURAL joins.
func (l *lowerer) lowerFromClause(from *ast.FromClause) (plan.NodeID, *scope, map[string]bool, error) {
	shared := make(map[string]bool)

	if from == nil {
		// SELECT without FROM evaluates the projection over a single
		// empty row.
		id := l.b.Add(plan.Node{
			Kind:   plan.KindValues,
			Schema: plan.Schema{},
			Rows:   []plan.Row{{}},
		})
		return id, &scope{}, shared, nil
	}

	cur, sc, err := l.lowerTableRef(from.Source)
	if err != nil {
		return 0, nil, nil, err
	}

	for _, j := range from.Joins {
		right, rsc, err := l.lowerTableRef(j.Right)
		if err != nil {
			return 0, nil, nil, err
		}
		combined := sc.concat(rsc)

		var (
			jt   plan.JoinType
			pred plan.ScalarExpr
		)
		switch j.Type {
		case ast.JoinInner:
			jt = plan.JoinInner
		case ast.JoinLeft:
			jt = plan.JoinLeft
		case ast.JoinCross, ast.JoinComma:
			jt = plan.JoinCross
		default:
			return 0, nil, nil, query.NewError(query.KindOptimize,
				"%s JOIN is not supported", j.Type)
		}

		using := j.Using
		if j.Natural {
			using = commonColumns(sc, rsc)
			if len(using) == 0 {
				// NATURAL with no shared columns degenerates to a cross
				// join.
				jt = plan.JoinCross
			}
		}

		switch {
		case len(using) > 0:
			pred, err = usingPredicate(sc, rsc, using)
			if err != nil {
				return 0, nil, nil, err
			}
			for _, name := range using {
				shared[name] = true
			}
		case j.Condition != nil:
			b := l.newBinder(combined, shared)
			pred, err = b.lower(j.Condition)
			if err != nil {
				return 0, nil, nil, err
			}
		}

		cur = l.b.Add(plan.Node{
			Kind:      plan.KindJoin,
			Inputs:    []plan.NodeID{cur, right},
			Schema:    combined.schema(),
			JoinType:  jt,
			Predicate: pred,
		})
		sc = combined
	}

	return cur, sc, shared, nil
}

func (l *lowerer) lowerTableRef(ref ast.TableRef) (plan.NodeID, *scope, error) {
	switch x := ref.(type) {
	case *ast.TableName:
		label := x.Alias
		if label == "" {
			label = x.Name
		}

		// An unqualified name may refer to a CTE planned earlier in this
		// statement. References share the CTE's node.
		if x.Schema == "" {
			if cte, ok := l.ctes[x.Name]; ok {
				return cte.id, scopeFromSchema(label, &cte.schema), nil
			}
		}

		schema, err := l.opt.catalog.Resolve(x.Name)
		if err != nil {
			if _, ok := query.KindOf(err); !ok {
				err = query.WrapError(query.KindOptimize, err, "resolve table %q", x.Name)
			}
			return 0, nil, err
		}

		// The qualifier names the row source; otherwise the engine default
		// applies.
		source := x.Schema
		if source == "" && l.cfg != nil {
			source = l.cfg.DefaultSource
		}
		id := l.b.Add(plan.Node{
			Kind:   plan.KindScan,
			Schema: *schema,
			Source: source,
			Table:  x.Name,
		})
		return id, scopeFromSchema(label, schema), nil

	case *ast.DerivedTable:
		id, sc, err := l.lowerStatement(x.Select)
		if err != nil {
			return 0, nil, err
		}
		schema := sc.schema()
		return id, scopeFromSchema(x.Alias, &schema), nil

	default:
		return 0, nil, query.NewError(query.KindOptimize, "unsupported table reference %T", ref)
	}
}

// commonColumns returns left-scope column names that also appear on the
// right, in left-scope order.
func commonColumns(left, right *scope) []string {
	rnames := make(map[string]bool, len(right.cols))
	for _, c := range right.cols {
		rnames[c.name] = true
	}
	var out []string
	for _, c := range left.cols {
		if rnames[c.name] {
			out = append(out, c.name)
		}
	}
	return out
}

// usingPredicate builds the conjunction left.a = right.a for each USING
// column.
func usingPredicate(left, right *scope, using []string) (plan.ScalarExpr, error) {
	var pred plan.ScalarExpr
	for _, name := range using {
		lord, ltyp, err := left.resolve("", name, nil)
		if err != nil {
			return nil, query.NewError(query.KindOptimize, "USING column %q not found on left side", name)
		}
		rord, rtyp, err := right.resolve("", name, nil)
		if err != nil {
			return nil, query.NewError(query.KindOptimize, "USING column %q not found on right side", name)
		}
		eq := &plan.BinaryExpr{
			Op:    plan.OpEq,
			Left:  &plan.ColumnExpr{Index: lord, Type: ltyp},
			Right: &plan.ColumnExpr{Index: len(left.cols) + rord, Type: rtyp},
		}
		if pred == nil {
			pred = eq
		} else {
			pred = &plan.BinaryExpr{Op: plan.OpAnd, Left: pred, Right: eq}
		}
	}
	return pred, nil
}
