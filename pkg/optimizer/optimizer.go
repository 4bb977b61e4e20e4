// Package optimizer lowers syntax trees into relational plans.
//
// This is the engine's default heuristic planner. It binds column names
// against a catalog, rewrites sugar forms (IN lists, BETWEEN, operand
// CASE) into core scalar expressions, and emits a linear operator chain
// per SELECT core: Scan/Values, Filter, Aggregate, Sort, Project,
// Distinct, Limit. Anything it cannot plan fails with an optimize-kind
// error; callers wanting richer planning supply their own query.Optimizer.
package optimizer

import (
	"context"
	"strconv"
	"strings"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/catalog"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// Optimizer is the default AST-to-plan lowering. It is stateless across
// calls and safe for concurrent use.
type Optimizer struct {
	catalog catalog.Catalog
	dialect *dialect.Dialect
}

// Option adjusts optimizer construction.
type Option func(*Optimizer)

// WithDialect teaches the optimizer the dialect's aggregate names so that
// unsupported dialect aggregates fail with a precise message.
func WithDialect(d *dialect.Dialect) Option {
	return func(o *Optimizer) { o.dialect = d }
}

// New creates an optimizer that resolves tables through cat.
func New(cat catalog.Catalog, opts ...Option) *Optimizer {
	o := &Optimizer{catalog: cat}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize implements query.Optimizer.
func (o *Optimizer) Optimize(ctx context.Context, tree *ast.SelectStmt, cfg *query.FrameworkConfig) (*plan.Plan, error) {
	if tree == nil {
		return nil, query.NewError(query.KindOptimize, "nil syntax tree")
	}
	if err := ctx.Err(); err != nil {
		return nil, query.WrapError(query.KindOptimize, err, "optimize canceled")
	}

	l := &lowerer{
		opt:  o,
		b:    plan.NewBuilder(),
		cfg:  cfg,
		ctes: make(map[string]cteDef),
	}
	root, _, err := l.lowerStatement(tree)
	if err != nil {
		return nil, err
	}
	l.b.SetRoot(root)
	p, err := l.b.Build()
	if err != nil {
		return nil, query.WrapError(query.KindOptimize, err, "planned query failed validation")
	}
	return p, nil
}

// cteDef is a planned common table expression. References share the node,
// so a CTE used twice becomes a DAG, not two copies.
type cteDef struct {
	id     plan.NodeID
	schema plan.Schema
}

type lowerer struct {
	opt  *Optimizer
	b    *plan.Builder
	cfg  *query.FrameworkConfig
	ctes map[string]cteDef
}

func (l *lowerer) newBinder(sc *scope, shared map[string]bool) *binder {
	return &binder{scope: sc, shared: shared, dialect: l.opt.dialect}
}

func (l *lowerer) lowerStatement(stmt *ast.SelectStmt) (plan.NodeID, *scope, error) {
	if stmt.With != nil {
		if stmt.With.Recursive {
			return 0, nil, query.NewError(query.KindOptimize, "recursive WITH is not supported")
		}
		// CTEs shadow outer definitions of the same name for the duration
		// of this statement.
		saved := l.ctes
		l.ctes = make(map[string]cteDef, len(saved)+len(stmt.With.CTEs))
		for k, v := range saved {
			l.ctes[k] = v
		}
		defer func() { l.ctes = saved }()

		for _, cte := range stmt.With.CTEs {
			id, sc, err := l.lowerStatement(cte.Select)
			if err != nil {
				return 0, nil, err
			}
			l.ctes[cte.Name] = cteDef{id: id, schema: sc.schema()}
		}
	}

	if stmt.Body == nil || stmt.Body.Left == nil {
		return 0, nil, query.NewError(query.KindOptimize, "empty statement body")
	}
	if stmt.Body.Op != ast.SetNone || stmt.Body.Right != nil {
		return 0, nil, query.NewError(query.KindOptimize,
			"set operations (%s) are not supported", stmt.Body.Op)
	}
	return l.lowerCore(stmt.Body.Left)
}

func (l *lowerer) lowerCore(core *ast.SelectCore) (plan.NodeID, *scope, error) {
	if core.Qualify != nil {
		return 0, nil, query.NewError(query.KindOptimize, "QUALIFY is not supported")
	}

	cur, sc, shared, err := l.lowerFromClause(core.From)
	if err != nil {
		return 0, nil, err
	}
	pre := l.newBinder(sc, shared)

	if core.Where != nil {
		pred, err := pre.lower(core.Where)
		if err != nil {
			return 0, nil, err
		}
		cur = l.b.Add(plan.Node{
			Kind:      plan.KindFilter,
			Inputs:    []plan.NodeID{cur},
			Schema:    sc.schema(),
			Predicate: pred,
		})
	}

	// Aggregation is triggered by GROUP BY or by any aggregate call in the
	// clauses evaluated after grouping.
	var aggCalls []*ast.FuncCall
	for _, item := range core.Columns {
		collectAggregates(item.Expr, &aggCalls)
	}
	collectAggregates(core.Having, &aggCalls)
	for _, ob := range core.OrderBy {
		collectAggregates(ob.Expr, &aggCalls)
	}
	grouped := len(core.GroupBy) > 0 || len(aggCalls) > 0

	if grouped {
		cur, sc, pre, err = l.lowerAggregate(core, cur, pre, aggCalls)
		if err != nil {
			return 0, nil, err
		}
	} else if core.Having != nil {
		return 0, nil, query.NewError(query.KindOptimize, "HAVING requires GROUP BY or an aggregate")
	}

	// Projection list, held back until sort placement is known.
	projections, projSchema, projKeys, err := l.lowerSelectList(core, pre, sc, grouped)
	if err != nil {
		return 0, nil, err
	}
	projScope := scopeFromSchema("", &projSchema)

	// ORDER BY keys bind against the output columns first (aliases, plain
	// projections). Keys over non-projected columns sort before the
	// projection instead, which DISTINCT forbids.
	var sortAfter, sortBefore []plan.SortKey
	if len(core.OrderBy) > 0 {
		post := &binder{scope: projScope, aggOut: projKeys, aggSchema: projSchema, dialect: l.opt.dialect}
		sortAfter, err = lowerSortKeys(core.OrderBy, post)
		if err != nil {
			if core.Distinct {
				return 0, nil, query.NewError(query.KindOptimize,
					"ORDER BY expressions must appear in the SELECT list when DISTINCT is used")
			}
			var preErr error
			sortBefore, preErr = lowerSortKeys(core.OrderBy, pre)
			if preErr != nil {
				return 0, nil, err
			}
		}
	}

	if len(sortBefore) > 0 {
		cur = l.b.Add(plan.Node{
			Kind:     plan.KindSort,
			Inputs:   []plan.NodeID{cur},
			Schema:   sc.schema(),
			SortKeys: sortBefore,
		})
	}

	cur = l.b.Add(plan.Node{
		Kind:        plan.KindProject,
		Inputs:      []plan.NodeID{cur},
		Schema:      projSchema,
		Projections: projections,
	})

	if core.Distinct {
		cur = l.b.Add(plan.Node{
			Kind:   plan.KindDistinct,
			Inputs: []plan.NodeID{cur},
			Schema: projSchema,
		})
	}

	if len(sortAfter) > 0 {
		cur = l.b.Add(plan.Node{
			Kind:     plan.KindSort,
			Inputs:   []plan.NodeID{cur},
			Schema:   projSchema,
			SortKeys: sortAfter,
		})
	}

	if core.Limit != nil || core.Offset != nil {
		limit, offset, err := lowerLimit(core)
		if err != nil {
			return 0, nil, err
		}
		cur = l.b.Add(plan.Node{
			Kind:   plan.KindLimit,
			Inputs: []plan.NodeID{cur},
			Schema: projSchema,
			Limit:  limit,
			Offset: offset,
		})
	}

	return cur, scopeFromSchema("", &projSchema), nil
}

// lowerAggregate plans the Aggregate node and returns the post-aggregation
// binder used for SELECT, HAVING and ORDER BY.
func (l *lowerer) lowerAggregate(core *ast.SelectCore, cur plan.NodeID, pre *binder, aggCalls []*ast.FuncCall) (plan.NodeID, *scope, *binder, error) {
	var (
		groups []plan.ScalarExpr
		aggs   []plan.AggCall
		cols   []plan.Column
		aggOut = make(map[string]int)
	)

	for i, g := range core.GroupBy {
		lg, err := pre.lower(g)
		if err != nil {
			return 0, nil, nil, err
		}
		name := "group" + strconv.Itoa(i)
		if ref, ok := g.(*ast.ColumnRef); ok {
			name = ref.Column
		}
		aggOut[astKey(g)] = len(groups)
		groups = append(groups, lg)
		cols = append(cols, plan.Column{Name: name, Type: exprType(lg)})
	}

	for _, call := range aggCalls {
		key := astKey(call)
		if _, ok := aggOut[key]; ok {
			continue
		}
		ac, err := lowerAggCall(call, pre)
		if err != nil {
			return 0, nil, nil, err
		}
		aggOut[key] = len(groups) + len(aggs)
		aggs = append(aggs, ac)
		cols = append(cols, plan.Column{Name: strings.ToLower(call.Name), Type: aggType(ac)})
	}

	schema := plan.Schema{Columns: cols}
	cur = l.b.Add(plan.Node{
		Kind:    plan.KindAggregate,
		Inputs:  []plan.NodeID{cur},
		Schema:  schema,
		GroupBy: groups,
		Aggs:    aggs,
	})

	sc := scopeFromSchema("", &schema)
	post := &binder{scope: sc, aggOut: aggOut, aggSchema: schema, dialect: l.opt.dialect}

	if core.Having != nil {
		pred, err := post.lower(core.Having)
		if err != nil {
			return 0, nil, nil, err
		}
		cur = l.b.Add(plan.Node{
			Kind:      plan.KindFilter,
			Inputs:    []plan.NodeID{cur},
			Schema:    schema,
			Predicate: pred,
		})
	}
	return cur, sc, post, nil
}

func lowerAggCall(call *ast.FuncCall, pre *binder) (plan.AggCall, error) {
	op := aggOps[call.Name]
	if call.Star {
		if op != plan.AggCount {
			return plan.AggCall{}, query.NewError(query.KindOptimize, "%s(*) is not valid", call.Name)
		}
		return plan.AggCall{Op: plan.AggCountStar}, nil
	}
	if len(call.Args) != 1 {
		return plan.AggCall{}, query.NewError(query.KindOptimize,
			"%s takes exactly one argument, got %d", call.Name, len(call.Args))
	}
	var nested []*ast.FuncCall
	collectAggregates(call.Args[0], &nested)
	if len(nested) > 0 {
		return plan.AggCall{}, query.NewError(query.KindOptimize, "aggregates cannot be nested")
	}
	arg, err := pre.lower(call.Args[0])
	if err != nil {
		return plan.AggCall{}, err
	}
	return plan.AggCall{Op: op, Arg: arg, Distinct: call.Distinct}, nil
}

// lowerSelectList lowers the projection list. projKeys maps the textual
// form of each projected expression and alias-free column to its output
// ordinal so ORDER BY can reuse projected expressions.
func (l *lowerer) lowerSelectList(core *ast.SelectCore, b *binder, sc *scope, grouped bool) ([]plan.ScalarExpr, plan.Schema, map[string]int, error) {
	var (
		projections []plan.ScalarExpr
		cols        []plan.Column
		projKeys    = make(map[string]int)
	)

	add := func(e plan.ScalarExpr, name string, key string) {
		if key != "" {
			if _, dup := projKeys[key]; !dup {
				projKeys[key] = len(projections)
			}
		}
		projections = append(projections, e)
		cols = append(cols, plan.Column{Name: name, Type: exprType(e)})
	}

	for i, item := range core.Columns {
		switch {
		case item.Star, item.TableStar != "":
			if grouped {
				return nil, plan.Schema{}, nil, query.NewError(query.KindOptimize,
					"* cannot be used with GROUP BY or aggregates")
			}
			matched := false
			for ord, c := range sc.cols {
				if item.TableStar != "" && c.table != item.TableStar {
					continue
				}
				if item.Star && b.shared[c.name] {
					// USING columns appear once in the output.
					if first, _, err := sc.resolve("", c.name, b.shared); err == nil && first != ord {
						continue
					}
				}
				matched = true
				add(&plan.ColumnExpr{Index: ord, Type: c.typ}, c.name, c.name)
			}
			if !matched {
				if item.TableStar != "" {
					return nil, plan.Schema{}, nil, query.NewError(query.KindOptimize,
						"unknown table %q in %s.*", item.TableStar, item.TableStar)
				}
				return nil, plan.Schema{}, nil, query.NewError(query.KindOptimize,
					"SELECT * with no FROM clause")
			}

		default:
			e, err := b.lower(item.Expr)
			if err != nil {
				return nil, plan.Schema{}, nil, err
			}
			name := item.Alias
			if name == "" {
				name = defaultColumnName(item.Expr, i)
			}
			key := astKey(item.Expr)
			add(e, name, key)
			if item.Alias != "" {
				projKeys[item.Alias] = len(projections) - 1
			}
		}
	}

	return projections, plan.Schema{Columns: cols}, projKeys, nil
}

func defaultColumnName(e ast.Expr, idx int) string {
	switch x := e.(type) {
	case *ast.ColumnRef:
		return x.Column
	case *ast.FuncCall:
		return strings.ToLower(x.Name)
	default:
		return "expr" + strconv.Itoa(idx)
	}
}

func lowerSortKeys(items []ast.OrderByItem, b *binder) ([]plan.SortKey, error) {
	keys := make([]plan.SortKey, 0, len(items))
	for _, item := range items {
		e, err := b.lower(item.Expr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, plan.SortKey{Expr: e, Desc: item.Desc, NullsFirst: item.NullsFirst})
	}
	return keys, nil
}

func lowerLimit(core *ast.SelectCore) (limit, offset int64, err error) {
	limit = -1
	if core.Limit != nil {
		limit, err = intClause(core.Limit, "LIMIT")
		if err != nil {
			return 0, 0, err
		}
	}
	if core.Offset != nil {
		offset, err = intClause(core.Offset, "OFFSET")
		if err != nil {
			return 0, 0, err
		}
	}
	return limit, offset, nil
}

func intClause(e ast.Expr, clause string) (int64, error) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.LiteralNumber {
		return 0, query.NewError(query.KindOptimize, "%s requires an integer literal", clause)
	}
	v, err := literalValue(lit)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, query.NewError(query.KindOptimize, "%s requires an integer literal", clause)
	}
	if n < 0 {
		return 0, query.NewError(query.KindOptimize, "%s must not be negative", clause)
	}
	return n, nil
}
