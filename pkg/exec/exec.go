// Package exec runs relational plans as pull-based row cursors.
//
// An Executor compiles a plan into a fresh operator tree per execution,
// validates it before acquiring any resource, and hands back a Cursor the
// caller drains with HasNext/Next. Execution failures are terminal: once
// a cursor fails, its resources are released and every later call reports
// the same error.
package exec

import (
	"context"
	"log/slog"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
)

// Executor turns plans into cursors. It holds no per-query state and is
// safe for concurrent use.
type Executor struct {
	registry  *source.Registry
	logger    *slog.Logger
	collation language.Tag
}

// Option adjusts executor construction.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithCollation sets the locale used to order strings in sorts. The
// default is the undetermined locale, which compares code points.
func WithCollation(tag language.Tag) Option {
	return func(e *Executor) { e.collation = tag }
}

// New creates an executor reading rows through the given source registry.
func New(registry *source.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:  registry,
		logger:    slog.New(slog.DiscardHandler),
		collation: language.Und,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates the plan, compiles a fresh operator tree and opens it.
// Validation happens before any source is touched, so an invalid plan
// never acquires resources. The returned cursor owns those resources and
// must be closed.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, params ...plan.Value) (*Cursor, error) {
	if err := p.Validate(); err != nil {
		return nil, query.WrapError(query.KindInvalidPlan, err, "invalid plan")
	}
	if err := checkParams(p, len(params)); err != nil {
		return nil, err
	}

	root, err := compile(p, p.Root)
	if err != nil {
		return nil, err
	}

	env := &execEnv{
		ctx:      ctx,
		params:   params,
		stats:    &statsCounters{},
		registry: e.registry,
		coll:     collate.New(e.collation),
	}

	if err := root.open(env); err != nil {
		_ = root.close()
		if _, ok := query.KindOf(err); !ok {
			err = query.WrapError(query.KindExecution, err, "open plan")
		}
		return nil, err
	}

	e.logger.Debug("plan opened",
		slog.Int("nodes", len(p.Nodes)),
		slog.Int("columns", p.OutputSchema().Len()))

	return &Cursor{op: root, env: env, schema: p.OutputSchema()}, nil
}

// checkParams verifies every parameter reference in the plan is bound.
// Unbound parameters are a plan-level defect, caught eagerly.
func checkParams(p *plan.Plan, bound int) error {
	max := -1
	note := func(e plan.ScalarExpr) {
		walkParams(e, func(idx int) {
			if idx > max {
				max = idx
			}
		})
	}
	for i := range p.Nodes {
		n := &p.Nodes[i]
		note(n.Predicate)
		for _, e := range n.Projections {
			note(e)
		}
		for _, e := range n.GroupBy {
			note(e)
		}
		for _, a := range n.Aggs {
			note(a.Arg)
		}
		for _, k := range n.SortKeys {
			note(k.Expr)
		}
	}
	if max >= bound {
		return query.NewError(query.KindInvalidPlan,
			"plan references parameter %d but only %d bound", max, bound)
	}
	return nil
}

func walkParams(e plan.ScalarExpr, fn func(int)) {
	switch x := e.(type) {
	case nil:
		return
	case *plan.ParamExpr:
		fn(x.Index)
	case *plan.BinaryExpr:
		walkParams(x.Left, fn)
		walkParams(x.Right, fn)
	case *plan.NotExpr:
		walkParams(x.Expr, fn)
	case *plan.NegExpr:
		walkParams(x.Expr, fn)
	case *plan.IsNullExpr:
		walkParams(x.Expr, fn)
	case *plan.CastExpr:
		walkParams(x.Expr, fn)
	case *plan.CaseExpr:
		for _, w := range x.Whens {
			walkParams(w.Cond, fn)
			walkParams(w.Result, fn)
		}
		walkParams(x.Else, fn)
	case *plan.FuncExpr:
		for _, a := range x.Args {
			walkParams(a, fn)
		}
	}
}

// Collect drains a cursor into memory and closes it.
func Collect(c *Cursor) ([]plan.Row, error) {
	defer c.Close()
	var rows []plan.Row
	for c.HasNext() {
		row, err := c.Next()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
