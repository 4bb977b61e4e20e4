package optimizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/token"
)

// binder lowers AST expressions into scalar expressions over one row
// layout. After an Aggregate node is planned, aggOut maps the textual key
// of each group expression and aggregate call to its output ordinal, and
// further lowering resolves through it first.
type binder struct {
	scope   *scope
	shared  map[string]bool // USING/NATURAL column names, leftmost wins
	dialect *dialect.Dialect

	aggOut    map[string]int
	aggSchema plan.Schema
}

func (b *binder) lower(e ast.Expr) (plan.ScalarExpr, error) {
	if b.aggOut != nil {
		if ord, ok := b.aggOut[astKey(e)]; ok {
			return &plan.ColumnExpr{Index: ord, Type: b.aggSchema.Columns[ord].Type}, nil
		}
	}

	switch x := e.(type) {
	case *ast.Literal:
		v, err := literalValue(x)
		if err != nil {
			return nil, err
		}
		return &plan.LiteralExpr{Value: v}, nil

	case *ast.Placeholder:
		return &plan.ParamExpr{Index: x.Index}, nil

	case *ast.ColumnRef:
		ord, typ, err := b.scope.resolve(x.Table, x.Column, b.shared)
		if err != nil {
			if b.aggOut != nil {
				return nil, query.NewError(query.KindOptimize,
					"column %q must appear in the GROUP BY clause or be used in an aggregate", x.Column)
			}
			return nil, err
		}
		return &plan.ColumnExpr{Index: ord, Type: typ}, nil

	case *ast.ParenExpr:
		return b.lower(x.Expr)

	case *ast.UnaryExpr:
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case token.NOT:
			return &plan.NotExpr{Expr: inner}, nil
		case token.MINUS:
			return &plan.NegExpr{Expr: inner}, nil
		case token.PLUS:
			return inner, nil
		}
		return nil, query.NewError(query.KindOptimize, "unsupported unary operator %s", x.Op)

	case *ast.BinaryExpr:
		op, ok := binaryOps[x.Op]
		if !ok {
			return nil, query.NewError(query.KindOptimize, "unsupported operator %s", x.Op)
		}
		left, err := b.lower(x.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.lower(x.Right)
		if err != nil {
			return nil, err
		}
		return &plan.BinaryExpr{Op: op, Left: left, Right: right}, nil

	case *ast.IsNullExpr:
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		return &plan.IsNullExpr{Expr: inner, Not: x.Not}, nil

	case *ast.IsBoolExpr:
		// a IS TRUE becomes a = true; IS NOT negates.
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		var out plan.ScalarExpr = &plan.BinaryExpr{
			Op:    plan.OpEq,
			Left:  inner,
			Right: &plan.LiteralExpr{Value: x.Value},
		}
		if x.Not {
			out = &plan.NotExpr{Expr: out}
		}
		return out, nil

	case *ast.LikeExpr:
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		pattern, err := b.lower(x.Pattern)
		if err != nil {
			return nil, err
		}
		op := plan.OpLike
		if x.Op != token.LIKE {
			op = plan.OpILike
		}
		var out plan.ScalarExpr = &plan.BinaryExpr{Op: op, Left: inner, Right: pattern}
		if x.Not {
			out = &plan.NotExpr{Expr: out}
		}
		return out, nil

	case *ast.BetweenExpr:
		// low <= e AND e <= high.
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		low, err := b.lower(x.Low)
		if err != nil {
			return nil, err
		}
		high, err := b.lower(x.High)
		if err != nil {
			return nil, err
		}
		var out plan.ScalarExpr = &plan.BinaryExpr{
			Op:   plan.OpAnd,
			Left: &plan.BinaryExpr{Op: plan.OpGe, Left: inner, Right: low},
			Right: &plan.BinaryExpr{Op: plan.OpLe,
				Left: inner, Right: high},
		}
		if x.Not {
			out = &plan.NotExpr{Expr: out}
		}
		return out, nil

	case *ast.InExpr:
		if x.Query != nil {
			return nil, query.NewError(query.KindOptimize, "IN subqueries are not supported")
		}
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		// e IN (a, b) becomes e = a OR e = b.
		var out plan.ScalarExpr
		for _, v := range x.Values {
			val, err := b.lower(v)
			if err != nil {
				return nil, err
			}
			eq := &plan.BinaryExpr{Op: plan.OpEq, Left: inner, Right: val}
			if out == nil {
				out = eq
			} else {
				out = &plan.BinaryExpr{Op: plan.OpOr, Left: out, Right: eq}
			}
		}
		if out == nil {
			out = &plan.LiteralExpr{Value: false}
		}
		if x.Not {
			out = &plan.NotExpr{Expr: out}
		}
		return out, nil

	case *ast.CaseExpr:
		return b.lowerCase(x)

	case *ast.CastExpr:
		inner, err := b.lower(x.Expr)
		if err != nil {
			return nil, err
		}
		to, err := typeFromName(x.TypeName)
		if err != nil {
			return nil, err
		}
		return &plan.CastExpr{Expr: inner, To: to}, nil

	case *ast.FuncCall:
		return b.lowerFunc(x)

	case *ast.SubqueryExpr, *ast.ExistsExpr:
		return nil, query.NewError(query.KindOptimize, "subquery expressions are not supported")

	case *ast.StarExpr:
		return nil, query.NewError(query.KindOptimize, "* is only valid in the SELECT list or COUNT(*)")

	default:
		return nil, query.NewError(query.KindOptimize, "unsupported expression %T", e)
	}
}

// lowerCase rewrites the operand form into a searched CASE.
func (b *binder) lowerCase(x *ast.CaseExpr) (plan.ScalarExpr, error) {
	out := &plan.CaseExpr{}
	for _, w := range x.Whens {
		cond := w.Condition
		if x.Operand != nil {
			cond = &ast.BinaryExpr{Left: x.Operand, Op: token.EQ, Right: w.Condition}
		}
		lc, err := b.lower(cond)
		if err != nil {
			return nil, err
		}
		lr, err := b.lower(w.Result)
		if err != nil {
			return nil, err
		}
		out.Whens = append(out.Whens, plan.CaseWhen{Cond: lc, Result: lr})
	}
	if x.Else != nil {
		le, err := b.lower(x.Else)
		if err != nil {
			return nil, err
		}
		out.Else = le
	}
	return out, nil
}

// scalarFuncs are the builtin scalar functions the executor evaluates.
var scalarFuncs = map[string]bool{
	"UPPER": true, "LOWER": true, "LENGTH": true, "ABS": true, "COALESCE": true,
}

func (b *binder) lowerFunc(x *ast.FuncCall) (plan.ScalarExpr, error) {
	if _, ok := aggOps[x.Name]; ok {
		// Aggregates are planned by the caller; reaching one here means it
		// appeared outside an aggregation context.
		return nil, query.NewError(query.KindOptimize,
			"aggregate %s is not allowed here", x.Name)
	}
	if !scalarFuncs[x.Name] {
		if b.dialect != nil && b.dialect.IsAggregate(strings.ToLower(x.Name)) {
			return nil, query.NewError(query.KindOptimize,
				"aggregate %s is not supported by this optimizer", x.Name)
		}
		return nil, query.NewError(query.KindOptimize, "unknown function %s", x.Name)
	}
	if x.Star || x.Distinct {
		return nil, query.NewError(query.KindOptimize, "invalid arguments to %s", x.Name)
	}
	fn := &plan.FuncExpr{Name: x.Name}
	for _, a := range x.Args {
		la, err := b.lower(a)
		if err != nil {
			return nil, err
		}
		fn.Args = append(fn.Args, la)
	}
	return fn, nil
}

// binaryOps maps parser operator tokens to plan operators. LIKE variants
// go through ast.LikeExpr instead.
var binaryOps = map[token.Type]plan.BinaryOp{
	token.EQ:     plan.OpEq,
	token.NE:     plan.OpNe,
	token.LT:     plan.OpLt,
	token.LE:     plan.OpLe,
	token.GT:     plan.OpGt,
	token.GE:     plan.OpGe,
	token.AND:    plan.OpAnd,
	token.OR:     plan.OpOr,
	token.PLUS:   plan.OpAdd,
	token.MINUS:  plan.OpSub,
	token.STAR:   plan.OpMul,
	token.SLASH:  plan.OpDiv,
	token.MOD:    plan.OpMod,
	token.CONCAT: plan.OpConcat,
}

// aggOps maps aggregate function names to plan aggregate operators.
var aggOps = map[string]plan.AggOp{
	"COUNT": plan.AggCount,
	"SUM":   plan.AggSum,
	"AVG":   plan.AggAvg,
	"MIN":   plan.AggMin,
	"MAX":   plan.AggMax,
}

func literalValue(l *ast.Literal) (plan.Value, error) {
	switch l.Kind {
	case ast.LiteralNull:
		return nil, nil
	case ast.LiteralBool:
		return l.Value == "true", nil
	case ast.LiteralString:
		return l.Value, nil
	case ast.LiteralNumber:
		if !strings.ContainsAny(l.Value, ".eE") {
			if n, err := strconv.ParseInt(l.Value, 10, 64); err == nil {
				return n, nil
			}
		}
		f, err := strconv.ParseFloat(l.Value, 64)
		if err != nil {
			return nil, query.NewError(query.KindOptimize, "invalid numeric literal %q", l.Value)
		}
		return f, nil
	default:
		return nil, query.NewError(query.KindOptimize, "unknown literal kind %d", l.Kind)
	}
}

func typeFromName(name string) (plan.Type, error) {
	switch name {
	case "BOOLEAN", "BOOL":
		return plan.TypeBool, nil
	case "INTEGER", "INT", "BIGINT", "SMALLINT":
		return plan.TypeInt, nil
	case "FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC":
		return plan.TypeFloat, nil
	case "VARCHAR", "TEXT", "STRING", "CHAR":
		return plan.TypeString, nil
	default:
		return 0, query.NewError(query.KindOptimize, "unknown type name %s", name)
	}
}

// exprType infers the output type of a lowered expression. TypeAny means
// the type is only known at evaluation time.
func exprType(e plan.ScalarExpr) plan.Type {
	switch x := e.(type) {
	case *plan.ColumnExpr:
		return x.Type
	case *plan.LiteralExpr:
		switch x.Value.(type) {
		case bool:
			return plan.TypeBool
		case int64:
			return plan.TypeInt
		case float64:
			return plan.TypeFloat
		case string:
			return plan.TypeString
		}
		return plan.TypeAny
	case *plan.BinaryExpr:
		switch x.Op {
		case plan.OpEq, plan.OpNe, plan.OpLt, plan.OpLe, plan.OpGt, plan.OpGe,
			plan.OpAnd, plan.OpOr, plan.OpLike, plan.OpILike:
			return plan.TypeBool
		case plan.OpConcat:
			return plan.TypeString
		default:
			lt, rt := exprType(x.Left), exprType(x.Right)
			if lt == plan.TypeFloat || rt == plan.TypeFloat {
				return plan.TypeFloat
			}
			if lt == plan.TypeInt && rt == plan.TypeInt {
				return plan.TypeInt
			}
			return plan.TypeAny
		}
	case *plan.NotExpr, *plan.IsNullExpr:
		return plan.TypeBool
	case *plan.NegExpr:
		return exprType(x.Expr)
	case *plan.CastExpr:
		return x.To
	case *plan.CaseExpr:
		if len(x.Whens) > 0 {
			return exprType(x.Whens[0].Result)
		}
		return plan.TypeAny
	case *plan.FuncExpr:
		switch x.Name {
		case "UPPER", "LOWER":
			return plan.TypeString
		case "LENGTH":
			return plan.TypeInt
		default:
			return plan.TypeAny
		}
	default:
		return plan.TypeAny
	}
}

// aggType infers the output type of an aggregate call.
func aggType(call plan.AggCall) plan.Type {
	switch call.Op {
	case plan.AggCount, plan.AggCountStar:
		return plan.TypeInt
	case plan.AggAvg:
		return plan.TypeFloat
	default:
		if call.Arg != nil {
			return exprType(call.Arg)
		}
		return plan.TypeAny
	}
}

// astKey renders an AST expression into a canonical string so group
// expressions and aggregate calls can be matched structurally between the
// GROUP BY clause and the clauses evaluated after aggregation.
func astKey(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Literal:
		return fmt.Sprintf("lit:%d:%s", x.Kind, x.Value)
	case *ast.Placeholder:
		return fmt.Sprintf("?%d", x.Index)
	case *ast.ColumnRef:
		if x.Table != "" {
			return x.Table + "." + x.Column
		}
		return x.Column
	case *ast.ParenExpr:
		return astKey(x.Expr)
	case *ast.UnaryExpr:
		return fmt.Sprintf("(%s %s)", x.Op, astKey(x.Expr))
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", astKey(x.Left), x.Op, astKey(x.Right))
	case *ast.IsNullExpr:
		return fmt.Sprintf("(%s isnull %v)", astKey(x.Expr), x.Not)
	case *ast.FuncCall:
		parts := make([]string, 0, len(x.Args)+1)
		if x.Star {
			parts = append(parts, "*")
		}
		if x.Distinct {
			parts = append(parts, "distinct")
		}
		for _, a := range x.Args {
			parts = append(parts, astKey(a))
		}
		return fmt.Sprintf("%s(%s)", x.Name, strings.Join(parts, ","))
	case *ast.CastExpr:
		return fmt.Sprintf("cast(%s as %s)", astKey(x.Expr), x.TypeName)
	default:
		// Unmatchable expressions get a unique key per pointer.
		return fmt.Sprintf("%T:%p", e, e)
	}
}

// collectAggregates walks an AST expression and appends every aggregate
// function call found outside a nested aggregate.
func collectAggregates(e ast.Expr, out *[]*ast.FuncCall) {
	switch x := e.(type) {
	case nil:
		return
	case *ast.FuncCall:
		if _, ok := aggOps[x.Name]; ok {
			*out = append(*out, x)
			return
		}
		for _, a := range x.Args {
			collectAggregates(a, out)
		}
	case *ast.ParenExpr:
		collectAggregates(x.Expr, out)
	case *ast.UnaryExpr:
		collectAggregates(x.Expr, out)
	case *ast.BinaryExpr:
		collectAggregates(x.Left, out)
		collectAggregates(x.Right, out)
	case *ast.IsNullExpr:
		collectAggregates(x.Expr, out)
	case *ast.IsBoolExpr:
		collectAggregates(x.Expr, out)
	case *ast.LikeExpr:
		collectAggregates(x.Expr, out)
		collectAggregates(x.Pattern, out)
	case *ast.BetweenExpr:
		collectAggregates(x.Expr, out)
		collectAggregates(x.Low, out)
		collectAggregates(x.High, out)
	case *ast.InExpr:
		collectAggregates(x.Expr, out)
		for _, v := range x.Values {
			collectAggregates(v, out)
		}
	case *ast.CaseExpr:
		collectAggregates(x.Operand, out)
		for _, w := range x.Whens {
			collectAggregates(w.Condition, out)
			collectAggregates(w.Result, out)
		}
		collectAggregates(x.Else, out)
	case *ast.CastExpr:
		collectAggregates(x.Expr, out)
	}
}
