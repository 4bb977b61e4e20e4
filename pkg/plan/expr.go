package plan

import (
	"fmt"
	"strings"
)

// ScalarExpr is an expression evaluated against a single input row.
// Column references are by ordinal into the node's input schema, so scalar
// expressions are position-resolved and carry no names.
type ScalarExpr interface {
	scalarNode()
	String() string
}

// ColumnExpr references an input column by ordinal.
type ColumnExpr struct {
	Index int
	Type  Type
}

func (*ColumnExpr) scalarNode() {}

func (e *ColumnExpr) String() string { return fmt.Sprintf("$%d", e.Index) }

// LiteralExpr is a constant value.
type LiteralExpr struct {
	Value Value
}

func (*LiteralExpr) scalarNode() {}

func (e *LiteralExpr) String() string {
	if s, ok := e.Value.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprintf("%v", e.Value)
}

// ParamExpr references a positional query parameter.
type ParamExpr struct {
	Index int
}

func (*ParamExpr) scalarNode() {}

func (e *ParamExpr) String() string { return fmt.Sprintf("?%d", e.Index) }

// BinaryOp is the operator of a BinaryExpr.
type BinaryOp int

// Binary operators.
const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
	OpLike
	OpILike
)

var binaryOpNames = map[BinaryOp]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "AND", OpOr: "OR",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpConcat: "||", OpLike: "LIKE", OpILike: "ILIKE",
}

// String returns the SQL spelling of the operator.
func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", op)
}

// BinaryExpr applies a binary operator to two operands.
type BinaryExpr struct {
	Op    BinaryOp
	Left  ScalarExpr
	Right ScalarExpr
}

func (*BinaryExpr) scalarNode() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// NotExpr negates a boolean operand.
type NotExpr struct {
	Expr ScalarExpr
}

func (*NotExpr) scalarNode() {}

func (e *NotExpr) String() string { return fmt.Sprintf("NOT %s", e.Expr) }

// NegExpr arithmetically negates its operand.
type NegExpr struct {
	Expr ScalarExpr
}

func (*NegExpr) scalarNode() {}

func (e *NegExpr) String() string { return fmt.Sprintf("-%s", e.Expr) }

// IsNullExpr tests a value for SQL NULL.
type IsNullExpr struct {
	Expr ScalarExpr
	Not  bool
}

func (*IsNullExpr) scalarNode() {}

func (e *IsNullExpr) String() string {
	if e.Not {
		return fmt.Sprintf("%s IS NOT NULL", e.Expr)
	}
	return fmt.Sprintf("%s IS NULL", e.Expr)
}

// CaseExpr is a searched CASE (the optimizer rewrites the operand form).
type CaseExpr struct {
	Whens []CaseWhen
	Else  ScalarExpr // nil means NULL
}

// CaseWhen is one arm of a CaseExpr.
type CaseWhen struct {
	Cond   ScalarExpr
	Result ScalarExpr
}

func (*CaseExpr) scalarNode() {}

func (e *CaseExpr) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, w := range e.Whens {
		fmt.Fprintf(&b, " WHEN %s THEN %s", w.Cond, w.Result)
	}
	if e.Else != nil {
		fmt.Fprintf(&b, " ELSE %s", e.Else)
	}
	b.WriteString(" END")
	return b.String()
}

// CastExpr coerces a value to a declared type.
type CastExpr struct {
	Expr ScalarExpr
	To   Type
}

func (*CastExpr) scalarNode() {}

func (e *CastExpr) String() string { return fmt.Sprintf("CAST(%s AS %s)", e.Expr, e.To) }

// FuncExpr is a scalar builtin call (UPPER, LOWER, LENGTH, ABS, COALESCE).
type FuncExpr struct {
	Name string
	Args []ScalarExpr
}

func (*FuncExpr) scalarNode() {}

func (e *FuncExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

// AggOp is an aggregate operator.
type AggOp int

// Aggregate operators.
const (
	AggCount AggOp = iota // COUNT(expr)
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
)

// String returns the SQL spelling of the aggregate.
func (op AggOp) String() string {
	switch op {
	case AggCountStar:
		return "COUNT(*)"
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return fmt.Sprintf("agg(%d)", op)
	}
}

// AggCall is one aggregate computed by an Aggregate node.
type AggCall struct {
	Op       AggOp
	Arg      ScalarExpr // nil for COUNT(*)
	Distinct bool
}

// String renders the call for plan dumps.
func (a AggCall) String() string {
	if a.Op == AggCountStar {
		return "COUNT(*)"
	}
	if a.Distinct {
		return fmt.Sprintf("%s(DISTINCT %s)", a.Op, a.Arg)
	}
	return fmt.Sprintf("%s(%s)", a.Op, a.Arg)
}

// SortKey orders rows by one expression.
type SortKey struct {
	Expr       ScalarExpr
	Desc       bool
	NullsFirst *bool // nil = nulls last ascending, nulls first descending
}

// maxOrdinal returns the largest column ordinal referenced by e, or -1.
func maxOrdinal(e ScalarExpr) int {
	m := -1
	walkExpr(e, func(x ScalarExpr) {
		if c, ok := x.(*ColumnExpr); ok && c.Index > m {
			m = c.Index
		}
	})
	return m
}

// walkExpr visits e and every subexpression.
func walkExpr(e ScalarExpr, fn func(ScalarExpr)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *BinaryExpr:
		walkExpr(x.Left, fn)
		walkExpr(x.Right, fn)
	case *NotExpr:
		walkExpr(x.Expr, fn)
	case *NegExpr:
		walkExpr(x.Expr, fn)
	case *IsNullExpr:
		walkExpr(x.Expr, fn)
	case *CastExpr:
		walkExpr(x.Expr, fn)
	case *CaseExpr:
		for _, w := range x.Whens {
			walkExpr(w.Cond, fn)
			walkExpr(w.Result, fn)
		}
		walkExpr(x.Else, fn)
	case *FuncExpr:
		for _, a := range x.Args {
			walkExpr(a, fn)
		}
	}
}
