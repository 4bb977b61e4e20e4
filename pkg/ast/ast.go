// Package ast defines the syntax tree produced by the SQL parser.
//
// A tree is either fully built or not returned at all: the parser never
// hands out partially constructed nodes. Trees are owned by the caller and
// consumed by an optimizer; nothing in this package mutates a tree after
// construction.
package ast

import "github.com/relstack-labs/relq/pkg/token"

// Statement is the root of a parsed statement.
type Statement interface {
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	exprNode()
}

// TableRef is a relation in a FROM clause.
type TableRef interface {
	tableRefNode()
}

// NodeInfo carries the source span common to positioned nodes.
type NodeInfo struct {
	Span token.Span
}

// GetSpan returns the node's source span.
func (n *NodeInfo) GetSpan() token.Span { return n.Span }

// ---------- Statements ----------

// SelectStmt is a complete SELECT statement with an optional WITH clause.
type SelectStmt struct {
	NodeInfo
	With *WithClause
	Body *SelectBody
}

func (*SelectStmt) stmtNode() {}

// WithClause holds the common table expressions of a statement.
type WithClause struct {
	NodeInfo
	Recursive bool
	CTEs      []*CTE
}

// CTE is a single named common table expression.
type CTE struct {
	NodeInfo
	Name   string
	Select *SelectStmt
}

// SelectBody chains SELECT cores with set operations.
type SelectBody struct {
	NodeInfo
	Left  *SelectCore
	Op    SetOp
	All   bool
	Right *SelectBody
}

// SetOp is a set operation between two select bodies.
type SetOp string

// Set operations.
const (
	SetNone      SetOp = ""
	SetUnion     SetOp = "UNION"
	SetIntersect SetOp = "INTERSECT"
	SetExcept    SetOp = "EXCEPT"
)

// SelectCore is one SELECT ... FROM ... block.
type SelectCore struct {
	NodeInfo
	Distinct bool
	Columns  []SelectItem
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Qualify  Expr // extension clause, accepted only by permissive conformance
	OrderBy  []OrderByItem
	Limit    Expr
	Offset   Expr
}

// SelectItem is one projection in the SELECT list.
type SelectItem struct {
	Star      bool   // SELECT *
	TableStar string // SELECT t.*
	Expr      Expr
	Alias     string
}

// OrderByItem is one sort key.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool // nil = dialect default
}

// ---------- Table references ----------

// FromClause is the FROM clause: a source relation plus joins.
type FromClause struct {
	NodeInfo
	Source TableRef
	Joins  []*Join
}

// Join attaches one relation to the FROM chain.
type Join struct {
	NodeInfo
	Type      JoinType
	Natural   bool
	Right     TableRef
	Condition Expr     // ON, mutually exclusive with Using
	Using     []string // USING (a, b)
}

// JoinType is the SQL keyword naming the join ("INNER", "LEFT", ...).
type JoinType string

// Join types.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
	// JoinComma is the implicit cross join written with a comma.
	JoinComma JoinType = ","
)

// TableName references a named table, optionally qualified and aliased.
type TableName struct {
	NodeInfo
	Schema string
	Name   string
	Alias  string
}

func (*TableName) tableRefNode() {}

// DerivedTable is a parenthesized subquery in FROM.
type DerivedTable struct {
	NodeInfo
	Select *SelectStmt
	Alias  string
}

func (*DerivedTable) tableRefNode() {}

// ---------- Expressions ----------

// ColumnRef references a column, optionally qualified by table or alias.
type ColumnRef struct {
	Table  string
	Column string
}

func (*ColumnRef) exprNode() {}

// LiteralKind tags the concrete type of a literal.
type LiteralKind int

// Literal kinds.
const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// Literal is a literal value, kept in source form.
type Literal struct {
	Kind  LiteralKind
	Value string
}

func (*Literal) exprNode() {}

// Placeholder is a positional `?` parameter. Index is 0-based in
// left-to-right source order.
type Placeholder struct {
	Index int
}

func (*Placeholder) exprNode() {}

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	Left  Expr
	Op    token.Type
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr applies a prefix operator (NOT, -, +).
type UnaryExpr struct {
	Op   token.Type
	Expr Expr
}

func (*UnaryExpr) exprNode() {}

// FuncCall is a function invocation.
type FuncCall struct {
	Name     string
	Distinct bool
	Star     bool // COUNT(*)
	Args     []Expr
}

func (*FuncCall) exprNode() {}

// CaseExpr is a CASE [operand] WHEN ... END expression.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

func (*CaseExpr) exprNode() {}

// WhenClause is one WHEN/THEN arm of a CASE.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr converts an expression to a named type.
type CastExpr struct {
	Expr     Expr
	TypeName string
}

func (*CastExpr) exprNode() {}

// InExpr tests membership in a value list or subquery.
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
	Query  *SelectStmt
}

func (*InExpr) exprNode() {}

// BetweenExpr is expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (*BetweenExpr) exprNode() {}

// IsNullExpr is expr IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// IsBoolExpr is expr IS [NOT] TRUE/FALSE.
type IsBoolExpr struct {
	Expr  Expr
	Not   bool
	Value bool
}

func (*IsBoolExpr) exprNode() {}

// LikeExpr is expr [NOT] LIKE pattern. Op distinguishes LIKE from
// dialect-registered variants such as ILIKE.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
	Op      token.Type
}

func (*LikeExpr) exprNode() {}

// ParenExpr preserves explicit grouping.
type ParenExpr struct {
	Expr Expr
}

func (*ParenExpr) exprNode() {}

// StarExpr is a bare * or t.* used as an expression.
type StarExpr struct {
	Table string
}

func (*StarExpr) exprNode() {}

// SubqueryExpr is a scalar subquery.
type SubqueryExpr struct {
	Select *SelectStmt
}

func (*SubqueryExpr) exprNode() {}

// ExistsExpr is [NOT] EXISTS (subquery).
type ExistsExpr struct {
	Not    bool
	Select *SelectStmt
}

func (*ExistsExpr) exprNode() {}
