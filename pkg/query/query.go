// Package query defines the contracts at the edges of the parse-and-execute
// pipeline: the LogicalQuery wrapper callers hand in, the optimizer
// boundary, and the unified error taxonomy every stage maps its failures
// into.
package query

import (
	"context"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/plan"
)

// Kind tags the payload variant of a LogicalQuery.
type Kind int

// Query kinds.
const (
	// KindSQL carries SQL text to be parsed.
	KindSQL Kind = iota
	// KindSyntaxTree carries a pre-built tree; the parse stage is skipped.
	KindSyntaxTree
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSQL:
		return "sql"
	case KindSyntaxTree:
		return "syntax-tree"
	default:
		return "unknown"
	}
}

// LogicalQuery is the typed wrapper around a query payload. The engine
// never accepts a bare string; callers construct one of the variants below.
// A LogicalQuery is immutable and discarded after parsing.
type LogicalQuery struct {
	kind   Kind
	sql    string
	tree   *ast.SelectStmt
	params []plan.Value
}

// SQL wraps SQL text as a logical query.
func SQL(text string, params ...plan.Value) LogicalQuery {
	return LogicalQuery{kind: KindSQL, sql: text, params: params}
}

// SyntaxTree wraps an already-parsed tree as a logical query.
func SyntaxTree(tree *ast.SelectStmt, params ...plan.Value) LogicalQuery {
	return LogicalQuery{kind: KindSyntaxTree, tree: tree, params: params}
}

// Kind returns the payload variant.
func (q LogicalQuery) Kind() Kind { return q.kind }

// Text returns the SQL text for KindSQL queries.
func (q LogicalQuery) Text() (string, bool) {
	return q.sql, q.kind == KindSQL
}

// Tree returns the pre-built tree for KindSyntaxTree queries.
func (q LogicalQuery) Tree() (*ast.SelectStmt, bool) {
	return q.tree, q.kind == KindSyntaxTree
}

// Params returns the positional parameter values, if any.
func (q LogicalQuery) Params() []plan.Value { return q.params }

// FrameworkConfig is the opaque configuration bundle handed to optimizers.
// It is built once at engine start and read-only thereafter.
type FrameworkConfig struct {
	// DefaultSource names the source provider scans bind to when a table
	// is unqualified.
	DefaultSource string
	// Properties are free-form optimizer hints (cost model knobs, rule
	// toggles). The core never interprets them.
	Properties map[string]string
}

// Property returns a named property, or defaultValue if unset.
func (c *FrameworkConfig) Property(name, defaultValue string) string {
	if c == nil {
		return defaultValue
	}
	if v, ok := c.Properties[name]; ok {
		return v
	}
	return defaultValue
}

// Optimizer converts a validated syntax tree into a relational plan.
// Implementations are external collaborators; the core only relies on this
// contract. Optimizers must be safe for concurrent use.
type Optimizer interface {
	Optimize(ctx context.Context, tree *ast.SelectStmt, cfg *FrameworkConfig) (*plan.Plan, error)
}

// OptimizerFunc adapts a function to the Optimizer interface.
type OptimizerFunc func(ctx context.Context, tree *ast.SelectStmt, cfg *FrameworkConfig) (*plan.Plan, error)

// Optimize implements Optimizer.
func (f OptimizerFunc) Optimize(ctx context.Context, tree *ast.SelectStmt, cfg *FrameworkConfig) (*plan.Plan, error) {
	return f(ctx, tree, cfg)
}
