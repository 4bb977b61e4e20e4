package query_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/query"
)

func TestLogicalQueryVariants(t *testing.T) {
	q := query.SQL("SELECT 1", int64(7))
	assert.Equal(t, query.KindSQL, q.Kind())

	text, ok := q.Text()
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", text)
	assert.Equal(t, []any{int64(7)}, q.Params())

	_, ok = q.Tree()
	assert.False(t, ok)

	tq := query.SyntaxTree(&ast.SelectStmt{})
	assert.Equal(t, query.KindSyntaxTree, tq.Kind())
	tree, ok := tq.Tree()
	require.True(t, ok)
	assert.NotNil(t, tree)
	_, ok = tq.Text()
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	err := query.NewError(query.KindSyntax, "unexpected token %q", "FROM")
	assert.EqualError(t, err, `syntax error: unexpected token "FROM"`)

	kind, ok := query.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, query.KindSyntax, kind)
	assert.True(t, query.IsKind(err, query.KindSyntax))
	assert.False(t, query.IsKind(err, query.KindExecution))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := query.WrapError(query.KindConfiguration, cause, "loading profile")

	assert.True(t, query.IsKind(err, query.KindConfiguration))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "configuration error: loading profile")
}

func TestKindOfUnclassified(t *testing.T) {
	_, ok := query.KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, query.IsKind(nil, query.KindSyntax))
}

func TestKindOfWrappedDeep(t *testing.T) {
	inner := query.NewError(query.KindOptimize, "no plan for join")
	outer := query.WrapError(query.KindExecution, inner, "running query")

	// The outermost classification wins.
	kind, ok := query.KindOf(outer)
	require.True(t, ok)
	assert.Equal(t, query.KindExecution, kind)

	// The inner classification is still reachable through the chain.
	var qe *query.Error
	require.True(t, errors.As(errors.Unwrap(outer), &qe))
	assert.Equal(t, query.KindOptimize, qe.Kind)
}

func TestFrameworkConfigProperty(t *testing.T) {
	var nilCfg *query.FrameworkConfig
	assert.Equal(t, "fallback", nilCfg.Property("x", "fallback"))

	cfg := &query.FrameworkConfig{Properties: map[string]string{"join_strategy": "hash"}}
	assert.Equal(t, "hash", cfg.Property("join_strategy", "nested"))
	assert.Equal(t, "nested", cfg.Property("missing", "nested"))
}
