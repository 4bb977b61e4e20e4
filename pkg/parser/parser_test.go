package parser_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/token"
)

func mustProfile(t *testing.T, name string, opts ...parser.ProfileOption) *parser.Profile {
	t.Helper()
	p, err := parser.NewProfile(name, opts...)
	require.NoError(t, err)
	return p
}

func parseOne(t *testing.T, sql string) *ast.SelectStmt {
	t.Helper()
	stmt, err := parser.ParseSQL(sql, mustProfile(t, "ansi", parser.WithNormalization(dialect.NormExact)))
	require.NoError(t, err)
	require.NotNil(t, stmt)
	return stmt
}

func firstCore(t *testing.T, stmt *ast.SelectStmt) *ast.SelectCore {
	t.Helper()
	require.NotNil(t, stmt.Body)
	require.NotNil(t, stmt.Body.Left)
	return stmt.Body.Left
}

// ---------- Basic SELECT ----------

func TestSelectStar(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t"))
	require.Len(t, core.Columns, 1)
	assert.True(t, core.Columns[0].Star)

	tbl, ok := core.From.Source.(*ast.TableName)
	require.True(t, ok)
	assert.Equal(t, "t", tbl.Name)
}

func TestSelectColumnsWithAliases(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT a AS x, b y, c FROM t"))
	require.Len(t, core.Columns, 3)
	assert.Equal(t, "x", core.Columns[0].Alias)
	assert.Equal(t, "y", core.Columns[1].Alias)
	assert.Equal(t, "", core.Columns[2].Alias)
}

func TestSelectTableStar(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT t.*, a FROM t"))
	require.Len(t, core.Columns, 2)
	assert.Equal(t, "t", core.Columns[0].TableStar)
}

func TestSelectWithoutFrom(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT 1 + 2"))
	assert.Nil(t, core.From)
	require.Len(t, core.Columns, 1)
	_, ok := core.Columns[0].Expr.(*ast.BinaryExpr)
	assert.True(t, ok)
}

func TestSelectDistinct(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT DISTINCT a FROM t"))
	assert.True(t, core.Distinct)
}

func TestSchemaQualifiedTable(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM main.users u"))
	tbl, ok := core.From.Source.(*ast.TableName)
	require.True(t, ok)
	assert.Equal(t, "main", tbl.Schema)
	assert.Equal(t, "users", tbl.Name)
	assert.Equal(t, "u", tbl.Alias)
}

// ---------- Clauses ----------

func TestFullClauseSet(t *testing.T) {
	sql := `SELECT a, count(*) FROM t
		WHERE a > 1
		GROUP BY a
		HAVING count(*) > 2
		ORDER BY a DESC NULLS LAST
		LIMIT 10 OFFSET 5`
	core := firstCore(t, parseOne(t, sql))

	assert.NotNil(t, core.Where)
	require.Len(t, core.GroupBy, 1)
	assert.NotNil(t, core.Having)
	require.Len(t, core.OrderBy, 1)
	assert.True(t, core.OrderBy[0].Desc)
	require.NotNil(t, core.OrderBy[0].NullsFirst)
	assert.False(t, *core.OrderBy[0].NullsFirst)
	assert.NotNil(t, core.Limit)
	assert.NotNil(t, core.Offset)
}

func TestOrderByDirectionDefaults(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT a FROM t ORDER BY a, b DESC"))
	require.Len(t, core.OrderBy, 2)
	assert.False(t, core.OrderBy[0].Desc)
	assert.Nil(t, core.OrderBy[0].NullsFirst)
	assert.True(t, core.OrderBy[1].Desc)
}

func TestWithClause(t *testing.T) {
	stmt := parseOne(t, "WITH x AS (SELECT a FROM t) SELECT * FROM x")
	require.NotNil(t, stmt.With)
	assert.False(t, stmt.With.Recursive)
	require.Len(t, stmt.With.CTEs, 1)
	assert.Equal(t, "x", stmt.With.CTEs[0].Name)
}

func TestRecursiveWith(t *testing.T) {
	stmt := parseOne(t, "WITH RECURSIVE x AS (SELECT 1) SELECT * FROM x")
	require.NotNil(t, stmt.With)
	assert.True(t, stmt.With.Recursive)
}

func TestUnion(t *testing.T) {
	stmt := parseOne(t, "SELECT a FROM t UNION ALL SELECT a FROM u")
	assert.Equal(t, ast.SetUnion, stmt.Body.Op)
	assert.True(t, stmt.Body.All)
	require.NotNil(t, stmt.Body.Right)
	assert.Equal(t, ast.SetNone, stmt.Body.Right.Op)
}

// ---------- Expressions ----------

func TestOperatorPrecedence(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE a = 1 OR b = 2 AND c = 3"))

	// AND binds tighter than OR.
	or, ok := core.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.OR, or.Op)

	and, ok := or.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.AND, and.Op)
}

func TestArithmeticPrecedence(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT a + b * c FROM t"))

	add, ok := core.Columns[0].Expr.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.PLUS, add.Op)

	mul, ok := add.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.STAR, mul.Op)
}

func TestBetweenAndNotSwallowed(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE a BETWEEN 1 AND 5 AND b = 2"))

	outer, ok := core.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.AND, outer.Op)

	_, ok = outer.Left.(*ast.BetweenExpr)
	assert.True(t, ok)
}

func TestInList(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE a NOT IN (1, 2, 3)"))
	in, ok := core.Where.(*ast.InExpr)
	require.True(t, ok)
	assert.True(t, in.Not)
	assert.Len(t, in.Values, 3)
	assert.Nil(t, in.Query)
}

func TestInSubquery(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE a IN (SELECT b FROM u)"))
	in, ok := core.Where.(*ast.InExpr)
	require.True(t, ok)
	require.NotNil(t, in.Query)
	assert.Empty(t, in.Values)
}

func TestIsNullVariants(t *testing.T) {
	tests := []struct {
		sql string
		not bool
	}{
		{"SELECT * FROM t WHERE a IS NULL", false},
		{"SELECT * FROM t WHERE a IS NOT NULL", true},
	}
	for _, tt := range tests {
		core := firstCore(t, parseOne(t, tt.sql))
		isNull, ok := core.Where.(*ast.IsNullExpr)
		require.True(t, ok, tt.sql)
		assert.Equal(t, tt.not, isNull.Not, tt.sql)
	}
}

func TestCaseExpr(t *testing.T) {
	sql := "SELECT CASE WHEN a > 1 THEN 'big' ELSE 'small' END FROM t"
	core := firstCore(t, parseOne(t, sql))
	c, ok := core.Columns[0].Expr.(*ast.CaseExpr)
	require.True(t, ok)
	assert.Nil(t, c.Operand)
	require.Len(t, c.Whens, 1)
	assert.NotNil(t, c.Else)
}

func TestCaseOperandForm(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT CASE a WHEN 1 THEN 'x' END FROM t"))
	c, ok := core.Columns[0].Expr.(*ast.CaseExpr)
	require.True(t, ok)
	assert.NotNil(t, c.Operand)
	assert.Nil(t, c.Else)
}

func TestCast(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT CAST(a AS integer) FROM t"))
	c, ok := core.Columns[0].Expr.(*ast.CastExpr)
	require.True(t, ok)
	assert.Equal(t, "INTEGER", c.TypeName)
}

func TestCountStar(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT count(*) FROM t"))
	fn, ok := core.Columns[0].Expr.(*ast.FuncCall)
	require.True(t, ok)
	assert.Equal(t, "COUNT", fn.Name)
	assert.True(t, fn.Star)
}

func TestFuncDistinctArg(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT count(DISTINCT a) FROM t"))
	fn, ok := core.Columns[0].Expr.(*ast.FuncCall)
	require.True(t, ok)
	assert.True(t, fn.Distinct)
	require.Len(t, fn.Args, 1)
}

func TestExists(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE NOT EXISTS (SELECT 1 FROM u)"))
	e, ok := core.Where.(*ast.ExistsExpr)
	require.True(t, ok)
	assert.True(t, e.Not)
	assert.NotNil(t, e.Select)
}

func TestScalarSubquery(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT (SELECT max(b) FROM u) FROM t"))
	_, ok := core.Columns[0].Expr.(*ast.SubqueryExpr)
	assert.True(t, ok)
}

// ---------- Placeholders ----------

func TestPlaceholderIndices(t *testing.T) {
	core := firstCore(t, parseOne(t, "SELECT * FROM t WHERE a = ? AND b = ?"))

	and, ok := core.Where.(*ast.BinaryExpr)
	require.True(t, ok)

	left := and.Left.(*ast.BinaryExpr).Right.(*ast.Placeholder)
	right := and.Right.(*ast.BinaryExpr).Right.(*ast.Placeholder)
	assert.Equal(t, 0, left.Index)
	assert.Equal(t, 1, right.Index)
}

// ---------- Identifier normalization ----------

func TestIdentifierFolding(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"ansi", "FOO"},
		{"duckdb", "foo"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			stmt, err := parser.ParseSQL("SELECT Foo FROM t", mustProfile(t, tt.dialect))
			require.NoError(t, err)
			col := firstCore(t, stmt).Columns[0].Expr.(*ast.ColumnRef)
			assert.Equal(t, tt.want, col.Column)
		})
	}
}

func TestQuotedIdentifierPreservesCase(t *testing.T) {
	stmt, err := parser.ParseSQL(`SELECT "MixedCase" FROM t`, mustProfile(t, "duckdb"))
	require.NoError(t, err)
	col := firstCore(t, stmt).Columns[0].Expr.(*ast.ColumnRef)
	assert.Equal(t, "MixedCase", col.Column)
}

// ---------- Dialect extensions and conformance ----------

func TestQualifyRequiresDialect(t *testing.T) {
	sql := "SELECT a FROM t QUALIFY a > 1"

	stmt, err := parser.ParseSQL(sql, mustProfile(t, "duckdb"))
	require.NoError(t, err)
	assert.NotNil(t, firstCore(t, stmt).Qualify)

	// ANSI has no QUALIFY; the word is an ordinary identifier there and
	// the statement fails as trailing input.
	_, err = parser.ParseSQL(sql, mustProfile(t, "ansi"))
	require.Error(t, err)
}

func TestQualifyGatedByConformance(t *testing.T) {
	sql := "SELECT a FROM t QUALIFY a > 1"
	profile := mustProfile(t, "duckdb", parser.WithConformance(dialect.Strict))
	_, err := parser.ParseSQL(sql, profile)
	require.Error(t, err)
}

func TestILike(t *testing.T) {
	stmt, err := parser.ParseSQL("SELECT * FROM t WHERE a ILIKE 'x%'", mustProfile(t, "postgres"))
	require.NoError(t, err)
	like, ok := firstCore(t, stmt).Where.(*ast.LikeExpr)
	require.True(t, ok)
	assert.NotEqual(t, token.LIKE, like.Op)
}

// ---------- Errors ----------

func TestSyntaxErrorHasPosition(t *testing.T) {
	_, err := parser.ParseSQL("SELEC * FROM t", mustProfile(t, "ansi"))
	require.Error(t, err)

	var synErr *parser.SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, 1, synErr.Pos.Line)
	assert.Contains(t, err.Error(), "syntax error at line 1")
}

func TestMultiStatementRejected(t *testing.T) {
	_, err := parser.ParseSQL("SELECT 1; SELECT 2", mustProfile(t, "ansi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi-statement")
}

func TestTrailingSemicolonAccepted(t *testing.T) {
	_, err := parser.ParseSQL("SELECT 1;", mustProfile(t, "ansi"))
	assert.NoError(t, err)
}

func TestUnterminatedString(t *testing.T) {
	_, err := parser.ParseSQL("SELECT 'oops FROM t", mustProfile(t, "ansi"))
	require.Error(t, err)
}

func TestStatementTooLarge(t *testing.T) {
	profile := mustProfile(t, "ansi", parser.WithMaxStatementBytes(16))
	_, err := parser.ParseSQL("SELECT aaaaaaaaaa FROM bbbbbbbbbb", profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestUnknownDialect(t *testing.T) {
	_, err := parser.NewProfile("no-such-dialect")
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindConfiguration))
}

func TestNonTextQueryRejected(t *testing.T) {
	q := query.SyntaxTree(&ast.SelectStmt{})
	_, err := parser.Parse(q, mustProfile(t, "ansi"))
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindUnsupportedQuery))
}

// ---------- Determinism ----------

func TestParseIsDeterministic(t *testing.T) {
	sql := `SELECT a, b, count(*) FROM t JOIN u ON t.id = u.id
		WHERE a > ? GROUP BY a, b ORDER BY a LIMIT 10`
	profile := mustProfile(t, "ansi")

	first, err := parser.ParseSQL(sql, profile)
	require.NoError(t, err)
	second, err := parser.ParseSQL(sql, profile)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))
}

func TestCommentsIgnored(t *testing.T) {
	sql := strings.Join([]string{
		"SELECT a -- trailing comment",
		"FROM /* block",
		"comment */ t",
	}, "\n")
	core := firstCore(t, parseOne(t, sql))
	require.Len(t, core.Columns, 1)
}
