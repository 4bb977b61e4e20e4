package optimizer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/catalog"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/optimizer"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

func testCatalog() *catalog.Memory {
	cat := catalog.NewMemory()
	cat.Define("t", &plan.Schema{Columns: []plan.Column{
		{Name: "a", Type: plan.TypeInt},
		{Name: "b", Type: plan.TypeString},
	}})
	cat.Define("u", &plan.Schema{Columns: []plan.Column{
		{Name: "id", Type: plan.TypeInt},
		{Name: "a", Type: plan.TypeInt},
	}})
	return cat
}

func parseTree(t *testing.T, sql string) *ast.SelectStmt {
	t.Helper()
	profile, err := parser.NewProfile("duckdb")
	require.NoError(t, err)
	tree, err := parser.ParseSQL(sql, profile)
	require.NoError(t, err)
	return tree
}

func lower(t *testing.T, sql string) *plan.Plan {
	t.Helper()
	opt := optimizer.New(testCatalog())
	p, err := opt.Optimize(context.Background(), parseTree(t, sql), nil)
	require.NoError(t, err)
	return p
}

func lowerErr(t *testing.T, sql string) error {
	t.Helper()
	opt := optimizer.New(testCatalog())
	_, err := opt.Optimize(context.Background(), parseTree(t, sql), nil)
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindOptimize), "want optimize error, got %v", err)
	return err
}

func kinds(p *plan.Plan) []plan.Kind {
	out := make([]plan.Kind, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.Kind
	}
	return out
}

func TestLowerSimpleSelect(t *testing.T) {
	p := lower(t, "SELECT a, b FROM t WHERE a > 1")

	assert.Equal(t, []plan.Kind{plan.KindScan, plan.KindFilter, plan.KindProject}, kinds(p))
	assert.Equal(t, "(a int, b string)", p.OutputSchema().String())
}

func TestLowerSelectStar(t *testing.T) {
	p := lower(t, "SELECT * FROM t")
	assert.Equal(t, []plan.Kind{plan.KindScan, plan.KindProject}, kinds(p))
	assert.Equal(t, 2, p.OutputSchema().Len())
}

func TestLowerProjectionAlias(t *testing.T) {
	p := lower(t, "SELECT a AS x FROM t")
	assert.Equal(t, "x", p.OutputSchema().Columns[0].Name)
}

func TestLowerExpressionColumnNames(t *testing.T) {
	p := lower(t, "SELECT a + 1, b FROM t")
	assert.Equal(t, "expr0", p.OutputSchema().Columns[0].Name)
	assert.Equal(t, "b", p.OutputSchema().Columns[1].Name)
}

func TestLowerGroupBy(t *testing.T) {
	p := lower(t, "SELECT b, count(*), sum(a) FROM t GROUP BY b")

	assert.Equal(t, []plan.Kind{plan.KindScan, plan.KindAggregate, plan.KindProject}, kinds(p))

	agg := p.Nodes[1]
	require.Len(t, agg.GroupBy, 1)
	require.Len(t, agg.Aggs, 2)
	assert.Equal(t, plan.AggCountStar, agg.Aggs[0].Op)
	assert.Equal(t, plan.AggSum, agg.Aggs[1].Op)

	assert.Equal(t, plan.TypeInt, p.OutputSchema().Columns[1].Type)
}

func TestLowerHaving(t *testing.T) {
	p := lower(t, "SELECT b FROM t GROUP BY b HAVING count(*) > 1")
	assert.Equal(t, []plan.Kind{
		plan.KindScan, plan.KindAggregate, plan.KindFilter, plan.KindProject,
	}, kinds(p))
}

func TestLowerOrderByAlias(t *testing.T) {
	p := lower(t, "SELECT a AS x FROM t ORDER BY x DESC")
	assert.Equal(t, []plan.Kind{plan.KindScan, plan.KindProject, plan.KindSort}, kinds(p))
	assert.True(t, p.Nodes[2].SortKeys[0].Desc)
}

func TestLowerOrderByUnprojectedColumn(t *testing.T) {
	// b is not projected, so the sort happens before the projection.
	p := lower(t, "SELECT a FROM t ORDER BY b")
	assert.Equal(t, []plan.Kind{plan.KindScan, plan.KindSort, plan.KindProject}, kinds(p))
}

func TestLowerDistinctOrderByUnprojected(t *testing.T) {
	err := lowerErr(t, "SELECT DISTINCT a FROM t ORDER BY b")
	assert.Contains(t, err.Error(), "DISTINCT")
}

func TestLowerLimitOffset(t *testing.T) {
	p := lower(t, "SELECT a FROM t LIMIT 10 OFFSET 5")
	last := p.Nodes[p.Root]
	assert.Equal(t, plan.KindLimit, last.Kind)
	assert.Equal(t, int64(10), last.Limit)
	assert.Equal(t, int64(5), last.Offset)
}

func TestLowerLimitRequiresLiteral(t *testing.T) {
	err := lowerErr(t, "SELECT a FROM t LIMIT a")
	assert.Contains(t, err.Error(), "LIMIT")
}

func TestLowerJoinUsing(t *testing.T) {
	p := lower(t, "SELECT t.b, u.id FROM t JOIN u USING (a)")

	var join *plan.Node
	for i := range p.Nodes {
		if p.Nodes[i].Kind == plan.KindJoin {
			join = &p.Nodes[i]
		}
	}
	require.NotNil(t, join)
	assert.Equal(t, plan.JoinInner, join.JoinType)
	assert.NotNil(t, join.Predicate)
	assert.Equal(t, 4, join.Schema.Len())
}

func TestLowerNaturalJoin(t *testing.T) {
	// t and u share column a.
	p := lower(t, "SELECT * FROM t NATURAL JOIN u")

	var join *plan.Node
	for i := range p.Nodes {
		if p.Nodes[i].Kind == plan.KindJoin {
			join = &p.Nodes[i]
		}
	}
	require.NotNil(t, join)
	assert.NotNil(t, join.Predicate)

	// The shared column appears once in the output.
	names := make([]string, 0)
	for _, c := range p.OutputSchema().Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a", "b", "id"}, names)
}

func TestLowerCrossJoin(t *testing.T) {
	p := lower(t, "SELECT * FROM t, u")
	var join *plan.Node
	for i := range p.Nodes {
		if p.Nodes[i].Kind == plan.KindJoin {
			join = &p.Nodes[i]
		}
	}
	require.NotNil(t, join)
	assert.Equal(t, plan.JoinCross, join.JoinType)
	assert.Nil(t, join.Predicate)
}

func TestLowerDerivedTable(t *testing.T) {
	p := lower(t, "SELECT s.a FROM (SELECT a FROM t WHERE a > 1) s")
	assert.Equal(t, plan.KindProject, p.Nodes[p.Root].Kind)
	assert.Equal(t, 1, p.OutputSchema().Len())
}

func TestLowerCTESharesNode(t *testing.T) {
	p := lower(t, "WITH c AS (SELECT a FROM t) SELECT * FROM c JOIN c x ON c.a = x.a")

	// The CTE body is planned once: exactly one scan of t.
	scans := 0
	for _, n := range p.Nodes {
		if n.Kind == plan.KindScan {
			scans++
		}
	}
	assert.Equal(t, 1, scans)
}

func TestLowerSourceQualifier(t *testing.T) {
	p := lower(t, "SELECT a FROM pg.t")
	assert.Equal(t, "pg", p.Nodes[0].Source)
	assert.Equal(t, "t", p.Nodes[0].Table)
}

func TestLowerDefaultSourceFromConfig(t *testing.T) {
	opt := optimizer.New(testCatalog())
	cfg := &query.FrameworkConfig{DefaultSource: "duck"}
	p, err := opt.Optimize(context.Background(), parseTree(t, "SELECT a FROM t"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "duck", p.Nodes[0].Source)
}

func TestLowerSugarRewrites(t *testing.T) {
	// IN lists and BETWEEN lower into plain comparisons; the plan holds a
	// Filter whose predicate validates against the scan schema.
	p := lower(t, "SELECT a FROM t WHERE a IN (1, 2) AND a BETWEEN 0 AND 5")
	assert.Equal(t, plan.KindFilter, p.Nodes[1].Kind)
	require.NoError(t, p.Validate())
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"unknown table", "SELECT a FROM missing", "not found"},
		{"unknown column", "SELECT nope FROM t", "not found"},
		{"ambiguous column", "SELECT a FROM t, u", "ambiguous"},
		{"set operation", "SELECT a FROM t UNION SELECT a FROM t", "set operations"},
		{"recursive cte", "WITH RECURSIVE c AS (SELECT 1) SELECT * FROM c", "recursive"},
		{"subquery in where", "SELECT a FROM t WHERE a IN (SELECT a FROM u)", "subquer"},
		{"exists", "SELECT a FROM t WHERE EXISTS (SELECT 1)", "subquer"},
		{"right join", "SELECT * FROM t RIGHT JOIN u ON t.a = u.a", "not supported"},
		{"ungrouped column", "SELECT a, count(*) FROM t", "GROUP BY"},
		{"nested aggregate", "SELECT sum(count(a)) FROM t", "nested"},
		{"unknown function", "SELECT frobnicate(a) FROM t", "unknown function"},
		{"having without group", "SELECT a FROM t HAVING a > 1", "HAVING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lowerErr(t, tt.sql)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLowerDialectAggregateMessage(t *testing.T) {
	d, ok := dialect.Get("duckdb")
	require.True(t, ok)
	opt := optimizer.New(testCatalog(), optimizer.WithDialect(d))
	_, err := opt.Optimize(context.Background(), parseTree(t, "SELECT median(a) FROM t"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported by this optimizer")
}
