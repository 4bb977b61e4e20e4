package exec_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstack-labs/relq/pkg/exec"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
)

func testSchema() plan.Schema {
	return plan.Schema{Columns: []plan.Column{
		{Name: "a", Type: plan.TypeInt},
		{Name: "b", Type: plan.TypeString},
	}}
}

func testRegistry(t *testing.T) *source.Registry {
	t.Helper()
	mem := source.NewMemory()
	mem.Define("t", testSchema(), []plan.Row{
		{int64(1), "x"},
		{int64(2), "y"},
		{int64(3), "z"},
	})
	r := source.NewRegistry()
	r.Register("mem", mem)
	return r
}

func col(i int, typ plan.Type) plan.ScalarExpr {
	return &plan.ColumnExpr{Index: i, Type: typ}
}

func lit(v plan.Value) plan.ScalarExpr {
	return &plan.LiteralExpr{Value: v}
}

func bin(op plan.BinaryOp, l, r plan.ScalarExpr) plan.ScalarExpr {
	return &plan.BinaryExpr{Op: op, Left: l, Right: r}
}

// scanFilterPlan builds: scan t, keep rows with a > bound, project (a, b).
func scanFilterPlan(t *testing.T, bound plan.ScalarExpr) *plan.Plan {
	t.Helper()
	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: testSchema()})
	filter := b.Add(plan.Node{
		Kind:      plan.KindFilter,
		Inputs:    []plan.NodeID{scan},
		Schema:    testSchema(),
		Predicate: bin(plan.OpGt, col(0, plan.TypeInt), bound),
	})
	b.Add(plan.Node{
		Kind:        plan.KindProject,
		Inputs:      []plan.NodeID{filter},
		Schema:      testSchema(),
		Projections: []plan.ScalarExpr{col(0, plan.TypeInt), col(1, plan.TypeString)},
	})
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestScanFilterProject(t *testing.T) {
	e := exec.New(testRegistry(t))
	cur, err := e.Execute(context.Background(), scanFilterPlan(t, lit(int64(1))))
	require.NoError(t, err)

	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{
		{int64(2), "y"},
		{int64(3), "z"},
	}, rows)
}

func TestParameterBinding(t *testing.T) {
	e := exec.New(testRegistry(t))
	p := scanFilterPlan(t, &plan.ParamExpr{Index: 0})

	cur, err := e.Execute(context.Background(), p, int64(2))
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{int64(3), "z"}}, rows)
}

func TestUnboundParameterRejectedEagerly(t *testing.T) {
	// The registry is empty: if the executor touched a source before
	// validating, this would fail differently.
	e := exec.New(source.NewRegistry())
	p := scanFilterPlan(t, &plan.ParamExpr{Index: 0})

	_, err := e.Execute(context.Background(), p)
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindInvalidPlan))
}

func TestInvalidPlanRejectedBeforeResources(t *testing.T) {
	// Filter without a predicate: structurally invalid.
	broken := &plan.Plan{Nodes: []plan.Node{
		{Kind: plan.KindScan, Table: "t", Schema: testSchema()},
		{Kind: plan.KindFilter, Inputs: []plan.NodeID{0}, Schema: testSchema()},
	}, Root: 1}

	e := exec.New(source.NewRegistry())
	_, err := e.Execute(context.Background(), broken)
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindInvalidPlan))
}

func TestCursorProtocol(t *testing.T) {
	e := exec.New(testRegistry(t))
	cur, err := e.Execute(context.Background(), scanFilterPlan(t, lit(int64(2))))
	require.NoError(t, err)

	assert.True(t, cur.HasNext())
	assert.True(t, cur.HasNext(), "HasNext must not consume the row")

	row, err := cur.Next()
	require.NoError(t, err)
	assert.Equal(t, plan.Row{int64(3), "z"}, row)

	assert.False(t, cur.HasNext())
	_, err = cur.Next()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, cur.Err())

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close(), "Close must be idempotent")

	_, err = cur.Next()
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindExecution))
}

func TestCancellationIsTerminal(t *testing.T) {
	e := exec.New(testRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())

	cur, err := e.Execute(ctx, scanFilterPlan(t, lit(int64(0))))
	require.NoError(t, err)
	defer cur.Close()

	require.True(t, cur.HasNext())
	_, err = cur.Next()
	require.NoError(t, err)

	cancel()
	assert.False(t, cur.HasNext())
	require.Error(t, cur.Err())
	assert.True(t, query.IsKind(cur.Err(), query.KindExecution))
	assert.ErrorIs(t, cur.Err(), context.Canceled)

	// The failure is terminal and stable.
	_, err = cur.Next()
	assert.Equal(t, cur.Err(), err)

	stats := cur.Stats()
	assert.Equal(t, stats.OperatorsOpened, stats.OperatorsClosed)
}

func TestRuntimeTypeErrorIsTerminal(t *testing.T) {
	// b + 1 fails on the first row because b is a string.
	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: testSchema()})
	outSchema := plan.Schema{Columns: []plan.Column{{Name: "v", Type: plan.TypeAny}}}
	b.Add(plan.Node{
		Kind:        plan.KindProject,
		Inputs:      []plan.NodeID{scan},
		Schema:      outSchema,
		Projections: []plan.ScalarExpr{bin(plan.OpAdd, col(1, plan.TypeString), lit(int64(1)))},
	})
	p, err := b.Build()
	require.NoError(t, err)

	e := exec.New(testRegistry(t))
	cur, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	defer cur.Close()

	assert.False(t, cur.HasNext())
	require.Error(t, cur.Err())
	assert.True(t, query.IsKind(cur.Err(), query.KindExecution))

	_, err = cur.Next()
	assert.Equal(t, cur.Err(), err)
}

func TestAggregate(t *testing.T) {
	mem := source.NewMemory()
	schema := plan.Schema{Columns: []plan.Column{
		{Name: "grp", Type: plan.TypeString},
		{Name: "v", Type: plan.TypeInt},
	}}
	mem.Define("t", schema, []plan.Row{
		{"a", int64(1)},
		{"b", int64(10)},
		{"a", int64(2)},
		{"b", int64(20)},
	})
	r := source.NewRegistry()
	r.Register("mem", mem)

	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: schema})
	b.Add(plan.Node{
		Kind:    plan.KindAggregate,
		Inputs:  []plan.NodeID{scan},
		Schema: plan.Schema{Columns: []plan.Column{
			{Name: "grp", Type: plan.TypeString},
			{Name: "count", Type: plan.TypeInt},
			{Name: "sum", Type: plan.TypeInt},
		}},
		GroupBy: []plan.ScalarExpr{col(0, plan.TypeString)},
		Aggs: []plan.AggCall{
			{Op: plan.AggCountStar},
			{Op: plan.AggSum, Arg: col(1, plan.TypeInt)},
		},
	})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(r).Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)

	// Groups come out in first-seen order.
	assert.Equal(t, []plan.Row{
		{"a", int64(2), int64(3)},
		{"b", int64(2), int64(30)},
	}, rows)
}

func TestGlobalAggregateOverEmptyInput(t *testing.T) {
	mem := source.NewMemory()
	schema := plan.Schema{Columns: []plan.Column{{Name: "v", Type: plan.TypeInt}}}
	mem.Define("t", schema, nil)
	r := source.NewRegistry()
	r.Register("mem", mem)

	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: schema})
	b.Add(plan.Node{
		Kind:   plan.KindAggregate,
		Inputs: []plan.NodeID{scan},
		Schema: plan.Schema{Columns: []plan.Column{
			{Name: "count", Type: plan.TypeInt},
			{Name: "sum", Type: plan.TypeInt},
		}},
		Aggs: []plan.AggCall{
			{Op: plan.AggCountStar},
			{Op: plan.AggSum, Arg: col(0, plan.TypeInt)},
		},
	})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(r).Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{int64(0), nil}}, rows)
}

func TestSortWithNulls(t *testing.T) {
	mem := source.NewMemory()
	schema := plan.Schema{Columns: []plan.Column{{Name: "v", Type: plan.TypeInt}}}
	mem.Define("t", schema, []plan.Row{
		{int64(2)}, {nil}, {int64(1)}, {int64(3)},
	})
	r := source.NewRegistry()
	r.Register("mem", mem)

	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: schema})
	b.Add(plan.Node{
		Kind:     plan.KindSort,
		Inputs:   []plan.NodeID{scan},
		Schema:   schema,
		SortKeys: []plan.SortKey{{Expr: col(0, plan.TypeInt)}},
	})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(r).Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)

	// Ascending puts NULL last by default.
	assert.Equal(t, []plan.Row{{int64(1)}, {int64(2)}, {int64(3)}, {nil}}, rows)
}

func TestLimitOffset(t *testing.T) {
	e := exec.New(testRegistry(t))

	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: testSchema()})
	b.Add(plan.Node{
		Kind:   plan.KindLimit,
		Inputs: []plan.NodeID{scan},
		Schema: testSchema(),
		Limit:  1,
		Offset: 1,
	})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{int64(2), "y"}}, rows)
}

func TestDistinct(t *testing.T) {
	mem := source.NewMemory()
	schema := plan.Schema{Columns: []plan.Column{{Name: "v", Type: plan.TypeString}}}
	mem.Define("t", schema, []plan.Row{{"x"}, {"y"}, {"x"}, {"y"}, {"z"}})
	r := source.NewRegistry()
	r.Register("mem", mem)

	b := plan.NewBuilder()
	scan := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: schema})
	b.Add(plan.Node{Kind: plan.KindDistinct, Inputs: []plan.NodeID{scan}, Schema: schema})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(r).Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{"x"}, {"y"}, {"z"}}, rows)
}

func TestLeftJoinPadsNulls(t *testing.T) {
	mem := source.NewMemory()
	left := plan.Schema{Columns: []plan.Column{{Name: "id", Type: plan.TypeInt}}}
	right := plan.Schema{Columns: []plan.Column{
		{Name: "id", Type: plan.TypeInt},
		{Name: "name", Type: plan.TypeString},
	}}
	mem.Define("l", left, []plan.Row{{int64(1)}, {int64(2)}})
	mem.Define("r", right, []plan.Row{{int64(1), "one"}})
	reg := source.NewRegistry()
	reg.Register("mem", mem)

	b := plan.NewBuilder()
	lscan := b.Add(plan.Node{Kind: plan.KindScan, Table: "l", Schema: left})
	rscan := b.Add(plan.Node{Kind: plan.KindScan, Table: "r", Schema: right})
	b.Add(plan.Node{
		Kind:      plan.KindJoin,
		Inputs:    []plan.NodeID{lscan, rscan},
		Schema:    left.Concat(right),
		JoinType:  plan.JoinLeft,
		Predicate: bin(plan.OpEq, col(0, plan.TypeInt), col(1, plan.TypeInt)),
	})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(reg).Execute(context.Background(), p)
	require.NoError(t, err)
	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{
		{int64(1), int64(1), "one"},
		{int64(2), nil, nil},
	}, rows)
}

func TestStatsCounters(t *testing.T) {
	e := exec.New(testRegistry(t))
	cur, err := e.Execute(context.Background(), scanFilterPlan(t, lit(int64(1))))
	require.NoError(t, err)

	rows, err := exec.Collect(cur)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	stats := cur.Stats()
	assert.Equal(t, int64(3), stats.RowsScanned)
	assert.Equal(t, int64(2), stats.RowsReturned)
	assert.Equal(t, stats.OperatorsOpened, stats.OperatorsClosed)
	assert.Equal(t, int64(3), stats.OperatorsOpened)
}

// trackingSource counts the scan iterators it hands out and how many of
// them were closed.
type trackingSource struct {
	inner  *source.Memory
	opened atomic.Int64
	closed atomic.Int64
}

func (s *trackingSource) Scan(ctx context.Context, table string, columns []string) (source.RowIterator, error) {
	it, err := s.inner.Scan(ctx, table, columns)
	if err != nil {
		return nil, err
	}
	s.opened.Add(1)
	return &trackingIterator{RowIterator: it, src: s}, nil
}

func (s *trackingSource) Close() error { return s.inner.Close() }

type trackingIterator struct {
	source.RowIterator
	src *trackingSource
}

func (it *trackingIterator) Close() error {
	it.src.closed.Add(1)
	return it.RowIterator.Close()
}

func trackingRegistry(t *testing.T) (*source.Registry, *trackingSource) {
	t.Helper()
	mem := source.NewMemory()
	mem.Define("t", testSchema(), []plan.Row{
		{int64(1), "x"},
		{int64(2), "y"},
	})
	src := &trackingSource{inner: mem}
	r := source.NewRegistry()
	r.Register("mem", src)
	return r, src
}

func TestJoinOpenFailureReleasesChildren(t *testing.T) {
	reg, src := trackingRegistry(t)

	b := plan.NewBuilder()
	left := b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: testSchema()})
	right := b.Add(plan.Node{Kind: plan.KindScan, Table: "missing", Schema: testSchema()})
	b.Add(plan.Node{
		Kind:     plan.KindJoin,
		JoinType: plan.JoinCross,
		Inputs:   []plan.NodeID{left, right},
		Schema:   testSchema().Concat(testSchema()),
	})
	p, err := b.Build()
	require.NoError(t, err)

	_, err = exec.New(reg).Execute(context.Background(), p)
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindExecution))

	// The left scan opened before the right side failed; it must not leak.
	assert.Equal(t, int64(1), src.opened.Load())
	assert.Equal(t, src.opened.Load(), src.closed.Load())
}

func TestExhaustionReleasesResources(t *testing.T) {
	reg, src := trackingRegistry(t)

	b := plan.NewBuilder()
	b.Add(plan.Node{Kind: plan.KindScan, Table: "t", Schema: testSchema()})
	p, err := b.Build()
	require.NoError(t, err)

	cur, err := exec.New(reg).Execute(context.Background(), p)
	require.NoError(t, err)
	for cur.HasNext() {
		_, err := cur.Next()
		require.NoError(t, err)
	}

	// Draining to EOF releases the operator tree without an explicit Close.
	assert.Equal(t, int64(1), src.opened.Load())
	assert.Equal(t, int64(1), src.closed.Load())
	stats := cur.Stats()
	assert.Equal(t, stats.OperatorsOpened, stats.OperatorsClosed)

	// Close after exhaustion stays a no-op.
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	assert.Equal(t, int64(1), src.closed.Load())
}
