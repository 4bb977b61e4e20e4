package exec

import (
	"context"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/collate"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
)

// execEnv carries per-execution state down the operator tree.
type execEnv struct {
	ctx      context.Context
	params   []plan.Value
	stats    *statsCounters
	registry *source.Registry
	coll     *collate.Collator
}

// operator is one node of a compiled execution tree. next returns io.EOF
// when the operator is exhausted. Operators are single-use: a new tree is
// compiled for every execution.
type operator interface {
	open(env *execEnv) error
	next(env *execEnv) (plan.Row, error)
	close() error
}

// compile builds a fresh operator tree for the plan rooted at id. A node
// referenced twice (a shared CTE) compiles into two independent operators.
func compile(p *plan.Plan, id plan.NodeID) (operator, error) {
	n := p.Node(id)
	inputs := make([]operator, len(n.Inputs))
	for i, in := range n.Inputs {
		child, err := compile(p, in)
		if err != nil {
			return nil, err
		}
		inputs[i] = child
	}

	switch n.Kind {
	case plan.KindValues:
		return &valuesOp{rows: n.Rows}, nil
	case plan.KindScan:
		columns := make([]string, n.Schema.Len())
		for i, c := range n.Schema.Columns {
			columns[i] = c.Name
		}
		return &scanOp{sourceName: n.Source, table: n.Table, columns: columns}, nil
	case plan.KindFilter:
		return &filterOp{in: inputs[0], pred: n.Predicate}, nil
	case plan.KindProject:
		return &projectOp{in: inputs[0], exprs: n.Projections}, nil
	case plan.KindJoin:
		return &joinOp{
			left:       inputs[0],
			right:      inputs[1],
			jt:         n.JoinType,
			pred:       n.Predicate,
			rightWidth: p.Node(n.Inputs[1]).Schema.Len(),
		}, nil
	case plan.KindAggregate:
		return &aggOp{in: inputs[0], groups: n.GroupBy, aggs: n.Aggs}, nil
	case plan.KindSort:
		return &sortOp{in: inputs[0], keys: n.SortKeys}, nil
	case plan.KindLimit:
		return &limitOp{in: inputs[0], limit: n.Limit, offset: n.Offset}, nil
	case plan.KindDistinct:
		return &distinctOp{in: inputs[0]}, nil
	default:
		return nil, query.NewError(query.KindInvalidPlan, "unknown operator kind %s", n.Kind)
	}
}

// opened/closed bookkeeping shared by all operators.
type opState struct {
	opened bool
	closed bool
}

func (s *opState) markOpen(env *execEnv) {
	s.opened = true
	env.stats.operatorsOpened.Add(1)
}

func (s *opState) markClosed() bool {
	if !s.opened || s.closed {
		return false
	}
	s.closed = true
	return true
}

// ---------- Values ----------

type valuesOp struct {
	opState
	rows []plan.Row
	pos  int
	env  *execEnv
}

func (o *valuesOp) open(env *execEnv) error {
	o.env = env
	o.markOpen(env)
	return nil
}

func (o *valuesOp) next(env *execEnv) (plan.Row, error) {
	if o.pos >= len(o.rows) {
		return nil, io.EOF
	}
	row := o.rows[o.pos]
	o.pos++
	return row, nil
}

func (o *valuesOp) close() error {
	if o.markClosed() {
		o.env.stats.operatorsClosed.Add(1)
	}
	return nil
}

// ---------- Scan ----------

type scanOp struct {
	opState
	sourceName string
	table      string
	columns    []string
	it         source.RowIterator
	env        *execEnv
}

func (o *scanOp) open(env *execEnv) error {
	o.env = env
	src, err := env.registry.Get(o.sourceName)
	if err != nil {
		return query.WrapError(query.KindExecution, err, "open scan of %q", o.table)
	}
	it, err := src.Scan(env.ctx, o.table, o.columns)
	if err != nil {
		return query.WrapError(query.KindExecution, err, "scan %q", o.table)
	}
	o.it = it
	o.markOpen(env)
	return nil
}

func (o *scanOp) next(env *execEnv) (plan.Row, error) {
	row, err := o.it.Next(env.ctx)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, query.WrapError(query.KindExecution, err, "scan %q", o.table)
	}
	env.stats.rowsScanned.Add(1)
	return row, nil
}

func (o *scanOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.it.Close()
}

// ---------- Filter ----------

type filterOp struct {
	opState
	in   operator
	pred plan.ScalarExpr
	env  *execEnv
}

func (o *filterOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *filterOp) next(env *execEnv) (plan.Row, error) {
	for {
		row, err := o.in.next(env)
		if err != nil {
			return nil, err
		}
		v, err := eval(o.pred, row, env.params)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			return row, nil
		}
	}
}

func (o *filterOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}

// ---------- Project ----------

type projectOp struct {
	opState
	in    operator
	exprs []plan.ScalarExpr
	env   *execEnv
}

func (o *projectOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *projectOp) next(env *execEnv) (plan.Row, error) {
	row, err := o.in.next(env)
	if err != nil {
		return nil, err
	}
	out := make(plan.Row, len(o.exprs))
	for i, e := range o.exprs {
		v, err := eval(e, row, env.params)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (o *projectOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}

// ---------- Join ----------

// joinOp is a nested-loop join. The right input is materialized on open;
// the left side streams.
type joinOp struct {
	opState
	left, right operator
	jt          plan.JoinType
	pred        plan.ScalarExpr
	rightWidth  int

	rightRows []plan.Row
	cur       plan.Row
	rightIdx  int
	matched   bool
	env       *execEnv
}

func (o *joinOp) open(env *execEnv) error {
	o.env = env
	if err := o.left.open(env); err != nil {
		return err
	}
	if err := o.materializeRight(env); err != nil {
		// Children opened so far must not outlive a failed open.
		_ = o.left.close()
		_ = o.right.close()
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *joinOp) materializeRight(env *execEnv) error {
	if err := o.right.open(env); err != nil {
		return err
	}
	for {
		if err := env.ctx.Err(); err != nil {
			return query.WrapError(query.KindExecution, err, "join canceled")
		}
		row, err := o.right.next(env)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		o.rightRows = append(o.rightRows, row)
	}
}

func (o *joinOp) next(env *execEnv) (plan.Row, error) {
	for {
		if o.cur == nil {
			row, err := o.left.next(env)
			if err != nil {
				return nil, err
			}
			o.cur = row
			o.rightIdx = 0
			o.matched = false
		}

		for o.rightIdx < len(o.rightRows) {
			right := o.rightRows[o.rightIdx]
			o.rightIdx++

			combined := make(plan.Row, 0, len(o.cur)+len(right))
			combined = append(combined, o.cur...)
			combined = append(combined, right...)

			if o.pred != nil {
				v, err := eval(o.pred, combined, env.params)
				if err != nil {
					return nil, err
				}
				if b, ok := v.(bool); !ok || !b {
					continue
				}
			}
			o.matched = true
			return combined, nil
		}

		// Left rows without a match pad the right side with NULLs.
		if o.jt == plan.JoinLeft && !o.matched {
			combined := make(plan.Row, len(o.cur)+o.rightWidth)
			copy(combined, o.cur)
			o.cur = nil
			return combined, nil
		}
		o.cur = nil
	}
}

func (o *joinOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	err := o.left.close()
	if rerr := o.right.close(); err == nil {
		err = rerr
	}
	return err
}

// ---------- Aggregate ----------

type aggState struct {
	key    plan.Row // group key values
	count  int64    // for AVG
	sum    plan.Value
	minmax plan.Value
	n      int64           // COUNT result
	seen   map[string]bool // DISTINCT values
}

type aggOp struct {
	opState
	in     operator
	groups []plan.ScalarExpr
	aggs   []plan.AggCall

	out []plan.Row
	pos int
	ran bool
	env *execEnv
}

func (o *aggOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *aggOp) next(env *execEnv) (plan.Row, error) {
	if !o.ran {
		if err := o.run(env); err != nil {
			return nil, err
		}
		o.ran = true
	}
	if o.pos >= len(o.out) {
		return nil, io.EOF
	}
	row := o.out[o.pos]
	o.pos++
	return row, nil
}

// run drains the input and builds one output row per group. Groups are
// emitted in first-seen order so results are deterministic.
func (o *aggOp) run(env *execEnv) error {
	states := make(map[string][]*aggState)
	var order []string

	for {
		if err := env.ctx.Err(); err != nil {
			return query.WrapError(query.KindExecution, err, "aggregation canceled")
		}
		row, err := o.in.next(env)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		keyVals := make(plan.Row, len(o.groups))
		for i, g := range o.groups {
			v, err := eval(g, row, env.params)
			if err != nil {
				return err
			}
			keyVals[i] = v
		}
		var kb strings.Builder
		encodeKey(&kb, keyVals)
		key := kb.String()

		group, ok := states[key]
		if !ok {
			group = make([]*aggState, len(o.aggs))
			for i := range group {
				group[i] = &aggState{key: keyVals}
				if o.aggs[i].Distinct {
					group[i].seen = make(map[string]bool)
				}
			}
			states[key] = group
			order = append(order, key)
		}

		for i, call := range o.aggs {
			if err := accumulate(group[i], call, row, env.params); err != nil {
				return err
			}
		}
	}

	// A global aggregate over zero rows still produces one row.
	if len(order) == 0 && len(o.groups) == 0 {
		group := make([]*aggState, len(o.aggs))
		for i := range group {
			group[i] = &aggState{key: plan.Row{}}
		}
		states[""] = group
		order = append(order, "")
	}

	for _, key := range order {
		group := states[key]
		var keyVals plan.Row
		if len(group) > 0 {
			keyVals = group[0].key
		}
		row := make(plan.Row, 0, len(o.groups)+len(o.aggs))
		row = append(row, keyVals...)
		for i, call := range o.aggs {
			row = append(row, finalize(group[i], call))
		}
		o.out = append(o.out, row)
	}
	return nil
}

func accumulate(st *aggState, call plan.AggCall, row plan.Row, params []plan.Value) error {
	if call.Op == plan.AggCountStar {
		st.n++
		return nil
	}
	v, err := eval(call.Arg, row, params)
	if err != nil {
		return err
	}
	if v == nil {
		return nil // aggregates skip NULL inputs
	}
	if st.seen != nil {
		var kb strings.Builder
		encodeKey(&kb, []plan.Value{v})
		key := kb.String()
		if st.seen[key] {
			return nil
		}
		st.seen[key] = true
	}

	switch call.Op {
	case plan.AggCount:
		st.n++
	case plan.AggSum, plan.AggAvg:
		st.count++
		if st.sum == nil {
			st.sum = v
			return nil
		}
		sum, err := evalArithmetic(plan.OpAdd, st.sum, v)
		if err != nil {
			return err
		}
		st.sum = sum
	case plan.AggMin, plan.AggMax:
		if st.minmax == nil {
			st.minmax = v
			return nil
		}
		c, err := compareValues(v, st.minmax)
		if err != nil {
			return err
		}
		if (call.Op == plan.AggMin && c < 0) || (call.Op == plan.AggMax && c > 0) {
			st.minmax = v
		}
	}
	return nil
}

func finalize(st *aggState, call plan.AggCall) plan.Value {
	switch call.Op {
	case plan.AggCount, plan.AggCountStar:
		return st.n
	case plan.AggSum:
		return st.sum // NULL over empty input
	case plan.AggAvg:
		if st.count == 0 {
			return nil
		}
		f, err := toFloat(st.sum)
		if err != nil {
			return nil
		}
		return f / float64(st.count)
	default:
		return st.minmax
	}
}

func (o *aggOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}

// ---------- Sort ----------

type sortOp struct {
	opState
	in   operator
	keys []plan.SortKey

	rows []plan.Row
	pos  int
	ran  bool
	env  *execEnv
}

func (o *sortOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *sortOp) next(env *execEnv) (plan.Row, error) {
	if !o.ran {
		if err := o.run(env); err != nil {
			return nil, err
		}
		o.ran = true
	}
	if o.pos >= len(o.rows) {
		return nil, io.EOF
	}
	row := o.rows[o.pos]
	o.pos++
	return row, nil
}

func (o *sortOp) run(env *execEnv) error {
	for {
		if err := env.ctx.Err(); err != nil {
			return query.WrapError(query.KindExecution, err, "sort canceled")
		}
		row, err := o.in.next(env)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		o.rows = append(o.rows, row)
	}

	type keyed struct {
		row  plan.Row
		vals []plan.Value
	}
	keyedRows := make([]keyed, len(o.rows))
	for i, row := range o.rows {
		vals := make([]plan.Value, len(o.keys))
		for j, k := range o.keys {
			v, err := eval(k.Expr, row, env.params)
			if err != nil {
				return err
			}
			vals[j] = v
		}
		keyedRows[i] = keyed{row: row, vals: vals}
	}

	coll := env.coll
	var sortErr error
	sort.SliceStable(keyedRows, func(a, b int) bool {
		for j, k := range o.keys {
			c, err := compareSortValues(coll, keyedRows[a].vals[j], keyedRows[b].vals[j], k)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}

	for i, kr := range keyedRows {
		o.rows[i] = kr.row
	}
	return nil
}

// compareSortValues orders two sort key values honoring direction and null
// placement. By default NULLs sort last ascending and first descending.
func compareSortValues(coll *collate.Collator, a, b plan.Value, key plan.SortKey) (int, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, nil
		}
		nullsFirst := key.Desc
		if key.NullsFirst != nil {
			nullsFirst = *key.NullsFirst
		}
		nullCmp := 1
		if nullsFirst {
			nullCmp = -1
		}
		if a == nil {
			return nullCmp, nil
		}
		return -nullCmp, nil
	}

	var c int
	if as, ok := a.(string); ok {
		if bs, ok2 := b.(string); ok2 {
			c = coll.CompareString(as, bs)
		} else {
			return 0, evalError("cannot compare %T with %T", a, b)
		}
	} else {
		var err error
		c, err = compareValues(a, b)
		if err != nil {
			return 0, err
		}
	}
	if key.Desc {
		c = -c
	}
	return c, nil
}

func (o *sortOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}

// ---------- Limit ----------

type limitOp struct {
	opState
	in     operator
	limit  int64 // -1 means no limit
	offset int64

	skipped  int64
	returned int64
	env      *execEnv
}

func (o *limitOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.markOpen(env)
	return nil
}

func (o *limitOp) next(env *execEnv) (plan.Row, error) {
	if o.limit >= 0 && o.returned >= o.limit {
		return nil, io.EOF
	}
	for o.skipped < o.offset {
		if _, err := o.in.next(env); err != nil {
			return nil, err
		}
		o.skipped++
	}
	row, err := o.in.next(env)
	if err != nil {
		return nil, err
	}
	o.returned++
	return row, nil
}

func (o *limitOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}

// ---------- Distinct ----------

type distinctOp struct {
	opState
	in   operator
	seen map[string]bool
	env  *execEnv
}

func (o *distinctOp) open(env *execEnv) error {
	o.env = env
	if err := o.in.open(env); err != nil {
		return err
	}
	o.seen = make(map[string]bool)
	o.markOpen(env)
	return nil
}

func (o *distinctOp) next(env *execEnv) (plan.Row, error) {
	for {
		row, err := o.in.next(env)
		if err != nil {
			return nil, err
		}
		var kb strings.Builder
		encodeKey(&kb, row)
		key := kb.String()
		if o.seen[key] {
			continue
		}
		o.seen[key] = true
		return row, nil
	}
}

func (o *distinctOp) close() error {
	if !o.markClosed() {
		return nil
	}
	o.env.stats.operatorsClosed.Add(1)
	return o.in.close()
}
