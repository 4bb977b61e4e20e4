package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstack-labs/relq/pkg/plan"
)

func scanSchema() plan.Schema {
	return plan.NewSchema(
		plan.Column{Name: "a", Type: plan.TypeInt},
		plan.Column{Name: "b", Type: plan.TypeString},
	)
}

func scanNode() plan.Node {
	return plan.Node{Kind: plan.KindScan, Table: "t", Schema: scanSchema()}
}

func TestBuilderProducesValidPlan(t *testing.T) {
	b := plan.NewBuilder()
	scan := b.Add(scanNode())
	b.Add(plan.Node{
		Kind:   plan.KindFilter,
		Inputs: []plan.NodeID{scan},
		Schema: scanSchema(),
		Predicate: &plan.BinaryExpr{
			Op:    plan.OpGt,
			Left:  &plan.ColumnExpr{Index: 0, Type: plan.TypeInt},
			Right: &plan.LiteralExpr{Value: int64(1)},
		},
	})

	p, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "(a int, b string)", p.OutputSchema().String())
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	var p *plan.Plan
	assert.ErrorIs(t, p.Validate(), plan.ErrEmptyPlan)
	assert.ErrorIs(t, (&plan.Plan{Root: plan.InvalidNode}).Validate(), plan.ErrEmptyPlan)
}

func TestValidateRejectsWrongArity(t *testing.T) {
	p := &plan.Plan{
		Nodes: []plan.Node{{Kind: plan.KindFilter}},
		Root:  0,
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 inputs, want 1")
}

func TestValidateRejectsCycle(t *testing.T) {
	p := &plan.Plan{
		Nodes: []plan.Node{
			{Kind: plan.KindFilter, Inputs: []plan.NodeID{1},
				Predicate: &plan.LiteralExpr{Value: true}},
			{Kind: plan.KindFilter, Inputs: []plan.NodeID{0},
				Predicate: &plan.LiteralExpr{Value: true}},
		},
		Root: 0,
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsOutOfRangeColumn(t *testing.T) {
	b := plan.NewBuilder()
	scan := b.Add(scanNode())
	b.Add(plan.Node{
		Kind:      plan.KindFilter,
		Inputs:    []plan.NodeID{scan},
		Schema:    scanSchema(),
		Predicate: &plan.ColumnExpr{Index: 9, Type: plan.TypeBool},
	})

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond input width")
}

func TestValidateRejectsMissingTable(t *testing.T) {
	p := &plan.Plan{
		Nodes: []plan.Node{{Kind: plan.KindScan, Schema: scanSchema()}},
		Root:  0,
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing table name")
}

func TestSchemaOrdinalAndConcat(t *testing.T) {
	s := scanSchema()
	assert.Equal(t, 0, s.Ordinal("a"))
	assert.Equal(t, 1, s.Ordinal("b"))
	assert.Equal(t, -1, s.Ordinal("missing"))

	joined := s.Concat(plan.NewSchema(plan.Column{Name: "c", Type: plan.TypeFloat}))
	assert.Equal(t, 3, joined.Len())
	assert.Equal(t, "(a int, b string, c float)", joined.String())
	assert.False(t, joined.Equal(s))
	assert.True(t, s.Equal(scanSchema()))
}

func TestExplainRendersTree(t *testing.T) {
	b := plan.NewBuilder()
	scan := b.Add(scanNode())
	b.Add(plan.Node{
		Kind:   plan.KindFilter,
		Inputs: []plan.NodeID{scan},
		Schema: scanSchema(),
		Predicate: &plan.BinaryExpr{
			Op:    plan.OpGt,
			Left:  &plan.ColumnExpr{Index: 0, Type: plan.TypeInt},
			Right: &plan.LiteralExpr{Value: int64(1)},
		},
	})

	p, err := b.Build()
	require.NoError(t, err)

	out := p.Explain()
	assert.Contains(t, out, "Filter [($0 > 1)]")
	assert.Contains(t, out, "  Scan t (a int, b string)")
}
