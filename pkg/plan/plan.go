package plan

import (
	"errors"
	"fmt"
)

// NodeID indexes a node in the plan arena.
type NodeID int

// InvalidNode marks an unset node reference.
const InvalidNode NodeID = -1

// Kind identifies the relational operator of a node.
type Kind int

// Node kinds.
const (
	KindValues Kind = iota
	KindScan
	KindFilter
	KindProject
	KindJoin
	KindAggregate
	KindSort
	KindLimit
	KindDistinct
)

// String returns the operator name.
func (k Kind) String() string {
	switch k {
	case KindValues:
		return "Values"
	case KindScan:
		return "Scan"
	case KindFilter:
		return "Filter"
	case KindProject:
		return "Project"
	case KindJoin:
		return "Join"
	case KindAggregate:
		return "Aggregate"
	case KindSort:
		return "Sort"
	case KindLimit:
		return "Limit"
	case KindDistinct:
		return "Distinct"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// JoinType is the join variant of a Join node.
type JoinType int

// Join variants.
const (
	JoinInner JoinType = iota
	JoinLeft
	JoinCross
)

// String returns the SQL join keyword.
func (t JoinType) String() string {
	switch t {
	case JoinLeft:
		return "LEFT"
	case JoinCross:
		return "CROSS"
	default:
		return "INNER"
	}
}

// Node is one relational operator in the arena. Only the fields relevant to
// a node's Kind are set; Schema always describes the node's output rows.
type Node struct {
	Kind   Kind
	Inputs []NodeID
	Schema Schema

	// Scan
	Source string // source provider name ("" = engine default)
	Table  string

	// Values
	Rows []Row

	// Filter / Join
	Predicate ScalarExpr
	JoinType  JoinType

	// Project
	Projections []ScalarExpr

	// Aggregate
	GroupBy []ScalarExpr
	Aggs    []AggCall

	// Sort
	SortKeys []SortKey

	// Limit (-1 means absent)
	Limit  int64
	Offset int64
}

// Plan is a relational plan: an arena of nodes with a single root.
// Plans are immutable once handed to an executor; each execution compiles
// its own operator tree from the description.
type Plan struct {
	Nodes []Node
	Root  NodeID
}

// ErrEmptyPlan is returned by Validate for a plan with no nodes or no root.
var ErrEmptyPlan = errors.New("plan has no root node")

// Builder appends nodes to an arena and tracks the root.
type Builder struct {
	nodes []Node
	root  NodeID
}

// NewBuilder returns an empty plan builder.
func NewBuilder() *Builder {
	return &Builder{root: InvalidNode}
}

// Add appends a node and returns its ID. The last node added becomes the
// root unless SetRoot overrides it.
func (b *Builder) Add(n Node) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)
	b.root = id
	return id
}

// SetRoot overrides the plan root.
func (b *Builder) SetRoot(id NodeID) {
	b.root = id
}

// Build assembles and validates the plan.
func (b *Builder) Build() (*Plan, error) {
	p := &Plan{Nodes: b.nodes, Root: b.root}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Node returns the node with the given ID.
func (p *Plan) Node(id NodeID) *Node {
	return &p.Nodes[id]
}

// OutputSchema returns the schema of the root node.
func (p *Plan) OutputSchema() Schema {
	return p.Nodes[p.Root].Schema
}

// Validate checks the structural invariants: a root exists, every referenced
// ID is in bounds, the graph is acyclic, each node has the input arity its
// kind requires, and every node's declared schema is consistent with its
// inputs. Executors call this before acquiring any execution resource.
func (p *Plan) Validate() error {
	if p == nil || len(p.Nodes) == 0 || p.Root == InvalidNode {
		return ErrEmptyPlan
	}
	if int(p.Root) < 0 || int(p.Root) >= len(p.Nodes) {
		return fmt.Errorf("root node %d out of range [0,%d)", p.Root, len(p.Nodes))
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(p.Nodes))

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if int(id) < 0 || int(id) >= len(p.Nodes) {
			return fmt.Errorf("node reference %d out of range [0,%d)", id, len(p.Nodes))
		}
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("plan contains a cycle through node %d", id)
		}
		state[id] = visiting
		n := &p.Nodes[id]
		if err := p.checkNode(id, n); err != nil {
			return err
		}
		for _, in := range n.Inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	return visit(p.Root)
}

// arity returns the required input count per kind.
func arity(k Kind) int {
	switch k {
	case KindValues, KindScan:
		return 0
	case KindJoin:
		return 2
	default:
		return 1
	}
}

func (p *Plan) checkNode(id NodeID, n *Node) error {
	if got, want := len(n.Inputs), arity(n.Kind); got != want {
		return fmt.Errorf("node %d (%s): %d inputs, want %d", id, n.Kind, got, want)
	}
	for _, in := range n.Inputs {
		if int(in) < 0 || int(in) >= len(p.Nodes) {
			return fmt.Errorf("node %d (%s): input %d out of range", id, n.Kind, in)
		}
	}

	inSchema := func(i int) Schema { return p.Nodes[n.Inputs[i]].Schema }

	checkExpr := func(e ScalarExpr, width int, what string) error {
		if e == nil {
			return nil
		}
		if m := maxOrdinal(e); m >= width {
			return fmt.Errorf("node %d (%s): %s references column %d beyond input width %d",
				id, n.Kind, what, m, width)
		}
		return nil
	}

	switch n.Kind {
	case KindValues:
		for i, row := range n.Rows {
			if len(row) != n.Schema.Len() {
				return fmt.Errorf("node %d (Values): row %d has %d values, schema has %d columns",
					id, i, len(row), n.Schema.Len())
			}
		}
	case KindScan:
		if n.Table == "" {
			return fmt.Errorf("node %d (Scan): missing table name", id)
		}
	case KindFilter:
		if n.Predicate == nil {
			return fmt.Errorf("node %d (Filter): missing predicate", id)
		}
		if !n.Schema.Equal(inSchema(0)) {
			return fmt.Errorf("node %d (Filter): output schema %s differs from input %s",
				id, n.Schema, inSchema(0))
		}
		return checkExpr(n.Predicate, inSchema(0).Len(), "predicate")
	case KindProject:
		if len(n.Projections) != n.Schema.Len() {
			return fmt.Errorf("node %d (Project): %d projections, schema has %d columns",
				id, len(n.Projections), n.Schema.Len())
		}
		for i, e := range n.Projections {
			if err := checkExpr(e, inSchema(0).Len(), fmt.Sprintf("projection %d", i)); err != nil {
				return err
			}
		}
	case KindJoin:
		combined := inSchema(0).Len() + inSchema(1).Len()
		if n.Schema.Len() != combined {
			return fmt.Errorf("node %d (Join): output width %d, inputs combine to %d",
				id, n.Schema.Len(), combined)
		}
		return checkExpr(n.Predicate, combined, "join condition")
	case KindAggregate:
		if want := len(n.GroupBy) + len(n.Aggs); n.Schema.Len() != want {
			return fmt.Errorf("node %d (Aggregate): output width %d, want %d groups + %d aggregates",
				id, n.Schema.Len(), len(n.GroupBy), len(n.Aggs))
		}
		width := inSchema(0).Len()
		for _, g := range n.GroupBy {
			if err := checkExpr(g, width, "group key"); err != nil {
				return err
			}
		}
		for _, a := range n.Aggs {
			if err := checkExpr(a.Arg, width, "aggregate argument"); err != nil {
				return err
			}
		}
	case KindSort:
		if len(n.SortKeys) == 0 {
			return fmt.Errorf("node %d (Sort): no sort keys", id)
		}
		if !n.Schema.Equal(inSchema(0)) {
			return fmt.Errorf("node %d (Sort): output schema %s differs from input %s",
				id, n.Schema, inSchema(0))
		}
		for _, k := range n.SortKeys {
			if err := checkExpr(k.Expr, inSchema(0).Len(), "sort key"); err != nil {
				return err
			}
		}
	case KindLimit:
		if !n.Schema.Equal(inSchema(0)) {
			return fmt.Errorf("node %d (Limit): output schema %s differs from input %s",
				id, n.Schema, inSchema(0))
		}
	case KindDistinct:
		if !n.Schema.Equal(inSchema(0)) {
			return fmt.Errorf("node %d (Distinct): output schema %s differs from input %s",
				id, n.Schema, inSchema(0))
		}
	default:
		return fmt.Errorf("node %d: unknown kind %d", id, n.Kind)
	}
	return nil
}
