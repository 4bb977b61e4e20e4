package plan

import (
	"fmt"
	"strings"
)

// Explain renders the plan as an indented operator tree rooted at Root.
// Shared subtrees are printed once per reference.
func (p *Plan) Explain() string {
	var b strings.Builder
	p.explainNode(&b, p.Root, 0)
	return b.String()
}

func (p *Plan) explainNode(b *strings.Builder, id NodeID, depth int) {
	n := &p.Nodes[id]
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Kind.String())

	switch n.Kind {
	case KindScan:
		if n.Source != "" {
			fmt.Fprintf(b, " %s.%s", n.Source, n.Table)
		} else {
			fmt.Fprintf(b, " %s", n.Table)
		}
	case KindValues:
		fmt.Fprintf(b, " (%d rows)", len(n.Rows))
	case KindFilter:
		fmt.Fprintf(b, " [%s]", n.Predicate)
	case KindProject:
		exprs := make([]string, len(n.Projections))
		for i, e := range n.Projections {
			exprs[i] = e.String()
		}
		fmt.Fprintf(b, " [%s]", strings.Join(exprs, ", "))
	case KindJoin:
		b.WriteString(" " + n.JoinType.String())
		if n.Predicate != nil {
			fmt.Fprintf(b, " [%s]", n.Predicate)
		}
	case KindAggregate:
		parts := make([]string, 0, len(n.GroupBy)+len(n.Aggs))
		for _, g := range n.GroupBy {
			parts = append(parts, g.String())
		}
		for _, a := range n.Aggs {
			parts = append(parts, a.String())
		}
		fmt.Fprintf(b, " [%s]", strings.Join(parts, ", "))
	case KindSort:
		keys := make([]string, len(n.SortKeys))
		for i, k := range n.SortKeys {
			dir := "ASC"
			if k.Desc {
				dir = "DESC"
			}
			keys[i] = k.Expr.String() + " " + dir
		}
		fmt.Fprintf(b, " [%s]", strings.Join(keys, ", "))
	case KindLimit:
		if n.Limit >= 0 {
			fmt.Fprintf(b, " %d", n.Limit)
		}
		if n.Offset > 0 {
			fmt.Fprintf(b, " OFFSET %d", n.Offset)
		}
	}

	fmt.Fprintf(b, " %s\n", n.Schema)
	for _, in := range n.Inputs {
		p.explainNode(b, in, depth+1)
	}
}
