package dialect

import (
	"strings"

	"github.com/relstack-labs/relq/pkg/token"
)

// Builder assembles a Dialect. The zero value is unusable; start from
// NewDialect.
type Builder struct {
	d *Dialect
}

// NewDialect starts building a dialect with the given name.
func NewDialect(name string) *Builder {
	return &Builder{d: &Dialect{
		Name:       name,
		keywords:   make(map[string]Extension),
		precedence: make(map[token.Type]int),
		aggregates: make(map[string]struct{}),
	}}
}

// Identifiers sets the case-folding policy for unquoted identifiers.
func (b *Builder) Identifiers(n Normalization) *Builder {
	b.d.Normalization = n
	return b
}

// Keyword registers an extension keyword, available from conformance min.
// The keyword's token type is allocated through the token registry, so two
// dialects sharing a keyword share its token.
func (b *Builder) Keyword(name string, min Conformance) *Builder {
	t := token.Register(strings.ToUpper(name))
	b.d.keywords[strings.ToLower(name)] = Extension{Token: t, Min: min}
	return b
}

// Operator registers an extension keyword that also acts as an infix
// operator with the given precedence (e.g. ILIKE at PrecComparison).
func (b *Builder) Operator(name string, min Conformance, prec int) *Builder {
	t := token.Register(strings.ToUpper(name))
	b.d.keywords[strings.ToLower(name)] = Extension{Token: t, Min: min}
	b.d.precedence[t] = prec
	return b
}

// Aggregates declares the dialect's aggregate function names.
func (b *Builder) Aggregates(names ...string) *Builder {
	for _, n := range names {
		b.d.aggregates[b.d.Fold(n)] = struct{}{}
	}
	return b
}

// Build finalizes the dialect. The result must not be mutated afterwards.
func (b *Builder) Build() *Dialect {
	return b.d
}
