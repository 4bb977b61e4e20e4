// Package dialect provides SQL dialect configuration for the parser.
//
// A Dialect bundles identifier case-folding rules, operator precedence for
// its extension operators, and the grammar extensions it understands. Each
// extension is gated by a minimum conformance level, so the same dialect can
// parse strictly or permissively depending on the profile in force.
package dialect

import (
	"fmt"
	"strings"

	"github.com/relstack-labs/relq/pkg/token"
)

// Conformance selects which optional grammar extensions a parse accepts.
type Conformance int

// Conformance levels, from most to least restrictive.
const (
	// Strict accepts only the ANSI core grammar.
	Strict Conformance = iota
	// Default additionally accepts the dialect's standard extensions.
	Default
	// Permissive accepts every extension the dialect knows about.
	Permissive
)

// String returns the lowercase level name.
func (c Conformance) String() string {
	switch c {
	case Strict:
		return "strict"
	case Default:
		return "default"
	case Permissive:
		return "permissive"
	default:
		return fmt.Sprintf("conformance(%d)", c)
	}
}

// ParseConformance maps a config string to a Conformance level.
func ParseConformance(s string) (Conformance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return Default, nil
	case "strict":
		return Strict, nil
	case "permissive", "lenient":
		return Permissive, nil
	default:
		return Default, fmt.Errorf("unknown conformance level %q", s)
	}
}

// Normalization is the identifier case-folding policy for unquoted names.
type Normalization int

// Case-folding policies.
const (
	// NormLower folds unquoted identifiers to lowercase (Postgres, DuckDB).
	NormLower Normalization = iota
	// NormUpper folds unquoted identifiers to uppercase (ANSI catalogs).
	NormUpper
	// NormExact preserves identifiers as written.
	NormExact
)

// ParseNormalization maps a config string to a Normalization policy.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lower":
		return NormLower, nil
	case "upper":
		return NormUpper, nil
	case "exact", "preserve":
		return NormExact, nil
	default:
		return NormLower, fmt.Errorf("unknown identifier policy %q", s)
	}
}

// Extension is a grammar extension keyword the dialect may accept.
type Extension struct {
	Token token.Type
	// Min is the weakest conformance level at which the extension parses.
	Min Conformance
}

// Dialect is an immutable SQL dialect description. Construct with
// NewDialect; safe for concurrent read-only use.
type Dialect struct {
	Name          string
	Normalization Normalization

	keywords   map[string]Extension // lowercase keyword -> extension
	precedence map[token.Type]int   // extension operator precedence
	aggregates map[string]struct{}  // folded aggregate function names
}

// LookupKeyword resolves a lowercase identifier to an extension token, if
// the dialect defines it and the conformance level admits it.
func (d *Dialect) LookupKeyword(ident string, c Conformance) (token.Type, bool) {
	ext, ok := d.keywords[ident]
	if !ok || c < ext.Min {
		return token.IDENT, false
	}
	return ext.Token, true
}

// Precedence returns the infix precedence of a dialect extension operator,
// or 0 when the token is not an operator of this dialect.
func (d *Dialect) Precedence(t token.Type) int {
	return d.precedence[t]
}

// IsAggregate reports whether name is an aggregate function in this dialect.
func (d *Dialect) IsAggregate(name string) bool {
	_, ok := d.aggregates[d.Fold(name)]
	return ok
}

// Fold applies the dialect's case-folding policy to an unquoted identifier.
func (d *Dialect) Fold(name string) string {
	return d.Normalization.Fold(name)
}

// Fold applies the policy to an unquoted identifier.
func (n Normalization) Fold(name string) string {
	switch n {
	case NormUpper:
		return strings.ToUpper(name)
	case NormExact:
		return name
	default:
		return strings.ToLower(name)
	}
}

// Operator precedence levels shared by all dialects. The parser climbs
// these when resolving ambiguous productions, so precedence is fixed per
// dialect rather than dependent on rule order.
const (
	PrecNone       = 0
	PrecOr         = 1
	PrecAnd        = 2
	PrecNot        = 3
	PrecComparison = 4 // =, <>, <, >, <=, >=, IS, IN, BETWEEN, LIKE
	PrecAddition   = 5 // +, -, ||
	PrecMultiply   = 6 // *, /, %
	PrecUnary      = 7
)
