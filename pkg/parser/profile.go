package parser

import (
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/query"
)

// DefaultMaxStatementBytes bounds how much query text the lexer will accept.
// Oversized statements are rejected before tokenization so adversarial input
// cannot force unbounded work.
const DefaultMaxStatementBytes = 1 << 20

// Profile is the immutable parser configuration: which dialect grammar to
// apply, at what conformance level, how to fold unquoted identifiers, and
// the statement size bound. A single Profile is shared by concurrent parses.
type Profile struct {
	Dialect           *dialect.Dialect
	Conformance       dialect.Conformance
	Normalization     dialect.Normalization
	MaxStatementBytes int
}

// ProfileOption adjusts a Profile at construction.
type ProfileOption func(*Profile)

// WithConformance sets the conformance level.
func WithConformance(c dialect.Conformance) ProfileOption {
	return func(p *Profile) { p.Conformance = c }
}

// WithNormalization overrides the dialect's identifier case-folding policy.
func WithNormalization(n dialect.Normalization) ProfileOption {
	return func(p *Profile) { p.Normalization = n }
}

// WithMaxStatementBytes sets the statement size bound.
func WithMaxStatementBytes(n int) ProfileOption {
	return func(p *Profile) { p.MaxStatementBytes = n }
}

// NewProfile resolves the named dialect and builds a profile. Errors here
// are configuration errors: they surface at engine construction, never
// per-parse.
func NewProfile(dialectName string, opts ...ProfileOption) (*Profile, error) {
	d, ok := dialect.Get(dialectName)
	if !ok {
		return nil, query.WrapError(query.KindConfiguration, dialect.ErrUnknownDialect,
			"unknown dialect %q (have %v)", dialectName, dialect.List())
	}
	p := &Profile{
		Dialect:           d,
		Conformance:       dialect.Default,
		Normalization:     d.Normalization,
		MaxStatementBytes: DefaultMaxStatementBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxStatementBytes <= 0 {
		return nil, query.NewError(query.KindConfiguration,
			"max statement bytes must be positive, got %d", p.MaxStatementBytes)
	}
	return p, nil
}

// fold applies the profile's case-folding policy to an unquoted identifier.
func (p *Profile) fold(name string) string {
	return p.Normalization.Fold(name)
}
