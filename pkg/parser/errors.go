package parser

import (
	"fmt"

	"github.com/relstack-labs/relq/pkg/token"
)

// SyntaxError is a lexical or grammatical violation, carrying the position
// of the offending token. The pipeline wraps it into the unified taxonomy;
// the position survives through the error chain.
type SyntaxError struct {
	Pos     token.Position
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Common error message formats.
const (
	errUnexpectedToken    = "unexpected token %s, expected %s"
	errUnterminatedString = "unterminated string literal"
	errStatementTooLarge  = "statement exceeds maximum length of %d bytes"
	errTrailingInput      = "unexpected input after statement; multi-statement queries are not supported"
)
