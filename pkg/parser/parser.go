// Package parser turns SQL text into a syntax tree.
//
// # Usage
//
//	profile, err := parser.NewProfile("duckdb")
//	stmt, err := parser.Parse(query.SQL("SELECT a, b FROM t"), profile)
//
// Parsing is a pure function of (text, profile): the same input under the
// same profile always yields a structurally equal tree, and a profile is
// safe for concurrent parses.
//
// # Grammar overview
//
//	statement     → [WITH cte_list] select_body [";"]
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL] select_body]
//	select_core   → SELECT [DISTINCT] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [QUALIFY expr] [ORDER BY order_list] [LIMIT expr]
//	                [OFFSET expr]
//
// Exactly one statement is accepted; anything after the optional trailing
// semicolon is a syntax error. Ambiguity resolves by fixed operator
// precedence (see pkg/dialect) and longest-match lexing, never by rule
// order.
package parser

import (
	"fmt"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/token"
)

// Parser parses one SQL statement into an AST.
type Parser struct {
	lexer   *Lexer
	token   token.Token // current token
	peek    token.Token // lookahead
	peek2   token.Token // second lookahead
	errors  []error
	profile *Profile

	// placeholders counts ? parameters seen so far, assigning indices in
	// source order.
	placeholders int
}

// New creates a parser for the given SQL input.
func New(sql string, profile *Profile) *Parser {
	p := &Parser{
		lexer:   NewLexer(sql, profile),
		profile: profile,
	}
	// Fill current, peek and peek2.
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the textual payload of a logical query. A query that does
// not carry SQL text fails with an unsupported-query-kind error before any
// tokenization happens.
func Parse(q query.LogicalQuery, profile *Profile) (*ast.SelectStmt, error) {
	sql, ok := q.Text()
	if !ok {
		return nil, query.NewError(query.KindUnsupportedQuery,
			"query kind %q does not carry SQL text", q.Kind())
	}
	return ParseSQL(sql, profile)
}

// ParseSQL parses SQL text into a syntax tree. On failure no partial tree
// is returned.
func ParseSQL(sql string, profile *Profile) (*ast.SelectStmt, error) {
	if len(sql) > profile.MaxStatementBytes {
		return nil, &SyntaxError{
			Pos:     token.Position{Line: 1, Column: 1},
			Message: fmt.Sprintf(errStatementTooLarge, profile.MaxStatementBytes),
		}
	}

	return New(sql, profile).Parse()
}

// Parse consumes the parser's input as a single statement. On failure no
// partial tree is returned.
func (p *Parser) Parse() (*ast.SelectStmt, error) {
	stmt := p.parseStatement()

	// One statement only: allow a trailing semicolon, then demand EOF.
	p.match(token.SEMI)
	if !p.check(token.EOF) && len(p.errors) == 0 {
		p.addError(errTrailingInput)
	}
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return stmt, nil
}

// Placeholders returns the number of ? parameters encountered.
func (p *Parser) Placeholders() int { return p.placeholders }

// ---------- Token helpers ----------

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

func (p *Parser) check(t token.Type) bool {
	return p.token.Type == t
}

func (p *Parser) checkPeek(t token.Type) bool {
	return p.peek.Type == t
}

func (p *Parser) checkPeek2(t token.Type) bool {
	return p.peek2.Type == t
}

// match consumes the current token if it has the given type.
func (p *Parser) match(t token.Type) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token or records an error.
func (p *Parser) expect(t token.Type) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, t))
	return false
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &SyntaxError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

// ---------- Keyword helpers ----------

// isReserved reports whether tok cannot serve as an implicit alias.
func (p *Parser) isReserved(tok token.Token) bool {
	if token.IsKeyword(tok.Type) {
		return true
	}
	// Dialect extension keywords (QUALIFY etc.) are reserved too.
	return token.IsDynamic(tok.Type)
}

// extensionToken resolves a registered extension keyword, reporting whether
// the current profile's dialect accepts it. The lexer only emits extension
// tokens the conformance level admits, so checking the current token type
// against the registered ID is sufficient.
func (p *Parser) extensionToken(name string) (token.Type, bool) {
	return token.LookupDynamic(name)
}
