package parser

import (
	"fmt"
	"strings"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/token"
)

// Primary expression parsing: literals, placeholders, column references,
// function calls, CASE, CAST, EXISTS and parenthesized forms.

func (p *Parser) parsePrimary() ast.Expr {
	switch p.token.Type {
	case token.NUMBER:
		lit := &ast.Literal{Kind: ast.LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case token.STRING:
		lit := &ast.Literal{Kind: ast.LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case token.TRUE:
		p.nextToken()
		return &ast.Literal{Kind: ast.LiteralBool, Value: "true"}

	case token.FALSE:
		p.nextToken()
		return &ast.Literal{Kind: ast.LiteralBool, Value: "false"}

	case token.NULL:
		p.nextToken()
		return &ast.Literal{Kind: ast.LiteralNull, Value: "null"}

	case token.PLACEHOLDER:
		ph := &ast.Placeholder{Index: p.placeholders}
		p.placeholders++
		p.nextToken()
		return ph

	case token.CASE:
		return p.parseCaseExpr()

	case token.CAST:
		return p.parseCastExpr()

	case token.EXISTS:
		return p.parseExistsExpr(false)

	case token.IDENT:
		return p.parseIdentifierExpr()

	case token.LPAREN:
		return p.parseParenExpr()

	case token.STAR:
		p.nextToken()
		return &ast.StarExpr{}

	default:
		p.addError(fmt.Sprintf("unexpected token in expression: %s", p.token.Type))
		p.nextToken()
		return nil
	}
}

// parseIdentifierExpr disambiguates column references from function calls.
func (p *Parser) parseIdentifierExpr() ast.Expr {
	name := p.token.Literal
	p.nextToken()

	if p.check(token.LPAREN) {
		return p.parseFuncCall(name)
	}
	if p.check(token.DOT) {
		return p.parseQualifiedColumnRef(name)
	}
	return &ast.ColumnRef{Column: name}
}

func (p *Parser) parseQualifiedColumnRef(first string) ast.Expr {
	parts := []string{first}

	for p.match(token.DOT) {
		if p.check(token.STAR) {
			p.nextToken()
			return &ast.StarExpr{Table: first}
		}
		if p.check(token.IDENT) {
			parts = append(parts, p.token.Literal)
			p.nextToken()
		} else {
			p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, token.IDENT))
			break
		}
	}

	ref := &ast.ColumnRef{}
	switch len(parts) {
	case 2:
		ref.Table = parts[0]
		ref.Column = parts[1]
	default:
		// schema.table.column collapses to table.column; deeper
		// qualification keeps only the last two parts.
		ref.Table = parts[len(parts)-2]
		ref.Column = parts[len(parts)-1]
	}
	return ref
}

func (p *Parser) parseFuncCall(name string) ast.Expr {
	fn := &ast.FuncCall{Name: strings.ToUpper(name)}

	p.expect(token.LPAREN)

	if p.check(token.STAR) {
		fn.Star = true
		p.nextToken()
	} else if !p.check(token.RPAREN) {
		if p.match(token.DISTINCT) {
			fn.Distinct = true
		}
		for {
			fn.Args = append(fn.Args, p.parseExpression())
			if !p.match(token.COMMA) {
				break
			}
		}
	}

	p.expect(token.RPAREN)
	return fn
}

func (p *Parser) parseCaseExpr() ast.Expr {
	p.expect(token.CASE)
	c := &ast.CaseExpr{}

	// Operand form: CASE expr WHEN ...
	if !p.check(token.WHEN) {
		c.Operand = p.parseExpression()
	}

	for p.match(token.WHEN) {
		when := ast.WhenClause{}
		when.Condition = p.parseExpression()
		p.expect(token.THEN)
		when.Result = p.parseExpression()
		c.Whens = append(c.Whens, when)
	}
	if len(c.Whens) == 0 {
		p.addError("CASE requires at least one WHEN clause")
	}

	if p.match(token.ELSE) {
		c.Else = p.parseExpression()
	}
	p.expect(token.END)

	return c
}

func (p *Parser) parseCastExpr() ast.Expr {
	p.expect(token.CAST)
	p.expect(token.LPAREN)

	c := &ast.CastExpr{}
	c.Expr = p.parseExpression()
	p.expect(token.AS)

	if p.check(token.IDENT) {
		c.TypeName = strings.ToUpper(p.token.Literal)
		p.nextToken()
	} else {
		p.addError("expected type name in CAST")
	}

	p.expect(token.RPAREN)
	return c
}

func (p *Parser) parseExistsExpr(not bool) ast.Expr {
	p.expect(token.EXISTS)
	p.expect(token.LPAREN)
	e := &ast.ExistsExpr{Not: not, Select: p.parseStatement()}
	p.expect(token.RPAREN)
	return e
}

// parseParenExpr handles both grouping parentheses and scalar subqueries.
func (p *Parser) parseParenExpr() ast.Expr {
	p.expect(token.LPAREN)

	if p.check(token.SELECT) || p.check(token.WITH) {
		sub := &ast.SubqueryExpr{Select: p.parseStatement()}
		p.expect(token.RPAREN)
		return sub
	}

	inner := p.parseExpression()
	p.expect(token.RPAREN)
	return &ast.ParenExpr{Expr: inner}
}
