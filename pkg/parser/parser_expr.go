package parser

import (
	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/token"
)

// Expression parsing by precedence climbing. Levels come from pkg/dialect;
// dialect extension operators (like ILIKE) contribute their own precedence,
// so resolution is fixed per dialect rather than dependent on whichever
// production happens to match first.

func (p *Parser) parseExpression() ast.Expr {
	return p.parseExpressionAbove(dialect.PrecNone + 1)
}

func (p *Parser) parseExpressionAbove(minPrec int) ast.Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for {
		prec := p.infixPrecedence()
		if prec < minPrec {
			break
		}
		left = p.parseInfixExpr(left, prec)
		if left == nil {
			break
		}
	}
	return left
}

func (p *Parser) parsePrefixExpr() ast.Expr {
	switch p.token.Type {
	case token.NOT:
		// NOT EXISTS binds to the EXISTS form, not to a unary NOT.
		if p.checkPeek(token.EXISTS) {
			p.nextToken()
			return p.parseExistsExpr(true)
		}
		p.nextToken()
		return &ast.UnaryExpr{Op: token.NOT, Expr: p.parseExpressionAbove(dialect.PrecNot)}
	case token.MINUS:
		p.nextToken()
		return &ast.UnaryExpr{Op: token.MINUS, Expr: p.parseExpressionAbove(dialect.PrecUnary)}
	case token.PLUS:
		p.nextToken()
		return &ast.UnaryExpr{Op: token.PLUS, Expr: p.parseExpressionAbove(dialect.PrecUnary)}
	default:
		return p.parsePrimary()
	}
}

// infixPrecedence returns the binding strength of the current token as an
// infix operator, or 0 if it is not one.
func (p *Parser) infixPrecedence() int {
	switch p.token.Type {
	case token.OR:
		return dialect.PrecOr
	case token.AND:
		return dialect.PrecAnd
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE,
		token.IS, token.IN, token.BETWEEN, token.LIKE, token.NOT:
		return dialect.PrecComparison
	case token.PLUS, token.MINUS, token.CONCAT:
		return dialect.PrecAddition
	case token.STAR, token.SLASH, token.MOD:
		return dialect.PrecMultiply
	}
	return p.profile.Dialect.Precedence(p.token.Type)
}

func (p *Parser) parseInfixExpr(left ast.Expr, prec int) ast.Expr {
	switch p.token.Type {
	case token.NOT:
		return p.parseNotInfixExpr(left)
	case token.IS:
		return p.parseIsExpr(left)
	case token.IN:
		p.nextToken()
		return p.parseInExpr(left, false)
	case token.BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)
	case token.LIKE:
		op := p.token.Type
		p.nextToken()
		return p.parseLikeExpr(left, false, op)
	}

	if ilike, ok := p.extensionToken("ILIKE"); ok && p.token.Type == ilike {
		p.nextToken()
		return p.parseLikeExpr(left, false, ilike)
	}

	op := p.token
	p.nextToken()
	// Left-associative: parse the right operand one level tighter.
	right := p.parseExpressionAbove(prec + 1)
	return &ast.BinaryExpr{Left: left, Op: op.Type, Right: right}
}

// parseNotInfixExpr handles NOT as an infix modifier: NOT IN, NOT BETWEEN,
// NOT LIKE, NOT ILIKE.
func (p *Parser) parseNotInfixExpr(left ast.Expr) ast.Expr {
	p.nextToken() // NOT

	switch p.token.Type {
	case token.IN:
		p.nextToken()
		return p.parseInExpr(left, true)
	case token.BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, true)
	case token.LIKE:
		op := p.token.Type
		p.nextToken()
		return p.parseLikeExpr(left, true, op)
	}

	if ilike, ok := p.extensionToken("ILIKE"); ok && p.token.Type == ilike {
		p.nextToken()
		return p.parseLikeExpr(left, true, ilike)
	}

	p.addError("expected IN, BETWEEN or LIKE after NOT")
	return left
}

// parseIsExpr parses IS [NOT] NULL / TRUE / FALSE.
func (p *Parser) parseIsExpr(left ast.Expr) ast.Expr {
	p.nextToken() // IS
	isNot := p.match(token.NOT)

	switch p.token.Type {
	case token.NULL:
		p.nextToken()
		return &ast.IsNullExpr{Expr: left, Not: isNot}
	case token.TRUE:
		p.nextToken()
		return &ast.IsBoolExpr{Expr: left, Not: isNot, Value: true}
	case token.FALSE:
		p.nextToken()
		return &ast.IsBoolExpr{Expr: left, Not: isNot, Value: false}
	default:
		p.addError("expected NULL, TRUE or FALSE after IS")
		return left
	}
}

func (p *Parser) parseInExpr(left ast.Expr, not bool) ast.Expr {
	p.expect(token.LPAREN)
	in := &ast.InExpr{Expr: left, Not: not}

	if p.check(token.SELECT) || p.check(token.WITH) {
		in.Query = p.parseStatement()
	} else {
		in.Values = p.parseExpressionList()
	}

	p.expect(token.RPAREN)
	return in
}

func (p *Parser) parseBetweenExpr(left ast.Expr, not bool) ast.Expr {
	between := &ast.BetweenExpr{Expr: left, Not: not}
	// Bounds parse at addition precedence so the separating AND is not
	// swallowed into the low bound.
	between.Low = p.parseExpressionAbove(dialect.PrecAddition)
	p.expect(token.AND)
	between.High = p.parseExpressionAbove(dialect.PrecAddition)
	return between
}

func (p *Parser) parseLikeExpr(left ast.Expr, not bool, op token.Type) ast.Expr {
	return &ast.LikeExpr{
		Expr:    left,
		Not:     not,
		Op:      op,
		Pattern: p.parseExpressionAbove(dialect.PrecAddition),
	}
}
