package parser

import (
	"fmt"

	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/token"
)

// FROM clause parsing: table names, derived tables and the join chain.

func (p *Parser) parseFromClause() *ast.FromClause {
	from := &ast.FromClause{}
	from.Source = p.parseTableRef()

	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}
	return from
}

func (p *Parser) parseTableRef() ast.TableRef {
	if p.check(token.LPAREN) {
		return p.parseDerivedTable()
	}

	if !p.check(token.IDENT) {
		p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, "table name"))
		return nil
	}

	t := &ast.TableName{Name: p.token.Literal}
	p.nextToken()

	if p.match(token.DOT) {
		if !p.check(token.IDENT) {
			p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, token.IDENT))
			return t
		}
		t.Schema = t.Name
		t.Name = p.token.Literal
		p.nextToken()
	}

	t.Alias = p.parseTableAlias()
	return t
}

func (p *Parser) parseDerivedTable() ast.TableRef {
	p.expect(token.LPAREN)
	d := &ast.DerivedTable{Select: p.parseStatement()}
	p.expect(token.RPAREN)

	d.Alias = p.parseTableAlias()
	if d.Alias == "" {
		p.addError("derived table requires an alias")
	}
	return d
}

// parseTableAlias accepts [AS] alias. A bare identifier is an implicit
// alias only when it is not a reserved word starting the next clause.
func (p *Parser) parseTableAlias() string {
	if p.match(token.AS) {
		if !p.check(token.IDENT) {
			p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, token.IDENT))
			return ""
		}
		alias := p.token.Literal
		p.nextToken()
		return alias
	}
	if p.check(token.IDENT) && !p.isReserved(p.token) {
		alias := p.token.Literal
		p.nextToken()
		return alias
	}
	return ""
}

// parseJoin consumes one join step, or returns nil when the FROM chain
// ends.
func (p *Parser) parseJoin() *ast.Join {
	join := &ast.Join{Type: ast.JoinInner}

	switch {
	case p.match(token.COMMA):
		join.Type = ast.JoinComma
		join.Right = p.parseTableRef()
		return join

	case p.check(token.CROSS):
		p.nextToken()
		p.expect(token.JOIN)
		join.Type = ast.JoinCross
		join.Right = p.parseTableRef()
		if p.check(token.ON) || p.check(token.USING) {
			p.addError("CROSS JOIN cannot have a join condition")
		}
		return join

	case p.check(token.NATURAL):
		p.nextToken()
		join.Natural = true
		join.Type = p.parseJoinType()
		join.Right = p.parseTableRef()
		if p.check(token.ON) {
			p.addError("NATURAL JOIN cannot have ON")
		} else if p.check(token.USING) {
			p.addError("NATURAL JOIN cannot have USING")
		}
		return join

	case p.check(token.JOIN), p.check(token.INNER), p.check(token.LEFT),
		p.check(token.RIGHT), p.check(token.FULL):
		join.Type = p.parseJoinType()
		join.Right = p.parseTableRef()
		p.parseJoinCondition(join)
		return join

	default:
		return nil
	}
}

func (p *Parser) parseJoinType() ast.JoinType {
	jt := ast.JoinInner
	switch {
	case p.match(token.INNER):
	case p.match(token.LEFT):
		jt = ast.JoinLeft
		p.match(token.OUTER)
	case p.match(token.RIGHT):
		jt = ast.JoinRight
		p.match(token.OUTER)
	case p.match(token.FULL):
		jt = ast.JoinFull
		p.match(token.OUTER)
	}
	p.expect(token.JOIN)
	return jt
}

func (p *Parser) parseJoinCondition(join *ast.Join) {
	switch {
	case p.match(token.ON):
		join.Condition = p.parseExpression()
	case p.match(token.USING):
		p.expect(token.LPAREN)
		for {
			if !p.check(token.IDENT) {
				p.addError(fmt.Sprintf(errUnexpectedToken, p.token.Type, token.IDENT))
				break
			}
			join.Using = append(join.Using, p.token.Literal)
			p.nextToken()
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN)
	default:
		p.addError(fmt.Sprintf("join requires an ON or USING condition, got %s", p.token.Type))
	}
}
