package parser

import (
	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/token"
)

// Statement-level parsing: WITH clause, CTEs, select body, select list and
// the trailing clauses.
//
// Clause order is fixed: WHERE, GROUP BY, HAVING, QUALIFY, ORDER BY, LIMIT,
// OFFSET. QUALIFY only parses when the profile's dialect admits it at the
// active conformance level; otherwise the keyword lexes as an identifier
// and the statement fails with a regular syntax error.

// parseStatement parses a complete statement.
func (p *Parser) parseStatement() *ast.SelectStmt {
	stmt := &ast.SelectStmt{}

	if p.check(token.WITH) {
		stmt.With = p.parseWithClause()
	}
	stmt.Body = p.parseSelectBody()

	return stmt
}

func (p *Parser) parseWithClause() *ast.WithClause {
	p.expect(token.WITH)
	with := &ast.WithClause{}

	if p.match(token.RECURSIVE) {
		with.Recursive = true
	}

	for {
		with.CTEs = append(with.CTEs, p.parseCTE())
		if !p.match(token.COMMA) {
			break
		}
	}
	return with
}

func (p *Parser) parseCTE() *ast.CTE {
	cte := &ast.CTE{}

	if !p.check(token.IDENT) {
		p.addError("expected CTE name")
		return cte
	}
	cte.Name = p.token.Literal
	p.nextToken()

	p.expect(token.AS)
	p.expect(token.LPAREN)
	cte.Select = p.parseStatement()
	p.expect(token.RPAREN)

	return cte
}

// parseSelectBody parses a select core and any chained set operations.
func (p *Parser) parseSelectBody() *ast.SelectBody {
	body := &ast.SelectBody{}
	body.Left = p.parseSelectCore()

	switch p.token.Type {
	case token.UNION:
		p.nextToken()
		body.Op = ast.SetUnion
		if p.match(token.ALL) {
			body.All = true
		} else {
			p.match(token.DISTINCT)
		}
		body.Right = p.parseSelectBody()
	case token.INTERSECT:
		p.nextToken()
		body.Op = ast.SetIntersect
		body.All = p.match(token.ALL)
		body.Right = p.parseSelectBody()
	case token.EXCEPT:
		p.nextToken()
		body.Op = ast.SetExcept
		body.All = p.match(token.ALL)
		body.Right = p.parseSelectBody()
	}

	return body
}

func (p *Parser) parseSelectCore() *ast.SelectCore {
	p.expect(token.SELECT)
	core := &ast.SelectCore{}

	if p.match(token.DISTINCT) {
		core.Distinct = true
	} else {
		p.match(token.ALL)
	}

	core.Columns = p.parseSelectList()

	if p.match(token.FROM) {
		core.From = p.parseFromClause()
	}

	if p.match(token.WHERE) {
		core.Where = p.parseExpression()
	}
	if p.check(token.GROUP) && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		core.GroupBy = p.parseExpressionList()
	}
	if p.match(token.HAVING) {
		core.Having = p.parseExpression()
	}
	if qt, ok := p.extensionToken("QUALIFY"); ok && p.check(qt) {
		p.nextToken()
		core.Qualify = p.parseExpression()
	}
	if p.check(token.ORDER) && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		core.OrderBy = p.parseOrderByList()
	}
	if p.match(token.LIMIT) {
		core.Limit = p.parseExpression()
	}
	if p.match(token.OFFSET) {
		core.Offset = p.parseExpression()
	}

	return core
}

func (p *Parser) parseSelectList() []ast.SelectItem {
	var items []ast.SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if !p.match(token.COMMA) {
			break
		}
	}
	return items
}

func (p *Parser) parseSelectItem() ast.SelectItem {
	item := ast.SelectItem{}

	if p.check(token.STAR) {
		item.Star = true
		p.nextToken()
		return item
	}

	// t.* resolved with two-token lookahead, no backtracking.
	if p.check(token.IDENT) && p.checkPeek(token.DOT) && p.checkPeek2(token.STAR) {
		item.TableStar = p.token.Literal
		p.nextToken()
		p.nextToken()
		p.nextToken()
		return item
	}

	item.Expr = p.parseExpression()

	if p.match(token.AS) {
		if p.check(token.IDENT) {
			item.Alias = p.token.Literal
			p.nextToken()
		} else {
			p.addError("expected alias after AS")
		}
	} else if p.check(token.IDENT) && !p.isReserved(p.token) {
		item.Alias = p.token.Literal
		p.nextToken()
	}

	return item
}

func (p *Parser) parseOrderByList() []ast.OrderByItem {
	var items []ast.OrderByItem
	for {
		items = append(items, p.parseOrderByItem())
		if !p.match(token.COMMA) {
			break
		}
	}
	return items
}

func (p *Parser) parseOrderByItem() ast.OrderByItem {
	item := ast.OrderByItem{}
	item.Expr = p.parseExpression()

	if p.match(token.ASC) {
		item.Desc = false
	} else if p.match(token.DESC) {
		item.Desc = true
	}

	if p.match(token.NULLS) {
		if p.match(token.FIRST) {
			first := true
			item.NullsFirst = &first
		} else if p.match(token.LAST) {
			last := false
			item.NullsFirst = &last
		} else {
			p.addError("expected FIRST or LAST after NULLS")
		}
	}

	return item
}

func (p *Parser) parseExpressionList() []ast.Expr {
	var exprs []ast.Expr
	for {
		exprs = append(exprs, p.parseExpression())
		if !p.match(token.COMMA) {
			break
		}
	}
	return exprs
}
