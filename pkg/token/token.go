// Package token defines the lexical token vocabulary for SQL parsing.
//
// Core ANSI tokens are compile-time constants so the parser can switch on
// them cheaply. Dialect extensions (QUALIFY, ILIKE, custom operators) are
// registered at runtime via Register.
package token

import "fmt"

// Type identifies the kind of a lexical token.
type Type int32

const (
	// Special tokens
	EOF Type = iota
	ILLEGAL

	// Literals and identifiers
	IDENT       // column_name
	NUMBER      // 123, 45.67, 1e10
	STRING      // 'hello'
	PLACEHOLDER // ? positional parameter

	// Operators and punctuation
	PLUS   // +
	MINUS  // -
	STAR   // *
	SLASH  // /
	MOD    // %
	CONCAT // ||
	EQ     // =
	NE     // != or <>
	LT     // <
	GT     // >
	LE     // <=
	GE     // >=
	DOT    // .
	COMMA  // ,
	LPAREN // (
	RPAREN // )
	SEMI   // ;

	// Reserved keywords
	ALL
	AND
	AS
	ASC
	BETWEEN
	BY
	CASE
	CAST
	CROSS
	DESC
	DISTINCT
	ELSE
	END
	EXCEPT
	EXISTS
	FALSE
	FIRST
	FROM
	FULL
	GROUP
	HAVING
	IN
	INNER
	INTERSECT
	IS
	JOIN
	LAST
	LEFT
	LIKE
	LIMIT
	NATURAL
	NOT
	NULL
	NULLS
	OFFSET
	ON
	OR
	ORDER
	OUTER
	RECURSIVE
	RIGHT
	SELECT
	THEN
	TRUE
	UNION
	USING
	WHEN
	WHERE
	WITH

	// Dynamic token IDs are handed out above this sentinel.
	maxBuiltin Type = 999
)

// Token is a lexical token with its source position.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// String returns a readable name for the token type.
func (t Type) String() string {
	if name, ok := dynamicName(t); ok {
		return name
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var typeNames = map[Type]string{
	EOF:         "EOF",
	ILLEGAL:     "ILLEGAL",
	IDENT:       "IDENT",
	NUMBER:      "NUMBER",
	STRING:      "STRING",
	PLACEHOLDER: "?",

	PLUS:   "+",
	MINUS:  "-",
	STAR:   "*",
	SLASH:  "/",
	MOD:    "%",
	CONCAT: "||",
	EQ:     "=",
	NE:     "!=",
	LT:     "<",
	GT:     ">",
	LE:     "<=",
	GE:     ">=",
	DOT:    ".",
	COMMA:  ",",
	LPAREN: "(",
	RPAREN: ")",
	SEMI:   ";",

	ALL:       "ALL",
	AND:       "AND",
	AS:        "AS",
	ASC:       "ASC",
	BETWEEN:   "BETWEEN",
	BY:        "BY",
	CASE:      "CASE",
	CAST:      "CAST",
	CROSS:     "CROSS",
	DESC:      "DESC",
	DISTINCT:  "DISTINCT",
	ELSE:      "ELSE",
	END:       "END",
	EXCEPT:    "EXCEPT",
	EXISTS:    "EXISTS",
	FALSE:     "FALSE",
	FIRST:     "FIRST",
	FROM:      "FROM",
	FULL:      "FULL",
	GROUP:     "GROUP",
	HAVING:    "HAVING",
	IN:        "IN",
	INNER:     "INNER",
	INTERSECT: "INTERSECT",
	IS:        "IS",
	JOIN:      "JOIN",
	LAST:      "LAST",
	LEFT:      "LEFT",
	LIKE:      "LIKE",
	LIMIT:     "LIMIT",
	NATURAL:   "NATURAL",
	NOT:       "NOT",
	NULL:      "NULL",
	NULLS:     "NULLS",
	OFFSET:    "OFFSET",
	ON:        "ON",
	OR:        "OR",
	ORDER:     "ORDER",
	OUTER:     "OUTER",
	RECURSIVE: "RECURSIVE",
	RIGHT:     "RIGHT",
	SELECT:    "SELECT",
	THEN:      "THEN",
	TRUE:      "TRUE",
	UNION:     "UNION",
	USING:     "USING",
	WHEN:      "WHEN",
	WHERE:     "WHERE",
	WITH:      "WITH",
}

// keywords maps lowercase spellings to their reserved token types.
var keywords = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t := ALL; t <= WITH; t++ {
		name := typeNames[t]
		m[lower(name)] = t
	}
	return m
}()

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// LookupIdent maps a lowercase identifier to its keyword type, or IDENT.
// Only builtin keywords are consulted; dialect keywords go through the
// dynamic registry.
func LookupIdent(ident string) Type {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return IDENT
}

// IsKeyword reports whether t is a reserved keyword token.
func IsKeyword(t Type) bool {
	return t >= ALL && t <= WITH
}
