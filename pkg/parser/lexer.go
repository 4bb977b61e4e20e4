package parser

import (
	"strings"
	"unicode"

	"github.com/relstack-labs/relq/pkg/token"
)

// Lexer tokenizes SQL input under a parser profile.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // 1-based
	col     int  // 1-based
	profile *Profile
}

// NewLexer creates a lexer for the given input and profile.
func NewLexer(input string, profile *Profile) *Lexer {
	l := &Lexer{
		input:   input,
		line:    1,
		col:     0,
		profile: profile,
	}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL = end of input
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	tok := token.Token{Pos: pos}

	switch l.ch {
	case 0:
		tok.Type = token.EOF
	case '+':
		tok = l.symbol(token.PLUS, "+")
	case '-':
		tok = l.symbol(token.MINUS, "-")
	case '*':
		tok = l.symbol(token.STAR, "*")
	case '/':
		tok = l.symbol(token.SLASH, "/")
	case '%':
		tok = l.symbol(token.MOD, "%")
	case '=':
		tok = l.symbol(token.EQ, "=")
	case '?':
		tok = l.symbol(token.PLACEHOLDER, "?")
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = token.Token{Type: token.LE, Literal: "<=", Pos: pos}
		case '>':
			l.readChar()
			tok = token.Token{Type: token.NE, Literal: "<>", Pos: pos}
		default:
			tok = l.symbol(token.LT, "<")
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.GE, Literal: ">=", Pos: pos}
		} else {
			tok = l.symbol(token.GT, ">")
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.NE, Literal: "!=", Pos: pos}
		} else {
			tok = l.symbol(token.ILLEGAL, string(l.ch))
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok = token.Token{Type: token.CONCAT, Literal: "||", Pos: pos}
		} else {
			tok = l.symbol(token.ILLEGAL, string(l.ch))
		}
	case '.':
		tok = l.symbol(token.DOT, ".")
	case ',':
		tok = l.symbol(token.COMMA, ",")
	case '(':
		tok = l.symbol(token.LPAREN, "(")
	case ')':
		tok = l.symbol(token.RPAREN, ")")
	case ';':
		tok = l.symbol(token.SEMI, ";")
	case '\'':
		lit, terminated := l.readString()
		if !terminated {
			return token.Token{Type: token.ILLEGAL, Literal: errUnterminatedString, Pos: pos}
		}
		return token.Token{Type: token.STRING, Literal: lit, Pos: pos}
	case '"':
		// Quoted identifier: case preserved, never a keyword.
		lit := l.readQuotedIdentifier()
		return token.Token{Type: token.IDENT, Literal: lit, Pos: pos}
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			lit := l.readIdentifier()
			lowered := strings.ToLower(lit)
			t := token.LookupIdent(lowered)
			if t == token.IDENT {
				if dynTok, ok := l.profile.Dialect.LookupKeyword(lowered, l.profile.Conformance); ok {
					t = dynTok
				}
			}
			if t == token.IDENT {
				lit = l.profile.fold(lit)
			}
			return token.Token{Type: t, Literal: lit, Pos: pos}
		case isDigit(l.ch):
			return token.Token{Type: token.NUMBER, Literal: l.readNumber(), Pos: pos}
		default:
			tok = l.symbol(token.ILLEGAL, string(l.ch))
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) symbol(t token.Type, literal string) token.Token {
	return token.Token{Type: t, Literal: literal, Pos: l.currentPos()}
}

// skipWhitespaceAndComments discards whitespace, -- line comments and
// /* */ block comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
			continue
		}
		break
	}
}

// readString reads a single-quoted string literal. Doubled quotes escape:
// 'it''s' -> it's. Reports whether the closing quote was found.
func (l *Lexer) readString() (string, bool) {
	l.readChar() // opening quote

	var out strings.Builder
	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				out.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			return out.String(), true
		}
		out.WriteByte(l.ch)
		l.readChar()
	}
	return out.String(), false
}

// readQuotedIdentifier reads a double-quoted identifier with "" escapes.
func (l *Lexer) readQuotedIdentifier() string {
	l.readChar() // opening quote

	var out strings.Builder
	for l.ch != 0 {
		if l.ch == '"' {
			if l.peekChar() == '"' {
				out.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			break
		}
		out.WriteByte(l.ch)
		l.readChar()
	}
	return out.String()
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer, decimal or scientific literal.
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
