package sql

import (
	"strings"

	"github.com/clstatham/veris/internal/verrors"
)

// lexer scans a SQL statement into a stream of Tokens, one at a time.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		if c == '-' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '-' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }

// next returns the next Token, including a final EOF token once the input is
// exhausted. On a malformed token it returns Kind Error with Text set to a
// human-readable message.
func (l *lexer) next() Token {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.input) {
		return Token{Kind: EOF, Pos: start}
	}

	c := l.input[l.pos]

	switch {
	case isAlpha(c):
		for l.pos < len(l.input) && isAlnum(l.input[l.pos]) {
			l.pos++
		}
		text := l.input[start:l.pos]
		kind := Ident
		if IsKeyword(text) {
			kind = Keyword
		}
		return Token{Kind: kind, Text: text, Pos: start}

	case isDigit(c):
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
		if l.pos < len(l.input) && l.input[l.pos] == '.' {
			l.pos++
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		}
		return Token{Kind: Number, Text: l.input[start:l.pos], Pos: start}

	case c == '\'':
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) {
			if l.input[l.pos] == '\'' {
				if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
					sb.WriteByte('\'')
					l.pos += 2
					continue
				}
				l.pos++
				return Token{Kind: String, Text: sb.String(), Pos: start}
			}
			sb.WriteByte(l.input[l.pos])
			l.pos++
		}
		return Token{Kind: Error, Text: "unterminated string literal", Pos: start}

	case c == '"':
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != '"' {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return Token{Kind: Error, Text: "unterminated quoted identifier", Pos: start}
		}
		text := l.input[start+1 : l.pos]
		l.pos++
		return Token{Kind: Ident, Text: text, Pos: start}

	case c == '*':
		l.pos++
		return Token{Kind: Star, Text: "*", Pos: start}
	case c == ',':
		l.pos++
		return Token{Kind: Comma, Text: ",", Pos: start}
	case c == '.':
		l.pos++
		return Token{Kind: Dot, Text: ".", Pos: start}
	case c == '(':
		l.pos++
		return Token{Kind: LParen, Text: "(", Pos: start}
	case c == ')':
		l.pos++
		return Token{Kind: RParen, Text: ")", Pos: start}
	case c == ';':
		l.pos++
		return Token{Kind: Semicolon, Text: ";", Pos: start}
	case c == '+':
		l.pos++
		return Token{Kind: Plus, Text: "+", Pos: start}
	case c == '-':
		l.pos++
		return Token{Kind: Minus, Text: "-", Pos: start}
	case c == '/':
		l.pos++
		return Token{Kind: Slash, Text: "/", Pos: start}
	case c == '%':
		l.pos++
		return Token{Kind: Percent, Text: "%", Pos: start}
	case c == '?':
		l.pos++
		return Token{Kind: Question, Text: "?", Pos: start}
	case c == '=':
		l.pos++
		return Token{Kind: Eq, Text: "=", Pos: start}
	case c == '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Kind: NotEq, Text: "!=", Pos: start}
		}
		l.pos++
		return Token{Kind: Error, Text: "unexpected '!'", Pos: start}
	case c == '<':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '>' {
			l.pos += 2
			return Token{Kind: NotEq, Text: "<>", Pos: start}
		}
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Kind: LtEq, Text: "<=", Pos: start}
		}
		l.pos++
		return Token{Kind: Lt, Text: "<", Pos: start}
	case c == '>':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Kind: GtEq, Text: ">=", Pos: start}
		}
		l.pos++
		return Token{Kind: Gt, Text: ">", Pos: start}
	default:
		l.pos++
		return Token{Kind: Error, Text: "unexpected character '" + string(c) + "'", Pos: start}
	}
}

func tokenErr(t Token) error {
	return verrors.New(verrors.InvalidSQL, "at offset %d: %s", t.Pos, t.Text)
}
