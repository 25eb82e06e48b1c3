package sql

import "testing"

func tokenKinds(t *testing.T, input string) []Kind {
	t.Helper()
	lex := newLexer(input)
	var kinds []Kind
	for {
		tok := lex.next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == EOF || tok.Kind == Error {
			break
		}
	}
	return kinds
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	kinds := tokenKinds(t, "SELECT id FROM users")
	want := []Kind{Keyword, Ident, Keyword, Ident, EOF}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	lex := newLexer("42 3.14")
	tok := lex.next()
	if tok.Kind != Number || tok.Text != "42" {
		t.Fatalf("got %+v", tok)
	}
	tok = lex.next()
	if tok.Kind != Number || tok.Text != "3.14" {
		t.Fatalf("got %+v", tok)
	}
}

func TestLexerStringWithEscapedQuote(t *testing.T) {
	lex := newLexer("'it''s'")
	tok := lex.next()
	if tok.Kind != String || tok.Text != "it's" {
		t.Fatalf("got %+v", tok)
	}
}

func TestLexerUnterminatedStringIsError(t *testing.T) {
	lex := newLexer("'unterminated")
	tok := lex.next()
	if tok.Kind != Error {
		t.Fatalf("expected Error, got %+v", tok)
	}
}

func TestLexerQuotedIdentifier(t *testing.T) {
	lex := newLexer(`"my col"`)
	tok := lex.next()
	if tok.Kind != Ident || tok.Text != "my col" {
		t.Fatalf("got %+v", tok)
	}
}

func TestLexerComment(t *testing.T) {
	kinds := tokenKinds(t, "SELECT 1 -- trailing comment\n")
	want := []Kind{Keyword, Number, EOF}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
}

func TestLexerOperators(t *testing.T) {
	cases := []struct {
		input string
		kind  Kind
	}{
		{"=", Eq},
		{"!=", NotEq},
		{"<>", NotEq},
		{"<", Lt},
		{"<=", LtEq},
		{">", Gt},
		{">=", GtEq},
		{"%", Percent},
	}
	for _, c := range cases {
		lex := newLexer(c.input)
		tok := lex.next()
		if tok.Kind != c.kind {
			t.Errorf("%q: got %s, want %s", c.input, tok.Kind, c.kind)
		}
	}
}
