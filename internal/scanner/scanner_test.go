package scanner

import (
	"errors"
	"testing"

	"nickandperla.net/dstep/internal/token"
)

func scanAll(t *testing.T, src string) []Item {
	t.Helper()
	items, err := NewFromString(src).All()
	if err != nil {
		t.Fatalf("scan %q failed: %v", src, err)
	}
	return items
}

func TestScanTokens(t *testing.T) {
	items := scanAll(t, "x = a ** 2 ^= 3; if first.id and b >= .5 then y = 'it''s';")

	want := []struct {
		tok token.Token
		val string
	}{
		{token.IDENT, "x"},
		{token.EQ, "="},
		{token.IDENT, "a"},
		{token.POW, "**"},
		{token.NUMBER, "2"},
		{token.NE, "^="},
		{token.NUMBER, "3"},
		{token.SEMI, ";"},
		{token.IDENT, "if"},
		{token.IDENT, "first.id"},
		{token.AND, "and"},
		{token.IDENT, "b"},
		{token.GE, ">="},
		{token.NUMBER, ".5"},
		{token.IDENT, "then"},
		{token.IDENT, "y"},
		{token.EQ, "="},
		{token.STRING, "it's"},
		{token.SEMI, ";"},
		{token.EOF, ""},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(items), items)
	}
	for i, w := range want {
		if items[i].Token != w.tok || items[i].Value != w.val {
			t.Errorf("item %d: expected %s %q, got %s %q", i, w.tok, w.val, items[i].Token, items[i].Value)
		}
	}
}

func TestScanMissingAndFormats(t *testing.T) {
	items := scanAll(t, "x = .; format y 8.2 z $10. w best12.;")
	var got []string
	for _, it := range items {
		got = append(got, it.Token.String()+":"+it.Value)
	}
	want := []string{
		"IDENT:x", "=:=", "MISSING:.", ";:;",
		"IDENT:format", "IDENT:y", "NUMBER:8.2", "IDENT:z", "$:$", "NUMBER:10.",
		"IDENT:w", "IDENT:best12.", ";:;", "EOF:",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestScanComments(t *testing.T) {
	items := scanAll(t, "* a statement comment; x = 1 /* inline */ * 2;\n* another;")
	var toks []token.Token
	for _, it := range items {
		toks = append(toks, it.Token)
	}
	want := []token.Token{token.IDENT, token.EQ, token.NUMBER, token.STAR, token.NUMBER, token.SEMI, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %v, got %v", want, toks)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d: expected %s, got %s", i, want[i], toks[i])
		}
	}
}

func TestScanPositions(t *testing.T) {
	items := scanAll(t, "data out;\n  x = 1;")
	x := items[3]
	if x.Value != "x" || x.Line != 2 || x.Col != 3 {
		t.Errorf("expected x at 2:3, got %q at %d:%d", x.Value, x.Line, x.Col)
	}
}

func TestScanMnemonics(t *testing.T) {
	items := scanAll(t, "a EQ b Ne c lt d NOT e Or f")
	want := []token.Token{token.IDENT, token.EQ, token.IDENT, token.NE, token.IDENT, token.LT,
		token.IDENT, token.NOT, token.IDENT, token.OR, token.IDENT, token.EOF}
	for i := range want {
		if items[i].Token != want[i] {
			t.Errorf("token %d: expected %s, got %s", i, want[i], items[i].Token)
		}
	}
}

func TestScanErrors(t *testing.T) {
	for _, src := range []string{"x = 'open", "/* never closed", "x = 1e;", "x = @;", "x = 12ab;"} {
		_, err := NewFromString(src).All()
		var se *Error
		if !errors.As(err, &se) {
			t.Errorf("scan %q: expected *Error, got %v", src, err)
		}
	}
}
