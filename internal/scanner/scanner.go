// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package scanner provides a streaming lexer for DATA-step programs.
package scanner

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"nickandperla.net/dstep/internal/token"
)

// Scanner tokenizes program text rune-by-rune.
type Scanner struct {
	reader  *bufio.Reader
	line    int // Current line number (1-based)
	col     int // Column of the last rune read (1-based)
	prevCol int // Column before the last newline, for unread
	last    token.Token
	started bool
}

// Item represents a scanned token with its source text.
type Item struct {
	Token token.Token
	Value string
	Line  int // Line number where this token started
	Col   int
}

func (i Item) String() string {
	switch i.Token {
	case token.EOF:
		return "end of input"
	case token.IDENT, token.NUMBER:
		return fmt.Sprintf("%q", i.Value)
	case token.STRING:
		return "string " + fmt.Sprintf("%q", i.Value)
	}
	return fmt.Sprintf("%q", i.Token.String())
}

// Error is a lexical error with its position.
type Error struct {
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Col, e.Msg)
}

// New creates a new Scanner from an io.Reader.
func New(r io.Reader) *Scanner {
	return &Scanner{
		reader: bufio.NewReader(r),
		line:   1,
	}
}

// NewFromString creates a new Scanner from a string.
func NewFromString(s string) *Scanner {
	return New(strings.NewReader(s))
}

// Line returns the current line number (1-based).
func (s *Scanner) Line() int {
	return s.line
}

func (s *Scanner) read() (rune, error) {
	r, _, err := s.reader.ReadRune()
	if err != nil {
		return 0, err
	}
	if r == '\n' {
		s.line++
		s.prevCol = s.col
		s.col = 0
	} else {
		s.col++
	}
	return r, nil
}

func (s *Scanner) unread(r rune) {
	s.reader.UnreadRune()
	if r == '\n' {
		s.line--
		s.col = s.prevCol
	} else {
		s.col--
	}
}

func (s *Scanner) peek() (rune, bool) {
	r, err := s.read()
	if err != nil {
		return 0, false
	}
	s.unread(r)
	return r, true
}

func (s *Scanner) errorf(line, col int, format string, args ...any) error {
	return &Error{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

// All scans the remaining input into a slice ending with an EOF item.
func (s *Scanner) All() ([]Item, error) {
	var items []Item
	for {
		item, err := s.Next()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
		if item.Token == token.EOF {
			return items, nil
		}
	}
}

// Next returns the next token from the input. Block comments and statement
// comments (a "*" where a statement begins, up to the next ";") are skipped.
func (s *Scanner) Next() (*Item, error) {
	item, err := s.next()
	if err != nil {
		return nil, err
	}
	s.last = item.Token
	s.started = true
	return item, nil
}

func (s *Scanner) next() (*Item, error) {
	for {
		r, err := s.read()
		if err == io.EOF {
			return &Item{Token: token.EOF, Line: s.line, Col: s.col + 1}, nil
		}
		if err != nil {
			return nil, err
		}
		if unicode.IsSpace(r) {
			continue
		}

		line, col := s.line, s.col
		atStatementStart := !s.started || s.last == token.SEMI

		switch {
		case r == '/':
			if n, ok := s.peek(); ok && n == '*' {
				s.read()
				if err := s.skipBlockComment(line, col); err != nil {
					return nil, err
				}
				continue
			}
			return s.item(token.SLASH, "/", line, col), nil

		case r == '*':
			if atStatementStart {
				if err := s.skipStatementComment(); err != nil {
					return nil, err
				}
				continue
			}
			if n, ok := s.peek(); ok && n == '*' {
				s.read()
				return s.item(token.POW, "**", line, col), nil
			}
			return s.item(token.STAR, "*", line, col), nil

		case r == '\'' || r == '"':
			return s.scanString(r, line, col)

		case unicode.IsDigit(r):
			return s.scanNumber(r, line, col)

		case r == '.':
			if n, ok := s.peek(); ok && unicode.IsDigit(n) {
				return s.scanNumber(r, line, col)
			}
			return s.item(token.MISSING, ".", line, col), nil

		case isIdentStart(r):
			s.unread(r)
			name := s.scanIdent()
			tok := token.Lookup(name)
			return s.item(tok, name, line, col), nil
		}

		if item := s.scanOperator(r, line, col); item != nil {
			return item, nil
		}
		return nil, s.errorf(line, col, "unexpected character %q", r)
	}
}

func (s *Scanner) item(t token.Token, v string, line, col int) *Item {
	return &Item{Token: t, Value: v, Line: line, Col: col}
}

func (s *Scanner) scanOperator(r rune, line, col int) *Item {
	// followedBy consumes the next rune when it matches.
	followedBy := func(want rune) bool {
		if n, ok := s.peek(); ok && n == want {
			s.read()
			return true
		}
		return false
	}

	switch r {
	case ';':
		return s.item(token.SEMI, ";", line, col)
	case '(':
		return s.item(token.LPAREN, "(", line, col)
	case ')':
		return s.item(token.RPAREN, ")", line, col)
	case '{':
		return s.item(token.LBRACE, "{", line, col)
	case '}':
		return s.item(token.RBRACE, "}", line, col)
	case '[':
		return s.item(token.LBRACKET, "[", line, col)
	case ']':
		return s.item(token.RBRACKET, "]", line, col)
	case ',':
		return s.item(token.COMMA, ",", line, col)
	case '$':
		return s.item(token.DOLLAR, "$", line, col)
	case '+':
		return s.item(token.PLUS, "+", line, col)
	case '-':
		return s.item(token.MINUS, "-", line, col)
	case '=':
		return s.item(token.EQ, "=", line, col)
	case '&':
		return s.item(token.AND, "&", line, col)
	case '|':
		return s.item(token.OR, "|", line, col)
	case '<':
		if followedBy('=') {
			return s.item(token.LE, "<=", line, col)
		}
		return s.item(token.LT, "<", line, col)
	case '>':
		if followedBy('=') {
			return s.item(token.GE, ">=", line, col)
		}
		return s.item(token.GT, ">", line, col)
	case '^', '~', '¬':
		if followedBy('=') {
			return s.item(token.NE, string(r)+"=", line, col)
		}
		return s.item(token.NOT, string(r), line, col)
	}
	return nil
}

func (s *Scanner) skipBlockComment(line, col int) error {
	prev := rune(0)
	for {
		r, err := s.read()
		if err == io.EOF {
			return s.errorf(line, col, "unterminated comment")
		}
		if err != nil {
			return err
		}
		if prev == '*' && r == '/' {
			return nil
		}
		prev = r
	}
}

func (s *Scanner) skipStatementComment() error {
	for {
		r, err := s.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if r == ';' {
			return nil
		}
	}
}

// scanString reads a quoted literal. A doubled quote stands for one quote
// character.
func (s *Scanner) scanString(quote rune, line, col int) (*Item, error) {
	var sb strings.Builder
	for {
		r, err := s.read()
		if err == io.EOF {
			return nil, s.errorf(line, col, "unterminated string")
		}
		if err != nil {
			return nil, err
		}
		if r == quote {
			if n, ok := s.peek(); ok && n == quote {
				s.read()
				sb.WriteRune(quote)
				continue
			}
			return s.item(token.STRING, sb.String(), line, col), nil
		}
		sb.WriteRune(r)
	}
}

// scanNumber reads digits, an optional fraction and an optional exponent,
// starting from the already consumed rune first. The raw text is kept so
// that "5." stays distinguishable from "5".
func (s *Scanner) scanNumber(first rune, line, col int) (*Item, error) {
	var sb strings.Builder
	sb.WriteRune(first)
	digits := func() {
		for {
			r, ok := s.peek()
			if !ok || !unicode.IsDigit(r) {
				return
			}
			s.read()
			sb.WriteRune(r)
		}
	}

	digits()
	if first != '.' {
		if r, ok := s.peek(); ok && r == '.' {
			s.read()
			sb.WriteRune(r)
			digits()
		}
	}
	if r, ok := s.peek(); ok && (r == 'e' || r == 'E') {
		s.read()
		sb.WriteRune(r)
		if r, ok := s.peek(); ok && (r == '+' || r == '-') {
			s.read()
			sb.WriteRune(r)
		}
		n := sb.Len()
		digits()
		if sb.Len() == n {
			return nil, s.errorf(line, col, "malformed number %q", sb.String())
		}
	}
	if r, ok := s.peek(); ok && isIdentStart(r) {
		return nil, s.errorf(line, col, "malformed number %q", sb.String()+string(r))
	}
	return s.item(token.NUMBER, sb.String(), line, col), nil
}

// scanIdent reads a name. Dots are part of names so that FIRST.id,
// work.sales and format names like best12. scan as one token.
func (s *Scanner) scanIdent() string {
	var sb strings.Builder
	for {
		r, ok := s.peek()
		if !ok || !(isIdentChar(r) || r == '.') {
			return sb.String()
		}
		s.read()
		sb.WriteRune(r)
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

// isIdentChar returns true if the rune is valid in an identifier (letter, digit, underscore).
func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
