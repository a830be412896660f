// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package token defines the lexical tokens of the DATA-step language.
package token

import "strings"

// Token represents a token type.
type Token int

const (
	EOF     Token = iota
	ILLEGAL       // a lexical error; Value holds the message
	IDENT
	NUMBER
	STRING
	MISSING // a lone "." numeric literal

	// Punctuation
	SEMI     // ;
	LPAREN   // (
	RPAREN   // )
	LBRACE   // {
	RBRACE   // }
	LBRACKET // [
	RBRACKET // ]
	COMMA    // ,
	DOLLAR   // $

	// Operators
	PLUS  // +
	MINUS // -
	STAR  // *
	SLASH // /
	POW   // **
	EQ    // = or EQ; also the assignment sign
	NE    // ^= ~= NE
	LT    // < LT
	LE    // <= LE
	GT    // > GT
	GE    // >= GE
	AND   // & AND
	OR    // | OR
	NOT   // ^ ~ NOT
)

var names = map[Token]string{
	EOF:      "EOF",
	ILLEGAL:  "ILLEGAL",
	IDENT:    "IDENT",
	NUMBER:   "NUMBER",
	STRING:   "STRING",
	MISSING:  "MISSING",
	SEMI:     ";",
	LPAREN:   "(",
	RPAREN:   ")",
	LBRACE:   "{",
	RBRACE:   "}",
	LBRACKET: "[",
	RBRACKET: "]",
	COMMA:    ",",
	DOLLAR:   "$",
	PLUS:     "+",
	MINUS:    "-",
	STAR:     "*",
	SLASH:    "/",
	POW:      "**",
	EQ:       "=",
	NE:       "^=",
	LT:       "<",
	LE:       "<=",
	GT:       ">",
	GE:       ">=",
	AND:      "AND",
	OR:       "OR",
	NOT:      "NOT",
}

// String returns the string representation of a token.
func (t Token) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Mnemonic operator spellings, matched case-insensitively.
var mnemonics = map[string]Token{
	"eq":  EQ,
	"ne":  NE,
	"lt":  LT,
	"le":  LE,
	"gt":  GT,
	"ge":  GE,
	"and": AND,
	"or":  OR,
	"not": NOT,
}

// Lookup returns the operator token spelled by an identifier, or IDENT.
func Lookup(ident string) Token {
	if t, ok := mnemonics[strings.ToLower(ident)]; ok {
		return t
	}
	return IDENT
}

// Precedence levels of binary operators, lowest first. Zero means the token
// is not a binary operator.
const (
	LowestPrec   = 0
	OrPrec       = 1
	AndPrec      = 2
	ComparePrec  = 3
	AdditivePrec = 4
	MultiplyPrec = 5
	UnaryPrec    = 6 // binds tighter than * and /, looser than **
	ExponentPrec = 7
)

// Precedence returns the binary precedence of t.
func (t Token) Precedence() int {
	switch t {
	case OR:
		return OrPrec
	case AND:
		return AndPrec
	case EQ, NE, LT, LE, GT, GE:
		return ComparePrec
	case PLUS, MINUS:
		return AdditivePrec
	case STAR, SLASH:
		return MultiplyPrec
	case POW:
		return ExponentPrec
	}
	return LowestPrec
}

// IsBinary reports whether t may appear as an infix operator.
func (t Token) IsBinary() bool { return t.Precedence() > LowestPrec }

// RightAssoc reports whether the binary operator groups right to left.
func (t Token) RightAssoc() bool { return t == POW }

// IsComparison reports whether t is one of the comparison operators.
func (t Token) IsComparison() bool { return t.Precedence() == ComparePrec }
