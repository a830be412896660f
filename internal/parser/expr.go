// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package parser

import (
	"strconv"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/token"
)

func (p *Parser) expr() (ast.NodeID, error) {
	return p.binary(token.OrPrec)
}

// binary parses operators whose precedence is at least minPrec. Operators
// at the same level group left to right, except ** which groups right to
// left.
func (p *Parser) binary(minPrec int) (ast.NodeID, error) {
	left, err := p.unary()
	if err != nil {
		return ast.None, err
	}
	for {
		op := p.tok.Token
		prec := op.Precedence()
		if prec == token.LowestPrec || prec < minPrec {
			return left, nil
		}
		pos := p.pos()
		p.advance()
		next := prec + 1
		if op.RightAssoc() {
			next = prec
		}
		right, err := p.binary(next)
		if err != nil {
			return ast.None, err
		}
		left = p.arena.Binary(pos, op, left, right)
	}
}

// unary parses prefix + - and NOT. Their operand may contain ** but nothing
// looser, so -2**2 is -(2**2).
func (p *Parser) unary() (ast.NodeID, error) {
	switch p.tok.Token {
	case token.MINUS, token.PLUS, token.NOT:
		pos, op := p.pos(), p.tok.Token
		p.advance()
		x, err := p.binary(token.UnaryPrec + 1)
		if err != nil {
			return ast.None, err
		}
		return p.arena.Unary(pos, op, x), nil
	}
	return p.primary()
}

func (p *Parser) primary() (ast.NodeID, error) {
	pos := p.pos()
	switch p.tok.Token {
	case token.NUMBER:
		f, err := strconv.ParseFloat(p.tok.Value, 64)
		if err != nil {
			return ast.None, p.errorf("invalid number %q", p.tok.Value)
		}
		p.advance()
		return p.arena.Number(pos, f), nil

	case token.STRING:
		s := p.tok.Value
		p.advance()
		return p.arena.String(pos, s), nil

	case token.MISSING:
		p.advance()
		return p.arena.Missing(pos), nil

	case token.LPAREN:
		p.advance()
		x, err := p.expr()
		if err != nil {
			return ast.None, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return ast.None, err
		}
		return x, nil

	case token.IDENT:
		name := p.tok.Value
		p.advance()
		if p.opensSubscript(name) {
			subs, err := p.subscripts(false)
			if err != nil {
				return ast.None, err
			}
			return p.arena.Index(pos, name, subs...), nil
		}
		if p.tok.Token == token.LPAREN {
			args, err := p.callArgs()
			if err != nil {
				return ast.None, err
			}
			return p.arena.Call(pos, name, args...), nil
		}
		return p.arena.Var(pos, name), nil
	}
	return ast.None, p.errorf("unexpected %s in expression", p.tok)
}

// closer returns the token closing the subscript bracket t.
func closer(t token.Token) (token.Token, bool) {
	switch t {
	case token.LBRACE:
		return token.RBRACE, true
	case token.LBRACKET:
		return token.RBRACKET, true
	case token.LPAREN:
		return token.RPAREN, true
	}
	return 0, false
}

// opensSubscript reports whether the current token starts a subscript of
// name. Braces and brackets always subscript; parentheses only after a
// declared array, since otherwise they are a function call.
func (p *Parser) opensSubscript(name string) bool {
	switch p.tok.Token {
	case token.LBRACE, token.LBRACKET:
		return true
	case token.LPAREN:
		return p.arrays[strings.ToLower(name)]
	}
	return false
}

// subscripts parses "{e1, e2}". With all set, "{*}" is accepted and yields
// no subscripts, standing for every element.
func (p *Parser) subscripts(all bool) ([]ast.NodeID, error) {
	closeTok, _ := closer(p.tok.Token)
	p.advance()
	if p.tok.Token == token.STAR && p.peek.Token == closeTok {
		if !all {
			return nil, p.errorf("{*} is only allowed in an OF list")
		}
		p.advance()
		p.advance()
		return nil, nil
	}
	var subs []ast.NodeID
	for {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		subs = append(subs, x)
		if p.tok.Token != token.COMMA {
			break
		}
		p.advance()
	}
	if err := p.expect(closeTok); err != nil {
		return nil, err
	}
	return subs, nil
}

// callArgs parses a parenthesized argument list. "OF x1-x3 a{*}" passes a
// list of variables and whole arrays instead of expressions.
func (p *Parser) callArgs() ([]ast.NodeID, error) {
	p.advance() // (
	var args []ast.NodeID
	if p.tok.Token == token.RPAREN {
		p.advance()
		return args, nil
	}
	if p.isKeyword("of") && p.peek.Token == token.IDENT {
		p.advance()
		for p.tok.Token == token.IDENT {
			pos := p.pos()
			name := p.tok.Value
			if t := p.peek.Token; t == token.LBRACE || t == token.LBRACKET || (t == token.LPAREN && p.arrays[strings.ToLower(name)]) {
				p.advance()
				subs, err := p.subscripts(true)
				if err != nil {
					return nil, err
				}
				args = append(args, p.arena.Index(pos, name, subs...))
				continue
			}
			names, err := p.ofNames()
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				args = append(args, p.arena.Var(pos, n))
			}
		}
		return args, p.expect(token.RPAREN)
	}
	for {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, x)
		if p.tok.Token != token.COMMA {
			break
		}
		p.advance()
	}
	return args, p.expect(token.RPAREN)
}

// ofNames parses one name or numbered range inside an OF list.
func (p *Parser) ofNames() ([]string, error) {
	first := p.tok.Value
	p.advance()
	if p.tok.Token == token.MINUS && p.peek.Token == token.IDENT {
		p.advance()
		names, err := expandRange(first, p.tok.Value)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		p.advance()
		return names, nil
	}
	return []string{first}, nil
}
