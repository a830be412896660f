// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package parser

import (
	"strconv"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/token"
)

// statement parses one statement of a DATA step body. It returns None for
// an empty statement.
func (p *Parser) statement() (ast.NodeID, error) {
	if p.tok.Token == token.SEMI {
		p.advance()
		return ast.None, nil
	}
	if p.tok.Token != token.IDENT {
		return ast.None, p.errorf("expected a statement, found %s", p.tok)
	}

	// A keyword followed by "=" is an assignment to a variable of that name.
	if p.peek.Token != token.EQ {
		switch strings.ToLower(p.tok.Value) {
		case "if":
			return p.ifStatement()
		case "do":
			return p.doStatement()
		case "leave", "continue":
			return p.loopControl()
		case "output":
			return p.simple(ast.Output)
		case "delete":
			return p.simple(ast.Delete)
		case "retain":
			return p.retainStatement()
		case "array":
			return p.arrayStatement()
		case "drop", "keep":
			return p.dropKeepStatement()
		case "format":
			return p.formatStatement()
		case "set", "merge", "by":
			return ast.None, p.errorf("%s must appear at the top level of a DATA step", strings.ToUpper(p.tok.Value))
		case "end":
			return ast.None, p.errorf("END without a matching DO")
		}
	}
	return p.assignment()
}

func (p *Parser) simple(kind ast.Kind) (ast.NodeID, error) {
	pos := p.pos()
	p.advance()
	if err := p.expect(token.SEMI); err != nil {
		return ast.None, err
	}
	return p.arena.Simple(pos, kind), nil
}

func (p *Parser) loopControl() (ast.NodeID, error) {
	kind := ast.Leave
	if p.isKeyword("continue") {
		kind = ast.Continue
	}
	if p.loopDepth == 0 {
		return ast.None, p.errorf("%s outside of a loop", strings.ToUpper(p.tok.Value))
	}
	return p.simple(kind)
}

func (p *Parser) assignment() (ast.NodeID, error) {
	pos := p.pos()
	target, err := p.target()
	if err != nil {
		return ast.None, err
	}
	if err := p.expect(token.EQ); err != nil {
		return ast.None, err
	}
	val, err := p.expr()
	if err != nil {
		return ast.None, err
	}
	if err := p.expect(token.SEMI); err != nil {
		return ast.None, err
	}
	return p.arena.Assign(pos, target, val), nil
}

// target parses the left side of an assignment: a variable or an array
// element.
func (p *Parser) target() (ast.NodeID, error) {
	pos := p.pos()
	name, err := p.ident()
	if err != nil {
		return ast.None, err
	}
	if p.opensSubscript(name) {
		subs, err := p.subscripts(false)
		if err != nil {
			return ast.None, err
		}
		return p.arena.Index(pos, name, subs...), nil
	}
	return p.arena.Var(pos, name), nil
}

// ifStatement parses both forms of IF: "IF cond THEN stmt [ELSE stmt]" and
// the subsetting "IF cond;", which deletes the row when cond is false.
func (p *Parser) ifStatement() (ast.NodeID, error) {
	pos := p.pos()
	p.advance() // IF
	cond, err := p.expr()
	if err != nil {
		return ast.None, err
	}

	if p.tok.Token == token.SEMI {
		p.advance()
		del := p.arena.Simple(pos, ast.Delete)
		return p.arena.If(pos, cond, ast.None, del), nil
	}

	if err := p.expectKeyword("then"); err != nil {
		return ast.None, err
	}
	then, err := p.branch()
	if err != nil {
		return ast.None, err
	}
	els := ast.None
	if p.isKeyword("else") && p.peek.Token != token.EQ {
		p.advance()
		if els, err = p.branch(); err != nil {
			return ast.None, err
		}
	}
	return p.arena.If(pos, cond, then, els), nil
}

// branch parses the statement after THEN or ELSE. An empty statement
// yields an empty block so the branch is never None.
func (p *Parser) branch() (ast.NodeID, error) {
	pos := p.pos()
	id, err := p.statement()
	if err != nil {
		return ast.None, err
	}
	if id == ast.None {
		return p.arena.Block(pos), nil
	}
	return id, nil
}

// doStatement parses the four DO forms:
//
//	do; ... end;
//	do i = start to stop [by step]; ... end;
//	do while (cond); ... end;
//	do until (cond); ... end;
func (p *Parser) doStatement() (ast.NodeID, error) {
	pos := p.pos()
	p.advance() // DO

	if p.tok.Token == token.SEMI {
		p.advance()
		return p.doBody(pos)
	}

	if (p.isKeyword("while") || p.isKeyword("until")) && p.peek.Token == token.LPAREN {
		until := p.isKeyword("until")
		p.advance()
		cond, err := p.expr()
		if err != nil {
			return ast.None, err
		}
		if err := p.expect(token.SEMI); err != nil {
			return ast.None, err
		}
		body, err := p.loopBody(pos)
		if err != nil {
			return ast.None, err
		}
		if until {
			return p.arena.DoUntil(pos, cond, body), nil
		}
		return p.arena.DoWhile(pos, cond, body), nil
	}

	variable, err := p.ident()
	if err != nil {
		return ast.None, err
	}
	if err := p.expect(token.EQ); err != nil {
		return ast.None, err
	}
	start, err := p.expr()
	if err != nil {
		return ast.None, err
	}
	if err := p.expectKeyword("to"); err != nil {
		return ast.None, err
	}
	stop, err := p.expr()
	if err != nil {
		return ast.None, err
	}
	step := ast.None
	if p.isKeyword("by") {
		p.advance()
		if step, err = p.expr(); err != nil {
			return ast.None, err
		}
	}
	if err := p.expect(token.SEMI); err != nil {
		return ast.None, err
	}
	body, err := p.loopBody(pos)
	if err != nil {
		return ast.None, err
	}
	return p.arena.DoIndexed(pos, variable, start, stop, step, body), nil
}

func (p *Parser) loopBody(pos ast.Pos) (ast.NodeID, error) {
	p.loopDepth++
	defer func() { p.loopDepth-- }()
	return p.doBody(pos)
}

// doBody parses statements up to and including "END;".
func (p *Parser) doBody(pos ast.Pos) (ast.NodeID, error) {
	var stmts []ast.NodeID
	for {
		if p.isKeyword("end") && p.peek.Token != token.EQ {
			p.advance()
			if err := p.expect(token.SEMI); err != nil {
				return ast.None, err
			}
			return p.arena.Block(pos, stmts...), nil
		}
		if p.isKeyword("run") || p.atStepBoundary() {
			return ast.None, &Error{Line: pos.Line, Col: pos.Col, Msg: "DO without a matching END"}
		}
		id, err := p.statement()
		if err != nil {
			return ast.None, err
		}
		if id != ast.None {
			stmts = append(stmts, id)
		}
	}
}

// retainStatement parses "RETAIN a b 0 c 'x' d;". A constant gives the
// initial value of every name listed since the previous constant.
func (p *Parser) retainStatement() (ast.NodeID, error) {
	pos := p.pos()
	p.advance() // RETAIN
	var names []string
	var inits []ast.NodeID
	pending := 0
	for p.tok.Token != token.SEMI {
		if p.tok.Token == token.IDENT {
			list, err := p.nameList()
			if err != nil {
				return ast.None, err
			}
			for _, n := range list {
				names = append(names, n)
				inits = append(inits, ast.None)
			}
			pending += len(list)
			continue
		}
		init, err := p.constant()
		if err != nil {
			return ast.None, err
		}
		if pending == 0 {
			return ast.None, p.errorf("RETAIN initial value without a variable")
		}
		for i := len(inits) - pending; i < len(inits); i++ {
			inits[i] = init
		}
		pending = 0
	}
	p.advance()
	if len(names) == 0 {
		return ast.None, &Error{Line: pos.Line, Col: pos.Col, Msg: "RETAIN needs at least one variable"}
	}
	return p.arena.Retain(pos, names, inits), nil
}

// constant parses a literal: a number (optionally negative), a string or
// the missing value.
func (p *Parser) constant() (ast.NodeID, error) {
	pos := p.pos()
	neg := false
	if p.tok.Token == token.MINUS {
		neg = true
		p.advance()
	}
	switch p.tok.Token {
	case token.NUMBER:
		f, err := strconv.ParseFloat(p.tok.Value, 64)
		if err != nil {
			return ast.None, p.errorf("invalid number %q", p.tok.Value)
		}
		p.advance()
		if neg {
			f = -f
		}
		return p.arena.Number(pos, f), nil
	case token.STRING:
		if !neg {
			s := p.tok.Value
			p.advance()
			return p.arena.String(pos, s), nil
		}
	case token.MISSING:
		if !neg {
			p.advance()
			return p.arena.Missing(pos), nil
		}
	}
	return ast.None, p.errorf("expected a constant, found %s", p.tok)
}

// arrayStatement parses "ARRAY name{dims} [$ [len]] [vars];". A dimension
// of "*" takes its size from the variable list.
func (p *Parser) arrayStatement() (ast.NodeID, error) {
	pos := p.pos()
	p.advance() // ARRAY
	name, err := p.ident()
	if err != nil {
		return ast.None, err
	}
	closeTok, ok := closer(p.tok.Token)
	if !ok {
		return ast.None, p.errorf("expected array dimensions after %s, found %s", name, p.tok)
	}
	p.advance()

	var dims []int
	for {
		switch p.tok.Token {
		case token.STAR:
			dims = append(dims, 0)
		case token.NUMBER:
			n, err := strconv.Atoi(strings.TrimSuffix(p.tok.Value, "."))
			if err != nil || n <= 0 {
				return ast.None, p.errorf("invalid array dimension %s", p.tok.Value)
			}
			dims = append(dims, n)
		default:
			return ast.None, p.errorf("expected an array dimension, found %s", p.tok)
		}
		p.advance()
		if p.tok.Token != token.COMMA {
			break
		}
		p.advance()
	}
	if err := p.expect(closeTok); err != nil {
		return ast.None, err
	}

	if p.tok.Token == token.DOLLAR {
		p.advance()
		if p.tok.Token == token.NUMBER {
			p.advance()
		}
	}

	names, err := p.nameList()
	if err != nil {
		return ast.None, err
	}
	if err := p.expect(token.SEMI); err != nil {
		return ast.None, err
	}
	p.arrays[strings.ToLower(name)] = true
	return p.arena.Array(pos, name, dims, names), nil
}

func (p *Parser) dropKeepStatement() (ast.NodeID, error) {
	pos := p.pos()
	keep := p.isKeyword("keep")
	p.advance()
	names, err := p.nameList()
	if err != nil {
		return ast.None, err
	}
	if err := p.expect(token.SEMI); err != nil {
		return ast.None, err
	}
	if len(names) == 0 {
		return ast.None, &Error{Line: pos.Line, Col: pos.Col, Msg: "DROP and KEEP need at least one variable"}
	}
	if keep {
		return p.arena.Keep(pos, names), nil
	}
	return p.arena.Drop(pos, names), nil
}

// formatStatement parses "FORMAT a b best8. c $10.;". A format spec applies
// to every name listed since the previous spec.
func (p *Parser) formatStatement() (ast.NodeID, error) {
	pos := p.pos()
	p.advance() // FORMAT
	var names, specs []string
	pending := 0
	for p.tok.Token != token.SEMI {
		if p.tok.Token == token.IDENT && !strings.Contains(p.tok.Value, ".") {
			list, err := p.ofNames()
			if err != nil {
				return ast.None, err
			}
			names = append(names, list...)
			specs = append(specs, make([]string, len(list))...)
			pending += len(list)
			continue
		}
		spec, err := p.formatSpec()
		if err != nil {
			return ast.None, err
		}
		if pending == 0 {
			return ast.None, p.errorf("format %s without a variable", spec)
		}
		for i := len(specs) - pending; i < len(specs); i++ {
			specs[i] = spec
		}
		pending = 0
	}
	p.advance()
	if pending > 0 {
		return ast.None, &Error{Line: pos.Line, Col: pos.Col, Msg: "FORMAT variables without a format"}
	}
	return p.arena.Format(pos, names, specs), nil
}

func (p *Parser) formatSpec() (string, error) {
	switch p.tok.Token {
	case token.IDENT, token.NUMBER:
		spec := p.tok.Value
		p.advance()
		return spec, nil
	case token.DOLLAR:
		p.advance()
		switch p.tok.Token {
		case token.IDENT, token.NUMBER:
			spec := "$" + p.tok.Value
			p.advance()
			return spec, nil
		}
		return "$", nil
	}
	return "", p.errorf("expected a format, found %s", p.tok)
}
