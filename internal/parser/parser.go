// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package parser turns DATA-step program text into ast steps.
//
// Statements are parsed by recursive descent and expressions by precedence
// climbing. A syntax error inside one step marks that step as failed and
// parsing resumes after the step's RUN statement, so one bad step does not
// prevent the rest of the program from running.
package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/scanner"
	"nickandperla.net/dstep/internal/token"
)

// Error is a parse error with its source position.
type Error struct {
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at line %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parser holds the state of one parse.
type Parser struct {
	scan *scanner.Scanner
	prev token.Token
	tok  scanner.Item
	peek scanner.Item

	// Per-step state.
	arena     *ast.Arena
	arrays    map[string]bool
	loopDepth int
}

// Parse parses a whole program.
func Parse(r io.Reader) *ast.Program {
	p := &Parser{scan: scanner.New(r)}
	p.advance()
	p.advance()
	return p.program()
}

// ParseString parses a program held in a string.
func ParseString(src string) *ast.Program {
	return Parse(strings.NewReader(src))
}

// Errors returns the parse errors of a program's steps, in order.
func Errors(prog *ast.Program) []error {
	var errs []error
	for _, s := range prog.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

func (p *Parser) advance() {
	p.prev = p.tok.Token
	p.tok = p.peek
	item, err := p.scan.Next()
	if err != nil {
		line, col := p.scan.Line(), 0
		if se, ok := err.(*scanner.Error); ok {
			line, col = se.Line, se.Col
			err = fmt.Errorf("%s", se.Msg)
		}
		p.peek = scanner.Item{Token: token.ILLEGAL, Value: err.Error(), Line: line, Col: col}
		return
	}
	p.peek = *item
}

func (p *Parser) pos() ast.Pos {
	return ast.Pos{Line: p.tok.Line, Col: p.tok.Col}
}

func (p *Parser) errorf(format string, args ...any) error {
	if p.tok.Token == token.ILLEGAL {
		return &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: p.tok.Value}
	}
	return &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: fmt.Sprintf(format, args...)}
}

// isKeyword reports whether the current token is the identifier kw.
func (p *Parser) isKeyword(kw string) bool {
	return p.tok.Token == token.IDENT && strings.EqualFold(p.tok.Value, kw)
}

func (p *Parser) expect(t token.Token) error {
	if p.tok.Token != t {
		return p.errorf("expected %q, found %s", t.String(), p.tok)
	}
	p.advance()
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errorf("expected %s, found %s", strings.ToUpper(kw), p.tok)
	}
	p.advance()
	return nil
}

func (p *Parser) ident() (string, error) {
	if p.tok.Token != token.IDENT {
		return "", p.errorf("expected a name, found %s", p.tok)
	}
	name := p.tok.Value
	p.advance()
	return name, nil
}

// atStepBoundary reports whether the current token begins a new step or
// ends the input. It is only meaningful where a statement may begin.
func (p *Parser) atStepBoundary() bool {
	if p.tok.Token == token.EOF {
		return true
	}
	return (p.isKeyword("data") || p.isKeyword("proc")) && p.peek.Token != token.EQ
}

func (p *Parser) program() *ast.Program {
	prog := &ast.Program{}
	for p.tok.Token != token.EOF {
		switch {
		case p.tok.Token == token.SEMI:
			p.advance()
		case p.isKeyword("data"):
			prog.Steps = append(prog.Steps, p.dataStep())
		case p.isKeyword("proc"):
			prog.Steps = append(prog.Steps, p.procStep())
		default:
			step := &ast.Step{Kind: ast.DataStep, Pos: p.pos()}
			step.Err = p.errorf("expected DATA or PROC, found %s", p.tok)
			p.skipStep()
			prog.Steps = append(prog.Steps, step)
		}
	}
	return prog
}

// skipStep discards tokens through the next RUN or QUIT statement, or up
// to the next step keyword.
func (p *Parser) skipStep() {
	for p.tok.Token != token.EOF {
		if p.isKeyword("run") || p.isKeyword("quit") {
			p.advance()
			if p.tok.Token == token.SEMI {
				p.advance()
			}
			return
		}
		p.advance()
		if p.prev == token.SEMI && p.atStepBoundary() {
			return
		}
	}
}

func (p *Parser) dataStep() *ast.Step {
	step := &ast.Step{Kind: ast.DataStep, Pos: p.pos()}
	p.arena = ast.NewArena()
	p.arrays = make(map[string]bool)
	p.loopDepth = 0
	step.Arena = p.arena

	if err := p.parseDataStep(step); err != nil {
		step.Err = err
		p.skipStep()
	}
	return step
}

func (p *Parser) parseDataStep(step *ast.Step) error {
	p.advance() // DATA
	if p.tok.Token == token.IDENT {
		if !strings.EqualFold(p.tok.Value, "_null_") {
			step.Name = p.tok.Value
		}
		p.advance()
	}
	if err := p.expect(token.SEMI); err != nil {
		return err
	}

	bodyPos := p.pos()
	var stmts []ast.NodeID
	var bySeen bool
	for {
		if p.isKeyword("run") {
			p.advance()
			if err := p.expect(token.SEMI); err != nil {
				return err
			}
			break
		}
		if p.atStepBoundary() {
			break
		}

		switch {
		case p.isKeyword("set") && p.peek.Token != token.EQ,
			p.isKeyword("merge") && p.peek.Token != token.EQ:
			if step.Input != ast.NoInput {
				return p.errorf("only one SET or MERGE statement is allowed per step")
			}
			mode := ast.SetInput
			if p.isKeyword("merge") {
				mode = ast.MergeInput
			}
			p.advance()
			sources, err := p.sources()
			if err != nil {
				return err
			}
			step.Input = mode
			step.Sources = sources

		case p.isKeyword("by") && p.peek.Token != token.EQ:
			if bySeen {
				return p.errorf("duplicate BY statement")
			}
			bySeen = true
			p.advance()
			names, err := p.nameList()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return p.errorf("BY statement needs at least one variable")
			}
			step.By = names
			if err := p.expect(token.SEMI); err != nil {
				return err
			}

		default:
			id, err := p.statement()
			if err != nil {
				return err
			}
			if id != ast.None {
				stmts = append(stmts, id)
			}
		}
	}

	if step.Input == ast.MergeInput && len(step.By) == 0 {
		// MERGE without BY pairs rows by position; this engine requires BY.
		return &Error{Line: step.Pos.Line, Col: step.Pos.Col, Msg: "MERGE requires a BY statement"}
	}
	if bySeen && step.Input == ast.NoInput {
		return &Error{Line: step.Pos.Line, Col: step.Pos.Col, Msg: "BY statement requires SET or MERGE"}
	}
	step.Body = p.arena.Block(bodyPos, stmts...)
	return nil
}

// sources parses "ds1 (in=a) ds2 ...;".
func (p *Parser) sources() ([]ast.Source, error) {
	var out []ast.Source
	for p.tok.Token == token.IDENT {
		src := ast.Source{Name: p.tok.Value, Pos: p.pos()}
		p.advance()
		if p.tok.Token == token.LPAREN {
			p.advance()
			for p.tok.Token != token.RPAREN {
				opt, err := p.ident()
				if err != nil {
					return nil, err
				}
				if !strings.EqualFold(opt, "in") {
					return nil, p.errorf("unsupported dataset option %s", strings.ToUpper(opt))
				}
				if err := p.expect(token.EQ); err != nil {
					return nil, err
				}
				flag, err := p.ident()
				if err != nil {
					return nil, err
				}
				src.InFlag = flag
			}
			p.advance()
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, p.errorf("expected a dataset name, found %s", p.tok)
	}
	return out, p.expect(token.SEMI)
}

func (p *Parser) procStep() *ast.Step {
	step := &ast.Step{Kind: ast.ProcStep, Pos: p.pos(), Options: make(map[string]string)}
	if err := p.parseProcStep(step); err != nil {
		step.Err = err
		p.skipStep()
	}
	return step
}

// parseProcStep reads "PROC name key=value flag ...;" and the statements up
// to RUN or QUIT. Each body statement is recorded under its first word with
// the remaining words joined by spaces.
func (p *Parser) parseProcStep(step *ast.Step) error {
	p.advance() // PROC
	name, err := p.ident()
	if err != nil {
		return err
	}
	step.Name = strings.ToLower(name)

	for p.tok.Token != token.SEMI {
		key, err := p.ident()
		if err != nil {
			return err
		}
		key = strings.ToLower(key)
		step.Options[key] = ""
		if p.tok.Token == token.EQ {
			p.advance()
			switch p.tok.Token {
			case token.IDENT, token.NUMBER, token.STRING:
				step.Options[key] = p.tok.Value
				p.advance()
			default:
				return p.errorf("expected an option value, found %s", p.tok)
			}
		}
	}
	p.advance()

	for {
		if p.isKeyword("run") || p.isKeyword("quit") {
			p.advance()
			return p.expect(token.SEMI)
		}
		if p.atStepBoundary() {
			return nil
		}
		if p.tok.Token == token.SEMI {
			p.advance()
			continue
		}
		key, err := p.ident()
		if err != nil {
			return err
		}
		var words []string
		for p.tok.Token != token.SEMI {
			if p.tok.Token == token.EOF {
				return p.errorf("unterminated PROC statement")
			}
			words = append(words, p.tok.Value)
			p.advance()
		}
		p.advance()
		step.Options[strings.ToLower(key)] = strings.Join(words, " ")
	}
}

// nameList parses variable names, expanding numbered ranges such as
// x1-x3. It stops at the first token that cannot continue the list.
func (p *Parser) nameList() ([]string, error) {
	var names []string
	for p.tok.Token == token.IDENT {
		first := p.tok.Value
		p.advance()
		if p.tok.Token == token.MINUS && p.peek.Token == token.IDENT {
			p.advance()
			last := p.tok.Value
			expanded, err := expandRange(first, last)
			if err != nil {
				return nil, p.errorf("%v", err)
			}
			p.advance()
			names = append(names, expanded...)
			continue
		}
		names = append(names, first)
	}
	return names, nil
}

// expandRange expands "x1" .. "x3" into x1 x2 x3. Both ends must share the
// same prefix and carry a numeric suffix.
func expandRange(first, last string) ([]string, error) {
	p1, n1, ok1 := splitNumericSuffix(first)
	p2, n2, ok2 := splitNumericSuffix(last)
	if !ok1 || !ok2 || !strings.EqualFold(p1, p2) {
		return nil, fmt.Errorf("invalid variable range %s-%s", first, last)
	}
	if n2 < n1 {
		return nil, fmt.Errorf("variable range %s-%s runs backwards", first, last)
	}
	out := make([]string, 0, n2-n1+1)
	for i := n1; i <= n2; i++ {
		out = append(out, p1+strconv.Itoa(i))
	}
	return out, nil
}

func splitNumericSuffix(name string) (string, int, bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) || i == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], n, true
}
