// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package eval evaluates DATA-step expressions and executes statements
// against the current row of a running step.
//
// Arithmetic and comparison operators propagate Missing. AND and OR always
// evaluate both operands. Failures are reported as *Error values carrying
// the position of the statement that raised them.
package eval

import (
	"fmt"
	"math"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/token"
	"nickandperla.net/dstep/internal/value"
)

// Eval computes the value of expression id against row.
func (c *Context) Eval(id ast.NodeID, row *table.Row) (value.Value, error) {
	n := c.arena.Node(id)
	switch n.Kind {
	case ast.NumberLiteral:
		return value.Number(n.Num), nil
	case ast.TextLiteral:
		return value.Text(n.Text), nil
	case ast.MissingLiteral:
		return value.Missing(), nil
	case ast.VariableRef:
		return c.lookup(n.Name, row)
	case ast.ArrayRef:
		name, err := c.element(n, row)
		if err != nil {
			return value.Missing(), err
		}
		v, _ := row.Get(name)
		return v, nil
	case ast.UnaryOp:
		x, err := c.Eval(n.Left, row)
		if err != nil {
			return value.Missing(), err
		}
		return unary(n.Op, x)
	case ast.BinaryOp:
		l, err := c.Eval(n.Left, row)
		if err != nil {
			return value.Missing(), err
		}
		r, err := c.Eval(n.Right, row)
		if err != nil {
			return value.Missing(), err
		}
		return binary(n.Op, l, r)
	case ast.FunctionCall:
		return c.call(n, row)
	case ast.Assignment, ast.IfThenElse, ast.IndexedDo, ast.WhileDo, ast.UntilDo,
		ast.Leave, ast.Continue, ast.Output, ast.Delete, ast.RetainDecl, ast.ArrayDecl,
		ast.DropDecl, ast.KeepDecl, ast.FormatDecl, ast.Block:
		return value.Missing(), fmt.Errorf("%s is not an expression", n.Kind)
	}
	panic(fmt.Sprintf("eval: unhandled kind %s", n.Kind))
}

func (c *Context) lookup(name string, row *table.Row) (value.Value, error) {
	if v, ok := row.Get(name); ok {
		return v, nil
	}
	if v, ok := c.Automatic(name); ok {
		return v, nil
	}
	return value.Missing(), fmt.Errorf("%w %s", ErrUndefinedVariable, name)
}

// element resolves an array reference to the name of its backing variable.
func (c *Context) element(n *ast.Node, row *table.Row) (string, error) {
	arr, ok := c.Array(n.Name)
	if !ok {
		return "", fmt.Errorf("%w %s", ErrUndefinedArray, n.Name)
	}
	if len(n.Args) == 0 {
		return "", fmt.Errorf("%s{*} is only allowed in an OF list", n.Name)
	}
	subs := make([]int, len(n.Args))
	for i, arg := range n.Args {
		v, err := c.Eval(arg, row)
		if err != nil {
			return "", err
		}
		if v.IsMissing() {
			return "", fmt.Errorf("%w: %s subscript %d is missing", ErrSubscriptRange, n.Name, i+1)
		}
		f, err := v.ToNumber()
		if err != nil {
			return "", err
		}
		if f != math.Trunc(f) {
			return "", fmt.Errorf("%w: %s subscript %d is not an integer: %s",
				ErrSubscriptRange, n.Name, i+1, value.FormatNumber(f))
		}
		subs[i] = int(f)
	}
	return arr.Element(subs)
}

func unary(op token.Token, x value.Value) (value.Value, error) {
	switch op {
	case token.NOT:
		if x.IsMissing() {
			return value.Bool(true), nil
		}
		return value.Bool(!x.Truthy()), nil
	case token.MINUS, token.PLUS:
		if x.IsMissing() {
			return x, nil
		}
		f, err := x.ToNumber()
		if err != nil {
			return value.Missing(), err
		}
		if op == token.MINUS {
			f = -f
		}
		return value.Number(f), nil
	}
	return value.Missing(), fmt.Errorf("%w: unary %s", ErrOperator, op)
}

func binary(op token.Token, l, r value.Value) (value.Value, error) {
	switch op {
	case token.AND, token.OR:
		lb, rb := l.Truthy(), r.Truthy()
		if op == token.AND {
			return value.Bool(lb && rb), nil
		}
		return value.Bool(lb || rb), nil

	case token.EQ, token.NE, token.LT, token.LE, token.GT, token.GE:
		if l.IsMissing() || r.IsMissing() {
			return value.Missing(), nil
		}
		cmp, err := compare(l, r)
		if err != nil {
			return value.Missing(), err
		}
		return value.Bool(holds(op, cmp)), nil

	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.POW:
		if l.IsMissing() || r.IsMissing() {
			return value.Missing(), nil
		}
		a, err := l.ToNumber()
		if err != nil {
			return value.Missing(), err
		}
		b, err := r.ToNumber()
		if err != nil {
			return value.Missing(), err
		}
		return arith(op, a, b)
	}
	return value.Missing(), fmt.Errorf("%w: %q is not a binary operator", ErrOperator, op.String())
}

// compare orders two non-missing values. Two texts compare
// lexicographically; otherwise the text side is read as a number.
func compare(l, r value.Value) (int, error) {
	if ls, ok := l.Str(); ok {
		if rs, ok := r.Str(); ok {
			return strings.Compare(ls, rs), nil
		}
	}
	a, err := l.ToNumber()
	if err != nil {
		return 0, err
	}
	b, err := r.ToNumber()
	if err != nil {
		return 0, err
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}

func holds(op token.Token, cmp int) bool {
	switch op {
	case token.EQ:
		return cmp == 0
	case token.NE:
		return cmp != 0
	case token.LT:
		return cmp < 0
	case token.LE:
		return cmp <= 0
	case token.GT:
		return cmp > 0
	}
	return cmp >= 0
}

func arith(op token.Token, a, b float64) (value.Value, error) {
	switch op {
	case token.PLUS:
		return value.Number(a + b), nil
	case token.MINUS:
		return value.Number(a - b), nil
	case token.STAR:
		return value.Number(a * b), nil
	case token.SLASH:
		if b == 0 {
			return value.Missing(), ErrDivisionByZero
		}
		return value.Number(a / b), nil
	}
	p := math.Pow(a, b)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return value.Missing(), fmt.Errorf("%w: %s ** %s", ErrDomain, value.FormatNumber(a), value.FormatNumber(b))
	}
	return value.Number(p), nil
}
