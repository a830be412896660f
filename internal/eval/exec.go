// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// Signal tells the caller of Exec how control left a statement.
type Signal uint8

const (
	Normal   Signal = iota // fall through to the next statement
	Leave                  // exit the innermost loop
	Continue               // start the next iteration of the innermost loop
	Delete                 // end the row without implicit output
	StopStep               // abort the step; returned with an error
)

func (s Signal) String() string {
	switch s {
	case Normal:
		return "normal"
	case Leave:
		return "leave"
	case Continue:
		return "continue"
	case Delete:
		return "delete"
	case StopStep:
		return "stop"
	}
	return "unknown"
}

// Exec runs statement id against row. Emitted rows go to the context's
// pending buffer. An error is always returned with StopStep.
func (c *Context) Exec(id ast.NodeID, row *table.Row) (Signal, error) {
	n := c.arena.Node(id)
	switch n.Kind {
	case ast.Block:
		for _, stmt := range n.Args {
			sig, err := c.Exec(stmt, row)
			if err != nil || sig != Normal {
				return sig, err
			}
		}
		return Normal, nil

	case ast.Assignment:
		if err := c.assign(n, row); err != nil {
			return StopStep, atStatement(n.Pos, err)
		}
		return Normal, nil

	case ast.IfThenElse:
		cond, err := c.condition(n.Cond, row)
		if err != nil {
			return StopStep, atStatement(n.Pos, err)
		}
		branch := n.Else
		if cond {
			branch = n.Then
		}
		if branch == ast.None {
			return Normal, nil
		}
		return c.Exec(branch, row)

	case ast.IndexedDo:
		sig, err := c.indexedDo(n, row)
		if err != nil {
			return StopStep, atStatement(n.Pos, err)
		}
		return sig, nil

	case ast.WhileDo, ast.UntilDo:
		sig, err := c.conditionalDo(n, row)
		if err != nil {
			return StopStep, atStatement(n.Pos, err)
		}
		return sig, nil

	case ast.Leave:
		return Leave, nil
	case ast.Continue:
		return Continue, nil
	case ast.Delete:
		return Delete, nil
	case ast.Output:
		c.Output(row)
		return Normal, nil

	case ast.RetainDecl, ast.ArrayDecl, ast.DropDecl, ast.KeepDecl, ast.FormatDecl:
		// Declarations take effect when the step is compiled.
		return Normal, nil

	case ast.NumberLiteral, ast.TextLiteral, ast.MissingLiteral, ast.VariableRef,
		ast.ArrayRef, ast.UnaryOp, ast.BinaryOp, ast.FunctionCall:
		return StopStep, atStatement(n.Pos, fmt.Errorf("%s is not a statement", n.Kind))
	}
	panic(fmt.Sprintf("eval: unhandled kind %s", n.Kind))
}

func (c *Context) assign(n *ast.Node, row *table.Row) error {
	val, err := c.Eval(n.Right, row)
	if err != nil {
		return err
	}
	target := c.arena.Node(n.Left)
	switch target.Kind {
	case ast.VariableRef:
		if !row.Has(target.Name) && c.IsAutomatic(target.Name) {
			return fmt.Errorf("%w %s", ErrAutomatic, target.Name)
		}
		row.Set(target.Name, val)
	case ast.ArrayRef:
		name, err := c.element(target, row)
		if err != nil {
			return err
		}
		row.Set(name, val)
	default:
		return fmt.Errorf("cannot assign to %s", target.Kind)
	}
	return nil
}

// condition evaluates a test: true when Numeric and non-zero.
func (c *Context) condition(id ast.NodeID, row *table.Row) (bool, error) {
	v, err := c.Eval(id, row)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// bound evaluates a loop bound, which must be a non-missing number.
func (c *Context) bound(id ast.NodeID, row *table.Row, what string) (float64, error) {
	v, err := c.Eval(id, row)
	if err != nil {
		return 0, err
	}
	if v.IsMissing() {
		return 0, fmt.Errorf("%w: %s is missing", ErrLoopBounds, what)
	}
	return v.ToNumber()
}

// indexedDo runs "DO var = start TO stop BY step". The bounds are
// evaluated once. After normal termination the variable holds the first
// value that failed the test.
func (c *Context) indexedDo(n *ast.Node, row *table.Row) (Signal, error) {
	start, err := c.bound(n.Start, row, "start")
	if err != nil {
		return StopStep, err
	}
	stop, err := c.bound(n.Stop, row, "stop")
	if err != nil {
		return StopStep, err
	}
	step := 1.0
	if n.Step != ast.None {
		if step, err = c.bound(n.Step, row, "step"); err != nil {
			return StopStep, err
		}
		if step == 0 {
			return StopStep, fmt.Errorf("%w: step is zero", ErrLoopBounds)
		}
	}

	i := start
	for iter := 1; (step > 0 && i <= stop) || (step < 0 && i >= stop); iter++ {
		if err := c.checkLimit(iter); err != nil {
			return StopStep, err
		}
		row.Set(n.Name, value.Number(i))
		sig, err := c.Exec(n.Body, row)
		if err != nil {
			return StopStep, err
		}
		switch sig {
		case Leave:
			return Normal, nil
		case Delete, StopStep:
			return sig, nil
		}
		// The body may have changed the index variable.
		cur, _ := row.Get(n.Name)
		f, ok := cur.Float()
		if !ok {
			return StopStep, fmt.Errorf("%w: index variable %s is no longer numeric", ErrLoopBounds, n.Name)
		}
		i = f + step
	}
	row.Set(n.Name, value.Number(i))
	return Normal, nil
}

// conditionalDo runs DO WHILE (tested before the body) and DO UNTIL
// (tested after the body, so the body runs at least once).
func (c *Context) conditionalDo(n *ast.Node, row *table.Row) (Signal, error) {
	until := n.Kind == ast.UntilDo
	for iter := 1; ; iter++ {
		if !until {
			ok, err := c.condition(n.Cond, row)
			if err != nil {
				return StopStep, err
			}
			if !ok {
				return Normal, nil
			}
		}
		if err := c.checkLimit(iter); err != nil {
			return StopStep, err
		}
		sig, err := c.Exec(n.Body, row)
		if err != nil {
			return StopStep, err
		}
		switch sig {
		case Leave:
			return Normal, nil
		case Delete, StopStep:
			return sig, nil
		}
		if until {
			done, err := c.condition(n.Cond, row)
			if err != nil {
				return StopStep, err
			}
			if done {
				return Normal, nil
			}
		}
	}
}

func (c *Context) checkLimit(iter int) error {
	if c.loopLimit > 0 && iter > c.loopLimit {
		return fmt.Errorf("%w (%d)", ErrLoopLimit, c.loopLimit)
	}
	return nil
}
