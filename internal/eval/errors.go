// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"errors"
	"fmt"

	"nickandperla.net/dstep/internal/ast"
)

// Causes of evaluation failures, matched with errors.Is.
var (
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUndefinedArray    = errors.New("undefined array")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrArity             = errors.New("wrong number of arguments")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrSubscriptRange    = errors.New("array subscript out of range")
	ErrDomain            = errors.New("argument out of domain")
	ErrOperator          = errors.New("invalid operator")
	ErrLoopBounds        = errors.New("invalid loop bounds")
	ErrLoopLimit         = errors.New("loop iteration limit exceeded")
	ErrAutomatic         = errors.New("cannot assign to automatic variable")
)

// Error is a runtime failure of one statement. It aborts the running step.
type Error struct {
	Line int
	Col  int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// atStatement attaches the statement position to err. Errors already
// positioned by a nested statement are returned unchanged.
func atStatement(pos ast.Pos, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Line: pos.Line, Col: pos.Col, Err: err}
}
