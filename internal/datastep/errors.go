// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package datastep

import (
	"fmt"

	"nickandperla.net/dstep/internal/ast"
)

// ArrayDeclError reports an ARRAY statement whose dimensions do not fit
// its variable list.
type ArrayDeclError struct {
	Pos   ast.Pos
	Array string
	Msg   string
}

func (e *ArrayDeclError) Error() string {
	return fmt.Sprintf("line %d: array %s: %s", e.Pos.Line, e.Array, e.Msg)
}

// MergeConfigError reports a BY configuration that cannot be executed: a
// BY variable absent from an input, or an input not sorted on the BY
// list.
type MergeConfigError struct {
	Dataset string
	Var     string // set when the variable is absent
	Row     int    // 1-based row that breaks the order, 0 when absent
	Msg     string
}

func (e *MergeConfigError) Error() string {
	return fmt.Sprintf("dataset %s: %s", e.Dataset, e.Msg)
}
