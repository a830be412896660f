// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package datastep compiles parsed DATA steps and drives their row loop:
// no input, SET concatenation, SET with BY and BY-group MERGE.
package datastep

import (
	"fmt"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// AutoN is the iteration counter, readable as _N_.
const AutoN = "_N_"

// Step is a compiled DATA step. It is not modified by Run and may be run
// any number of times.
type Step struct {
	src *ast.Step

	vars     []string // new variables in order of first appearance
	arrays   []*eval.Array
	retain   []retained
	drop     map[string]bool
	keep     map[string]bool // nil without a KEEP statement
	formats  map[string]string
	explicit bool // the body contains an OUTPUT statement
}

type retained struct {
	name string
	init ast.NodeID
}

// Compile builds the variable layout of a DATA step, registers its arrays,
// retained variables, DROP/KEEP lists and formats, and decides whether
// the step outputs implicitly.
func Compile(s *ast.Step) (*Step, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Kind != ast.DataStep {
		return nil, fmt.Errorf("%s is not a DATA step", s.Label())
	}

	c := &Step{
		src:     s,
		drop:    make(map[string]bool),
		formats: make(map[string]string),
	}
	auto := automaticNames(s)
	seen := make(map[string]bool)
	addVar := func(name string) {
		k := table.Key(name)
		if seen[k] || auto[k] {
			return
		}
		seen[k] = true
		c.vars = append(c.vars, name)
	}
	declared := make(map[string]bool)

	var err error
	s.Arena.Walk(s.Body, func(_ ast.NodeID, n *ast.Node) bool {
		if err != nil {
			return false
		}
		switch n.Kind {
		case ast.Assignment:
			if target := s.Arena.Node(n.Left); target.Kind == ast.VariableRef {
				addVar(target.Name)
			}
		case ast.IndexedDo:
			addVar(n.Name)
		case ast.RetainDecl:
			for i, name := range n.Names {
				addVar(name)
				c.retain = append(c.retain, retained{name: name, init: n.Args[i]})
			}
		case ast.ArrayDecl:
			var arr *eval.Array
			if arr, err = declareArray(n, declared); err != nil {
				return false
			}
			for _, v := range arr.Vars {
				addVar(v)
			}
			c.arrays = append(c.arrays, arr)
		case ast.DropDecl:
			for _, name := range n.Names {
				c.drop[table.Key(name)] = true
			}
		case ast.KeepDecl:
			if c.keep == nil {
				c.keep = make(map[string]bool)
			}
			for _, name := range n.Names {
				c.keep[table.Key(name)] = true
			}
		case ast.FormatDecl:
			for i, name := range n.Names {
				if _, ferr := value.ParseFormat(n.Specs[i]); ferr != nil {
					err = fmt.Errorf("line %d: format %s: %w", n.Pos.Line, name, ferr)
					return false
				}
				c.formats[table.Key(name)] = n.Specs[i]
			}
		case ast.Output:
			c.explicit = true
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the output dataset name, "" for _null_.
func (c *Step) Name() string { return c.src.Name }

// Label names the step for logs.
func (c *Step) Label() string { return c.src.Label() }

// Sources returns the datasets the step reads.
func (c *Step) Sources() []ast.Source { return c.src.Sources }

// ImplicitOutput reports whether each iteration outputs the row at its
// end, which is the case when the body has no OUTPUT statement.
func (c *Step) ImplicitOutput() bool { return !c.explicit }

// Variables returns the variables the step creates, in order of first
// appearance. Input columns come before them in the output layout.
func (c *Step) Variables() []string {
	out := make([]string, len(c.vars))
	copy(out, c.vars)
	return out
}

// Arrays returns the declared arrays.
func (c *Step) Arrays() []*eval.Array { return c.arrays }

// automaticNames returns the keys of the read-only variables of a step.
func automaticNames(s *ast.Step) map[string]bool {
	auto := map[string]bool{table.Key(AutoN): true}
	for _, b := range s.By {
		auto[table.Key("first."+b)] = true
		auto[table.Key("last."+b)] = true
	}
	for _, src := range s.Sources {
		if src.InFlag != "" {
			auto[table.Key(src.InFlag)] = true
		}
	}
	return auto
}

// declareArray checks an ARRAY statement. "*" takes the length of the
// variable list; without a list the variables are named name1..nameN.
func declareArray(n *ast.Node, declared map[string]bool) (*eval.Array, error) {
	fail := func(format string, args ...any) error {
		return &ArrayDeclError{Pos: n.Pos, Array: n.Name, Msg: fmt.Sprintf(format, args...)}
	}
	key := table.Key(n.Name)
	if declared[key] {
		return nil, fail("declared more than once")
	}
	declared[key] = true

	dims := make([]int, len(n.Dims))
	copy(dims, n.Dims)
	if len(dims) == 0 {
		return nil, fail("no dimensions")
	}
	for _, d := range dims {
		if d == 0 {
			if len(dims) != 1 {
				return nil, fail("* is only allowed for a one-dimensional array")
			}
			if len(n.Names) == 0 {
				return nil, fail("* needs a variable list")
			}
			dims[0] = len(n.Names)
		}
	}
	size := 1
	for _, d := range dims {
		size *= d
	}

	vars := n.Names
	if len(vars) == 0 {
		vars = make([]string, size)
		for i := range vars {
			vars[i] = fmt.Sprintf("%s%d", n.Name, i+1)
		}
	} else if len(vars) != size {
		dimText := make([]string, len(dims))
		for i, d := range dims {
			dimText[i] = fmt.Sprint(d)
		}
		return nil, fail("%d variables listed for dimensions {%s}", len(vars), strings.Join(dimText, ","))
	}
	varsCopy := make([]string, len(vars))
	copy(varsCopy, vars)
	return &eval.Array{Name: n.Name, Dims: dims, Vars: varsCopy}, nil
}
