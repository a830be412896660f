// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// DefaultLoopLimit bounds the iterations of a single loop execution.
const DefaultLoopLimit = 1_000_000

// Array is a named alias over an ordered list of variables. A
// multi-dimensional array is flattened row-major.
type Array struct {
	Name string
	Dims []int
	Vars []string
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Vars) }

// Element maps 1-based subscripts to the backing variable name.
func (a *Array) Element(subs []int) (string, error) {
	if len(subs) != len(a.Dims) {
		return "", fmt.Errorf("%w: array %s has %d dimensions, got %d subscripts",
			ErrSubscriptRange, a.Name, len(a.Dims), len(subs))
	}
	idx := 0
	for i, s := range subs {
		if s < 1 || s > a.Dims[i] {
			return "", fmt.Errorf("%w: %s subscript %d is %d, valid range is 1 to %d",
				ErrSubscriptRange, a.Name, i+1, s, a.Dims[i])
		}
		idx = idx*a.Dims[i] + (s - 1)
	}
	if idx < 0 || idx >= len(a.Vars) {
		return "", fmt.Errorf("%w: %s index %d", ErrSubscriptRange, a.Name, idx)
	}
	return a.Vars[idx], nil
}

// Context is the execution state of one running step: the syntax tree,
// declared arrays, automatic variables and the pending output buffer.
// A Context is owned by a single step and is not safe for concurrent use.
type Context struct {
	arena     *ast.Arena
	arrays    map[string]*Array
	auto      map[string]value.Value
	pending   []*table.Row
	shape     func(*table.Row) *table.Row
	loopLimit int
}

// Option configures a Context.
type Option func(*Context)

// WithArrays registers the arrays visible to the step.
func WithArrays(arrays ...*Array) Option {
	return func(c *Context) {
		for _, a := range arrays {
			c.arrays[table.Key(a.Name)] = a
		}
	}
}

// WithLoopLimit sets the iteration limit of a single loop. Zero disables
// the limit.
func WithLoopLimit(n int) Option {
	return func(c *Context) { c.loopLimit = n }
}

// WithShape sets the function turning the current row into an output row,
// typically applying DROP and KEEP. It must return a row the executor
// will not modify afterwards.
func WithShape(fn func(*table.Row) *table.Row) Option {
	return func(c *Context) { c.shape = fn }
}

// NewContext creates the execution context for a step's tree.
func NewContext(arena *ast.Arena, opts ...Option) *Context {
	c := &Context{
		arena:     arena,
		arrays:    make(map[string]*Array),
		auto:      make(map[string]value.Value),
		shape:     (*table.Row).Clone,
		loopLimit: DefaultLoopLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arena returns the tree the context executes.
func (c *Context) Arena() *ast.Arena { return c.arena }

// Array returns a declared array by name.
func (c *Context) Array(name string) (*Array, bool) {
	a, ok := c.arrays[table.Key(name)]
	return a, ok
}

// SetAutomatic sets a read-only automatic variable such as _N_ or
// FIRST.id.
func (c *Context) SetAutomatic(name string, v value.Value) {
	c.auto[table.Key(name)] = v
}

// Automatic returns an automatic variable.
func (c *Context) Automatic(name string) (value.Value, bool) {
	v, ok := c.auto[table.Key(name)]
	return v, ok
}

// IsAutomatic reports whether name is an automatic variable.
func (c *Context) IsAutomatic(name string) bool {
	_, ok := c.auto[table.Key(name)]
	return ok
}

// Output appends a snapshot of row to the pending buffer.
func (c *Context) Output(row *table.Row) {
	c.pending = append(c.pending, c.shape(row))
}

// Flush returns and clears the pending output rows.
func (c *Context) Flush() []*table.Row {
	out := c.pending
	c.pending = nil
	return out
}

// Discard drops the pending output rows.
func (c *Context) Discard() { c.pending = nil }
