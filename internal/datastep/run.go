// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package datastep

import (
	"context"
	"errors"
	"fmt"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// Reader resolves input datasets by name.
type Reader interface {
	Lookup(name string) (*table.Table, error)
}

// Result is the outcome of a successful run.
type Result struct {
	Output     *table.Table
	RowsIn     int // rows read from all sources
	Iterations int
}

type runConfig struct {
	loopLimit int
}

// Option configures a run.
type Option func(*runConfig)

// WithLoopLimit bounds the iterations of any single loop. Zero disables
// the limit.
func WithLoopLimit(n int) Option {
	return func(c *runConfig) { c.loopLimit = n }
}

// record is the input of one iteration. Input holds only the columns of
// the sources that contributed to it.
type record struct {
	input       *table.Row
	key         []value.Value
	in          []bool
	first, last []bool
}

// Run executes the step against its sources. On error nothing is
// returned; rows produced before the failure are discarded.
func (c *Step) Run(ctx context.Context, in Reader, opts ...Option) (*Result, error) {
	cfg := runConfig{loopLimit: eval.DefaultLoopLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := c.src

	inputs := make([]*table.Table, len(s.Sources))
	rowsIn := 0
	for i, src := range s.Sources {
		if in == nil {
			return nil, errors.New("no dataset reader for step inputs")
		}
		t, err := in.Lookup(src.Name)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", src.Pos.Line, err)
		}
		inputs[i] = t
		rowsIn += t.Len()
	}
	if len(s.By) > 0 {
		for i, t := range inputs {
			if err := checkSorted(s.Sources[i].Name, t, s.By); err != nil {
				return nil, err
			}
		}
	}

	layout := c.layout(inputs)
	outCols := c.shapeColumns(layout)
	shape := func(r *table.Row) *table.Row {
		out := table.NewRow()
		for _, col := range outCols {
			v, _ := r.Get(col)
			out.Set(col, v)
		}
		return out
	}
	ectx := eval.NewContext(s.Arena,
		eval.WithArrays(c.arrays...),
		eval.WithLoopLimit(cfg.loopLimit),
		eval.WithShape(shape),
	)

	state := make(map[string]value.Value, len(c.retain))
	for _, r := range c.retain {
		v := value.Missing()
		if r.init != ast.None {
			var err error
			if v, err = ectx.Eval(r.init, table.NewRow()); err != nil {
				return nil, fmt.Errorf("retain %s: %w", r.name, err)
			}
		}
		state[table.Key(r.name)] = v
	}

	var recs []record
	switch {
	case s.Input == ast.NoInput:
		recs = []record{{input: table.NewRow()}}
	case s.Input == ast.MergeInput:
		recs = merge(inputs, s.By)
	case len(s.By) > 0:
		recs = interleave(inputs, s.By)
	default:
		recs = concat(inputs)
	}
	if len(s.By) > 0 {
		byFlags(recs, len(s.By))
	}

	out := table.New(outCols...)
	for _, col := range outCols {
		out.SetFormat(col, c.formats[table.Key(col)])
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := table.NewRowWith(layout)
		for j := 0; j < rec.input.Len(); j++ {
			name, v := rec.input.At(j)
			row.Set(name, v)
		}
		for _, r := range c.retain {
			if !rec.input.Has(r.name) {
				row.Set(r.name, state[table.Key(r.name)])
			}
		}

		ectx.SetAutomatic(AutoN, value.Number(float64(i+1)))
		for j, b := range s.By {
			ectx.SetAutomatic("first."+b, value.Bool(rec.first[j]))
			ectx.SetAutomatic("last."+b, value.Bool(rec.last[j]))
		}
		for j, src := range s.Sources {
			if src.InFlag != "" {
				ectx.SetAutomatic(src.InFlag, value.Bool(rec.in[j]))
			}
		}

		sig, err := ectx.Exec(s.Body, row)
		if err != nil {
			ectx.Discard()
			return nil, err
		}
		if sig != eval.Delete && !c.explicit {
			ectx.Output(row)
		}
		for _, r := range ectx.Flush() {
			out.Append(r)
		}

		for _, r := range c.retain {
			v, _ := row.Get(r.name)
			state[table.Key(r.name)] = v
		}
	}

	return &Result{Output: out, RowsIn: rowsIn, Iterations: len(recs)}, nil
}

// layout returns the program data vector: input columns in source order,
// then the step's own variables in order of first appearance.
func (c *Step) layout(inputs []*table.Table) []string {
	var cols []string
	seen := make(map[string]bool)
	add := func(name string) {
		if k := table.Key(name); !seen[k] {
			seen[k] = true
			cols = append(cols, name)
		}
	}
	for _, t := range inputs {
		for _, col := range t.Columns() {
			add(col)
		}
	}
	for _, v := range c.vars {
		add(v)
	}
	return cols
}

// shapeColumns applies KEEP, then DROP.
func (c *Step) shapeColumns(layout []string) []string {
	var out []string
	for _, col := range layout {
		k := table.Key(col)
		if c.keep != nil && !c.keep[k] {
			continue
		}
		if c.drop[k] {
			continue
		}
		out = append(out, col)
	}
	return out
}

// cursor walks one BY-sorted input.
type cursor struct {
	t   *table.Table
	idx []int
	pos int
}

func newCursor(t *table.Table, by []string) *cursor {
	idx := make([]int, len(by))
	for i, b := range by {
		idx[i] = t.ColumnIndex(b)
	}
	return &cursor{t: t, idx: idx}
}

func (c *cursor) done() bool { return c.pos >= c.t.Len() }

func (c *cursor) key(row int) []value.Value {
	k := make([]value.Value, len(c.idx))
	vals := c.t.Values(row)
	for i, j := range c.idx {
		k[i] = vals[j]
	}
	return k
}

// compareKeys compares the first n values of two keys, all of them when
// n is negative.
func compareKeys(a, b []value.Value, n int) int {
	if n < 0 || n > len(a) {
		n = len(a)
	}
	for i := 0; i < n; i++ {
		if c := value.Order(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func checkSorted(name string, t *table.Table, by []string) error {
	for _, b := range by {
		if !t.HasColumn(b) {
			return &MergeConfigError{Dataset: name, Var: b, Msg: fmt.Sprintf("BY variable %s not found", b)}
		}
	}
	cur := newCursor(t, by)
	for r := 1; r < t.Len(); r++ {
		if compareKeys(cur.key(r-1), cur.key(r), -1) > 0 {
			return &MergeConfigError{Dataset: name, Row: r + 1,
				Msg: fmt.Sprintf("not sorted by the BY variables at row %d", r+1)}
		}
	}
	return nil
}

func concat(inputs []*table.Table) []record {
	var recs []record
	for i, t := range inputs {
		for r := 0; r < t.Len(); r++ {
			flags := make([]bool, len(inputs))
			flags[i] = true
			recs = append(recs, record{input: t.Row(r), in: flags})
		}
	}
	return recs
}

// interleave reads BY-sorted inputs in key order. Equal keys are taken
// from the earlier source first.
func interleave(inputs []*table.Table, by []string) []record {
	cursors := make([]*cursor, len(inputs))
	for i, t := range inputs {
		cursors[i] = newCursor(t, by)
	}
	var recs []record
	for {
		pick := -1
		var low []value.Value
		for i, c := range cursors {
			if c.done() {
				continue
			}
			if k := c.key(c.pos); pick < 0 || compareKeys(k, low, -1) < 0 {
				pick, low = i, k
			}
		}
		if pick < 0 {
			return recs
		}
		flags := make([]bool, len(inputs))
		flags[pick] = true
		c := cursors[pick]
		recs = append(recs, record{input: c.t.Row(c.pos), key: low, in: flags})
		c.pos++
	}
}

// merge match-merges BY-sorted inputs. For each key the k-th rows of the
// matching sources are combined; a source with fewer rows for the key
// repeats its last one. Later sources overwrite same-named columns.
func merge(inputs []*table.Table, by []string) []record {
	cursors := make([]*cursor, len(inputs))
	for i, t := range inputs {
		cursors[i] = newCursor(t, by)
	}
	var recs []record
	ends := make([]int, len(cursors))
	for {
		var low []value.Value
		for _, c := range cursors {
			if c.done() {
				continue
			}
			if k := c.key(c.pos); low == nil || compareKeys(k, low, -1) < 0 {
				low = k
			}
		}
		if low == nil {
			return recs
		}

		n := 0
		for i, c := range cursors {
			ends[i] = c.pos
			for ends[i] < c.t.Len() && compareKeys(c.key(ends[i]), low, -1) == 0 {
				ends[i]++
			}
			n = max(n, ends[i]-c.pos)
		}

		for k := 0; k < n; k++ {
			rec := record{input: table.NewRow(), key: low, in: make([]bool, len(cursors))}
			for i, c := range cursors {
				if ends[i] == c.pos {
					continue
				}
				src := c.t.Row(min(c.pos+k, ends[i]-1))
				for j := 0; j < src.Len(); j++ {
					name, v := src.At(j)
					rec.input.Set(name, v)
				}
				rec.in[i] = true
			}
			recs = append(recs, rec)
		}
		for i, c := range cursors {
			c.pos = ends[i]
		}
	}
}

// byFlags derives FIRST. and LAST. for every BY variable: FIRST.v is true
// when the key prefix up to v differs from the previous record, LAST.v
// when it differs from the next.
func byFlags(recs []record, nby int) {
	for i := range recs {
		rec := &recs[i]
		rec.first = make([]bool, nby)
		rec.last = make([]bool, nby)
		for j := 0; j < nby; j++ {
			rec.first[j] = i == 0 || compareKeys(recs[i-1].key, rec.key, j+1) != 0
			rec.last[j] = i == len(recs)-1 || compareKeys(recs[i+1].key, rec.key, j+1) != 0
		}
	}
}
