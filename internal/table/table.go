// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package table provides the ordered Row and Table types shared by the
// DATA-step engine and its collaborators.
package table

import (
	"fmt"
	"strings"

	"nickandperla.net/dstep/internal/value"
)

// Key normalizes a variable or column name for lookup. Names are
// case-insensitive; the first spelling seen is the one displayed.
func Key(name string) string {
	return strings.ToLower(name)
}

// Row is an ordered mapping from variable name to value. Insertion order is
// the column order.
type Row struct {
	names  []string
	index  map[string]int
	values []value.Value
}

// NewRow creates an empty row.
func NewRow() *Row {
	return &Row{index: make(map[string]int)}
}

// NewRowWith creates a row holding the given columns, all Missing.
func NewRowWith(names []string) *Row {
	r := &Row{
		names:  make([]string, 0, len(names)),
		index:  make(map[string]int, len(names)),
		values: make([]value.Value, 0, len(names)),
	}
	for _, n := range names {
		r.Set(n, value.Missing())
	}
	return r
}

// Len returns the number of variables in the row.
func (r *Row) Len() int { return len(r.names) }

// Names returns the variable names in column order.
func (r *Row) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// At returns the i-th variable name and value.
func (r *Row) At(i int) (string, value.Value) {
	return r.names[i], r.values[i]
}

// Has reports whether the row holds the named variable.
func (r *Row) Has(name string) bool {
	_, ok := r.index[Key(name)]
	return ok
}

// Get returns the named value and whether the variable exists.
func (r *Row) Get(name string) (value.Value, bool) {
	i, ok := r.index[Key(name)]
	if !ok {
		return value.Missing(), false
	}
	return r.values[i], true
}

// Set assigns a value, appending the variable if it is new.
func (r *Row) Set(name string, v value.Value) {
	k := Key(name)
	if i, ok := r.index[k]; ok {
		r.values[i] = v
		return
	}
	r.index[k] = len(r.names)
	r.names = append(r.names, name)
	r.values = append(r.values, v)
}

// Clone returns an independent copy of the row.
func (r *Row) Clone() *Row {
	c := &Row{
		names:  make([]string, len(r.names)),
		index:  make(map[string]int, len(r.index)),
		values: make([]value.Value, len(r.values)),
	}
	copy(c.names, r.names)
	copy(c.values, r.values)
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

// String renders the row as name=value pairs.
func (r *Row) String() string {
	var sb strings.Builder
	for i, n := range r.names {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(r.values[i].String())
	}
	return sb.String()
}

// Table is an ordered sequence of rows over a fixed column set. A column
// missing from an appended row is stored as Missing.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]value.Value
	formats map[string]string
}

// New creates an empty table with the given columns. Duplicate names
// (case-insensitive) are kept once.
func New(columns ...string) *Table {
	t := &Table{
		index:   make(map[string]int, len(columns)),
		formats: make(map[string]string),
	}
	for _, c := range columns {
		if _, ok := t.index[Key(c)]; ok {
			continue
		}
		t.index[Key(c)] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t
}

// FromRows builds a table from positional values. Every row must have one
// value per column.
func FromRows(columns []string, rows [][]value.Value) (*Table, error) {
	t := New(columns...)
	if len(t.columns) != len(columns) {
		return nil, fmt.Errorf("duplicate column names in %v", columns)
	}
	for i, vals := range rows {
		if err := t.AppendValues(vals...); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return t, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[Key(name)]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Append adds a row, projecting it onto the table's columns. Variables the
// table does not declare are dropped.
func (t *Table) Append(r *Row) {
	vals := make([]value.Value, len(t.columns))
	for i, c := range t.columns {
		vals[i], _ = r.Get(c)
	}
	t.rows = append(t.rows, vals)
}

// AppendValues adds a row given positionally.
func (t *Table) AppendValues(vals ...value.Value) error {
	if len(vals) != len(t.columns) {
		return fmt.Errorf("expected %d values, got %d", len(t.columns), len(vals))
	}
	row := make([]value.Value, len(vals))
	copy(row, vals)
	t.rows = append(t.rows, row)
	return nil
}

// Value returns the cell at row i and the named column. Unknown columns
// read as Missing.
func (t *Table) Value(i int, column string) value.Value {
	j := t.ColumnIndex(column)
	if j < 0 {
		return value.Missing()
	}
	return t.rows[i][j]
}

// Values returns the cells of row i in column order.
func (t *Table) Values(i int) []value.Value {
	out := make([]value.Value, len(t.columns))
	copy(out, t.rows[i])
	return out
}

// Row returns row i as a Row.
func (t *Table) Row(i int) *Row {
	r := NewRowWith(t.columns)
	copy(r.values, t.rows[i])
	return r
}

// SetFormat records the display format of a column. A later call for the
// same column replaces the earlier one.
func (t *Table) SetFormat(column, spec string) {
	if spec == "" {
		delete(t.formats, Key(column))
		return
	}
	t.formats[Key(column)] = spec
}

// Format returns the display format of a column, or "".
func (t *Table) Format(column string) string {
	return t.formats[Key(column)]
}

// Formats returns column formats keyed by column name as displayed.
func (t *Table) Formats() map[string]string {
	out := make(map[string]string, len(t.formats))
	for _, c := range t.columns {
		if f, ok := t.formats[Key(c)]; ok {
			out[c] = f
		}
	}
	return out
}
