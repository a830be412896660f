// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package dstep

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// Print returns the "print" procedure: a tab-aligned listing of the
// dataset written to w. A "var" statement selects columns, "noobs" drops
// the observation column and "obs=n" limits the rows.
func Print(w io.Writer) Procedure {
	return ProcedureFunc(func(ctx context.Context, t *Table, options map[string]string) error {
		cols := t.Columns()
		if list := strings.Fields(options["var"]); len(list) > 0 {
			cols = cols[:0:0]
			for _, name := range list {
				i := t.ColumnIndex(name)
				if i < 0 {
					return fmt.Errorf("print: variable %s not found in %s", name, options["data"])
				}
				cols = append(cols, t.Columns()[i])
			}
		}
		limit := t.Len()
		if s, ok := options["obs"]; ok && s != "" {
			n, ok := value.ParseNumber(s)
			if !ok || n < 0 {
				return fmt.Errorf("print: invalid obs=%s", s)
			}
			limit = min(limit, int(n))
		}
		_, noobs := options["noobs"]
		return WriteTable(ctx, w, t, cols, limit, !noobs)
	})
}

// WriteTable writes the first limit rows of cols, applying column
// formats. With obs set, a leading Obs column numbers the rows.
func WriteTable(ctx context.Context, w io.Writer, t *Table, cols []string, limit int, obs bool) error {
	formats := make([]*value.Format, len(cols))
	for i, c := range cols {
		spec := t.Format(c)
		if spec == "" {
			continue
		}
		f, err := value.ParseFormat(spec)
		if err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
		formats[i] = &f
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var header []string
	if obs {
		header = append(header, "Obs")
	}
	header = append(header, cols...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := make([]string, 0, len(header))
		if obs {
			cells = append(cells, fmt.Sprint(i+1))
		}
		for j, c := range cols {
			cells = append(cells, cell(t, i, c, formats[j]))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func cell(t *table.Table, row int, column string, f *value.Format) string {
	v := t.Value(row, column)
	if f == nil {
		return v.String()
	}
	return strings.TrimSpace(f.Apply(v))
}
