// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package datastep

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/parser"
	"nickandperla.net/dstep/internal/store"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

func compileStep(t *testing.T, src string) *Step {
	t.Helper()
	prog := parser.ParseString(src)
	if errs := parser.Errors(prog); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	if len(prog.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(prog.Steps))
	}
	s, err := Compile(prog.Steps[0])
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return s
}

func mustRun(t *testing.T, src string, in Reader, opts ...Option) *table.Table {
	t.Helper()
	res, err := compileStep(t, src).Run(context.Background(), in, opts...)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res.Output
}

func seed(t *testing.T, datasets map[string]*table.Table) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	for name, tbl := range datasets {
		if err := s.Publish(name, tbl); err != nil {
			t.Fatalf("Publish %s failed: %v", name, err)
		}
	}
	return s
}

func numbers(t *testing.T, column string, vals ...float64) *table.Table {
	t.Helper()
	tbl := table.New(column)
	for _, v := range vals {
		if err := tbl.AppendValues(value.Number(v)); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func pairs(t *testing.T, cols [2]string, rows ...[2]float64) *table.Table {
	t.Helper()
	tbl := table.New(cols[0], cols[1])
	for _, r := range rows {
		if err := tbl.AppendValues(value.Number(r[0]), value.Number(r[1])); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

// column renders one column as space-separated values.
func column(tbl *table.Table, name string) string {
	out := make([]string, tbl.Len())
	for i := range out {
		out[i] = tbl.Value(i, name).String()
	}
	return strings.Join(out, " ")
}

func assertColumns(t *testing.T, tbl *table.Table, want string) {
	t.Helper()
	if got := strings.Join(tbl.Columns(), " "); got != want {
		t.Errorf("columns = %q, want %q", got, want)
	}
}

func TestNoInputRunsOnce(t *testing.T) {
	out := mustRun(t, "data out; x = 1; y = x + 1; run;", nil)
	if out.Len() != 1 {
		t.Fatalf("rows = %d, want 1", out.Len())
	}
	assertColumns(t, out, "x y")
	if got := column(out, "y"); got != "2" {
		t.Errorf("y = %s, want 2", got)
	}
}

func TestRetainAndReset(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 1, 2, 3)})
	out := mustRun(t, `
data out;
  set in;
  retain total 0;
  total = total + v;
  count = sum(count, 1);
run;`, in)

	assertColumns(t, out, "v total count")
	if got := column(out, "total"); got != "1 3 6" {
		t.Errorf("total = %s, want 1 3 6", got)
	}
	if got := column(out, "count"); got != "1 1 1" {
		t.Errorf("count = %s, want 1 1 1 (non-retained reset)", got)
	}
}

func TestRetainWithoutInitialValue(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 5, 7)})
	out := mustRun(t, `
data out;
  set in;
  retain prev;
  lag = prev;
  prev = v;
run;`, in)
	if got := column(out, "lag"); got != ". 5" {
		t.Errorf("lag = %s, want . 5", got)
	}
}

func TestFirstLast(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "g", 1, 1, 2, 2, 2, 3)})
	out := mustRun(t, `
data out;
  set in;
  by g;
  f = first.g;
  l = last.g;
run;`, in)

	if got := column(out, "f"); got != "1 0 1 0 0 1" {
		t.Errorf("first.g = %s", got)
	}
	if got := column(out, "l"); got != "0 1 0 0 1 1" {
		t.Errorf("last.g = %s", got)
	}
}

func TestFirstLastNestedBy(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": pairs(t, [2]string{"a", "b"},
		[2]float64{1, 1}, [2]float64{1, 2}, [2]float64{1, 2}, [2]float64{2, 2})})
	out := mustRun(t, `
data out;
  set in;
  by a b;
  fa = first.a; fb = first.b; lb = last.b;
run;`, in)

	tests := []struct{ col, want string }{
		{"fa", "1 0 0 1"},
		{"fb", "1 1 0 1"},
		{"lb", "1 0 1 1"},
	}
	for _, tt := range tests {
		if got := column(out, tt.col); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.col, got, tt.want)
		}
	}
}

func TestMergePartialOverlap(t *testing.T) {
	in := seed(t, map[string]*table.Table{
		"a": pairs(t, [2]string{"id", "x"}, [2]float64{1, 10}, [2]float64{2, 20}, [2]float64{3, 30}),
		"b": pairs(t, [2]string{"id", "y"}, [2]float64{2, 200}, [2]float64{3, 300}, [2]float64{4, 400}),
	})
	out := mustRun(t, `
data m;
  merge a(in=ina) b(in=inb);
  by id;
  both = ina and inb;
run;`, in)

	assertColumns(t, out, "id x y both")
	tests := []struct{ col, want string }{
		{"id", "1 2 3 4"},
		{"x", "10 20 30 ."},
		{"y", ". 200 300 400"},
		{"both", "0 1 1 0"},
	}
	for _, tt := range tests {
		if got := column(out, tt.col); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.col, got, tt.want)
		}
	}
}

func TestMergeOneToMany(t *testing.T) {
	in := seed(t, map[string]*table.Table{
		"one":  pairs(t, [2]string{"id", "x"}, [2]float64{1, 7}, [2]float64{2, 8}),
		"many": pairs(t, [2]string{"id", "y"}, [2]float64{1, 1}, [2]float64{1, 2}, [2]float64{1, 3}, [2]float64{2, 4}),
	})
	out := mustRun(t, `
data m;
  merge one many;
  by id;
  f = first.id;
run;`, in)

	tests := []struct{ col, want string }{
		{"id", "1 1 1 2"},
		{"x", "7 7 7 8"},
		{"y", "1 2 3 4"},
		{"f", "1 0 0 1"},
	}
	for _, tt := range tests {
		if got := column(out, tt.col); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.col, got, tt.want)
		}
	}
}

func TestMergeConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		b       *table.Table
		wantVar string
	}{
		{"unsorted", pairs(t, [2]string{"id", "y"}, [2]float64{3, 1}, [2]float64{1, 2}), ""},
		{"missing by variable", numbers(t, "y", 1, 2), "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := seed(t, map[string]*table.Table{
				"a": numbers(t, "id", 1, 2),
				"b": tt.b,
			})
			_, err := compileStep(t, "data m; merge a b; by id; run;").Run(context.Background(), in)
			var mce *MergeConfigError
			if !errors.As(err, &mce) {
				t.Fatalf("err = %v, want MergeConfigError", err)
			}
			if mce.Dataset != "b" || mce.Var != tt.wantVar {
				t.Errorf("MergeConfigError = %+v", mce)
			}
		})
	}
}

func TestSetConcatenation(t *testing.T) {
	in := seed(t, map[string]*table.Table{
		"a": numbers(t, "x", 1, 2),
		"b": numbers(t, "y", 3),
	})
	out := mustRun(t, "data c; set a b; run;", in)
	assertColumns(t, out, "x y")
	if got := column(out, "x"); got != "1 2 ." {
		t.Errorf("x = %s", got)
	}
	if got := column(out, "y"); got != ". . 3" {
		t.Errorf("y = %s", got)
	}
}

func TestSetInterleave(t *testing.T) {
	in := seed(t, map[string]*table.Table{
		"a": pairs(t, [2]string{"k", "src"}, [2]float64{1, 1}, [2]float64{3, 1}),
		"b": pairs(t, [2]string{"k", "src"}, [2]float64{1, 2}, [2]float64{2, 2}),
	})
	out := mustRun(t, "data c; set a b; by k; run;", in)
	if got := column(out, "k"); got != "1 1 2 3" {
		t.Errorf("k = %s", got)
	}
	if got := column(out, "src"); got != "1 2 2 1" {
		t.Errorf("src = %s", got)
	}
}

func TestImplicitAndExplicitOutput(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 1, 2, 3)})
	tests := []struct {
		name, src, col, want string
	}{
		{"implicit", "data o; set in; run;", "v", "1 2 3"},
		{"conditional output", "data o; set in; if v > 1 then output; run;", "v", "2 3"},
		{"output twice", "data o; set in; output; output; run;", "v", "1 1 2 2 3 3"},
		{"subsetting if", "data o; set in; if v ^= 2; run;", "v", "1 3"},
		{"delete", "data o; set in; if v = 1 then delete; run;", "v", "2 3"},
		{"output before delete", "data o; set in; output; delete; run;", "v", "1 2 3"},
		{"loop output", "data o; do i = 1 to 3; output; end; run;", "i", "1 2 3"},
		{"loop implicit", "data o; do i = 1 to 3; end; run;", "i", "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustRun(t, tt.src, in)
			if got := column(out, tt.col); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.col, got, tt.want)
			}
		})
	}
}

func TestArrays(t *testing.T) {
	out := mustRun(t, `
data o;
  array a{3} a1-a3;
  a{2} = 5;
  array m{2,2};
  m{2,1} = 9;
  array s{*} p q;
  n = dim(s);
run;`, nil)

	assertColumns(t, out, "a1 a2 a3 m1 m2 m3 m4 p q n")
	row := out.Row(0)
	checks := map[string]string{"a1": ".", "a2": "5", "m3": "9", "n": "2"}
	for name, want := range checks {
		if v, _ := row.Get(name); v.String() != want {
			t.Errorf("%s = %s, want %s", name, v, want)
		}
	}
}

func TestArrayOutOfRange(t *testing.T) {
	_, err := compileStep(t, "data o; array a{3} a1-a3; a{4} = 1; run;").Run(context.Background(), nil)
	if !errors.Is(err, eval.ErrSubscriptRange) {
		t.Fatalf("err = %v, want ErrSubscriptRange", err)
	}
	var ee *eval.Error
	if !errors.As(err, &ee) || ee.Line != 1 {
		t.Errorf("err = %#v, want an eval.Error on line 1", err)
	}
}

func TestArrayDeclErrors(t *testing.T) {
	tests := []string{
		"data o; array a{2} x y z; run;",
		"data o; array a{*}; run;",
		"data o; array a{*,2} x y; run;",
		"data o; array a{2}; array a{2}; run;",
	}
	for _, src := range tests {
		prog := parser.ParseString(src)
		if errs := parser.Errors(prog); len(errs) > 0 {
			t.Fatalf("%s: parse errors: %v", src, errs)
		}
		_, err := Compile(prog.Steps[0])
		var ade *ArrayDeclError
		if !errors.As(err, &ade) {
			t.Errorf("%s: err = %v, want ArrayDeclError", src, err)
		}
	}
}

func TestDropKeepAndFormat(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": pairs(t, [2]string{"a", "b"}, [2]float64{1, 2})})
	tests := []struct {
		name, src, cols string
	}{
		{"drop", "data o; set in; c = a + b; drop b; run;", "a c"},
		{"keep", "data o; set in; c = a + b; keep c a; run;", "a c"},
		{"keep then drop", "data o; set in; c = 1; keep a c; drop c; run;", "a"},
		{"drop used variable", "data o; set in; do i = 1 to 2; end; drop i; run;", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertColumns(t, mustRun(t, tt.src, in), tt.cols)
		})
	}

	out := mustRun(t, "data o; set in; format a 8.2; format a b 5.; run;", in)
	if got := out.Format("a"); got != "5." {
		t.Errorf("format of a = %q, want 5.", got)
	}
	if got := out.Format("b"); got != "5." {
		t.Errorf("format of b = %q, want 5.", got)
	}
}

func TestAutomaticVariablesNotOutput(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 4, 5)})
	out := mustRun(t, "data o; set in(in=src); n = _n_; s = src; run;", in)
	assertColumns(t, out, "v n s")
	if got := column(out, "n"); got != "1 2" {
		t.Errorf("_n_ = %s", got)
	}
	if got := column(out, "s"); got != "1 1" {
		t.Errorf("in= flag = %s", got)
	}

	_, err := compileStep(t, "data o; set in; _n_ = 3; run;").Run(context.Background(), in)
	if !errors.Is(err, eval.ErrAutomatic) {
		t.Errorf("assigning _n_: err = %v, want ErrAutomatic", err)
	}
}

func TestRunErrors(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 1, 0)})

	res, err := compileStep(t, "data o; set in; x = 1 / v; run;").Run(context.Background(), in)
	if !errors.Is(err, eval.ErrDivisionByZero) || res != nil {
		t.Errorf("division by zero: res = %v, err = %v", res, err)
	}

	_, err = compileStep(t, "data o; set nope; run;").Run(context.Background(), in)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown input: err = %v, want ErrNotFound", err)
	}

	_, err = compileStep(t, "data o; do while (1); end; run;").Run(context.Background(), nil, WithLoopLimit(10))
	if !errors.Is(err, eval.ErrLoopLimit) {
		t.Errorf("runaway loop: err = %v, want ErrLoopLimit", err)
	}

	_, err = compileStep(t, "data o; y = undefined + 1; run;").Run(context.Background(), nil)
	if !errors.Is(err, eval.ErrUndefinedVariable) {
		t.Errorf("undefined variable: err = %v", err)
	}
}

func TestCancellation(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 1, 2)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := compileStep(t, "data o; set in; run;").Run(ctx, in); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCompiledStepIsReusable(t *testing.T) {
	in := seed(t, map[string]*table.Table{"in": numbers(t, "v", 1, 2)})
	s := compileStep(t, "data o; set in; retain t 0; t = t + v; run;")
	for i := 0; i < 2; i++ {
		res, err := s.Run(context.Background(), in)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if got := column(res.Output, "t"); got != "1 3" {
			t.Errorf("run %d: t = %s, want 1 3", i+1, got)
		}
		if res.RowsIn != 2 || res.Iterations != 2 {
			t.Errorf("run %d: result = %+v", i+1, res)
		}
	}
}

func TestCompileMetadata(t *testing.T) {
	s := compileStep(t, "data out; set in; x = 1; if x then output; do j = 1 to 2; end; run;")
	if s.ImplicitOutput() {
		t.Error("step with OUTPUT reported implicit output")
	}
	if got := strings.Join(s.Variables(), " "); got != "x j" {
		t.Errorf("Variables = %q, want \"x j\"", got)
	}
	if s.Name() != "out" || s.Label() != "data out" {
		t.Errorf("Name/Label = %q/%q", s.Name(), s.Label())
	}
}
