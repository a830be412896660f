// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package dstep

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"nickandperla.net/dstep/internal/datastep"
	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/logging"
	"nickandperla.net/dstep/internal/parser"
	"nickandperla.net/dstep/internal/store"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(append([]Option{WithMemoryStore(), WithRunIDs(func() string { return "run-1" })}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestExecPublishes(t *testing.T) {
	r := newRuntime(t)
	rep, err := r.Exec(context.Background(), `
data nums;
  do i = 1 to 3;
    sq = i ** 2;
    output;
  end;
run;
data big;
  set nums;
  if sq > 1;
run;`)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if rep.Failed() {
		t.Fatalf("unexpected failure: %v", rep.Err())
	}
	if rep.RunID != "run-1" || len(rep.Steps) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if s := rep.Steps[1]; s.Dataset != "big" || s.RowsIn != 3 || s.RowsOut != 2 {
		t.Errorf("step 2 = %+v", s)
	}

	tbl, err := r.Store().Lookup("work.big")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if tbl.Len() != 2 || tbl.Value(1, "sq").String() != "9" {
		t.Errorf("big has %d rows, last sq = %s", tbl.Len(), tbl.Value(1, "sq"))
	}

	infos, err := r.Store().(store.Catalog).Datasets()
	if err != nil {
		t.Fatal(err)
	}
	for _, info := range infos {
		if info.RunID != "run-1" {
			t.Errorf("dataset %s run id = %q", info.Name, info.RunID)
		}
	}
}

func TestFailingStepIsIsolated(t *testing.T) {
	rec := &logging.Recorder{}
	r := newRuntime(t, WithSink(rec))
	rep, err := r.Exec(context.Background(), `data a; x = 1; run;
data b;
  set a;
  y = x / 0;
run;
data c; set a; z = 2; run;`)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if !rep.Failed() {
		t.Fatal("expected a failed step")
	}
	bad := rep.Steps[1]
	if !errors.Is(bad.Err, eval.ErrDivisionByZero) || bad.Line != 4 || bad.Col != 3 || bad.Dataset != "" {
		t.Errorf("step 2 = %+v", bad)
	}
	if _, err := r.Store().Lookup("b"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("failed step published b: err = %v", err)
	}
	if c := rep.Steps[2]; c.Err != nil || c.Dataset != "c" {
		t.Errorf("step 3 = %+v", c)
	}
	if !strings.Contains(rep.Err().Error(), "data b:") {
		t.Errorf("Err() = %v", rep.Err())
	}

	want := []logging.Kind{
		logging.StepStart, logging.StepEnd,
		logging.StepStart, logging.StepError,
		logging.StepStart, logging.StepEnd,
	}
	got := rec.Kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if e := rec.Events()[3]; e.Line != 4 || e.Col != 3 || e.Step != "data b" {
		t.Errorf("error event = %+v", e)
	}
}

func TestParseErrorSkipsOnlyItsStep(t *testing.T) {
	r := newRuntime(t)
	rep, err := r.Exec(context.Background(), "data bad; x = ; run;\ndata ok; x = 1; run;")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	var pe *parser.Error
	if !errors.As(rep.Steps[0].Err, &pe) || rep.Steps[0].Line != 1 || rep.Steps[0].Col != 15 {
		t.Errorf("step 1 = %+v", rep.Steps[0])
	}
	if rep.Steps[1].Err != nil || rep.Steps[1].Dataset != "ok" {
		t.Errorf("step 2 = %+v", rep.Steps[1])
	}
}

func TestArrayDeclErrorPosition(t *testing.T) {
	rec := &logging.Recorder{}
	r := newRuntime(t, WithSink(rec))
	rep, err := r.Exec(context.Background(), "data a;\n  array q{3} x y;\nrun;")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	var ae *datastep.ArrayDeclError
	if step := rep.Steps[0]; !errors.As(step.Err, &ae) || step.Line != 2 || step.Col != 3 {
		t.Errorf("step 1 = %+v", step)
	}
	events := rec.Events()
	if e := events[len(events)-1]; e.Kind != logging.StepError || e.Line != 2 || e.Col != 3 {
		t.Errorf("error event = %+v", e)
	}
}

func TestNullStepPublishesNothing(t *testing.T) {
	r := newRuntime(t)
	rep, err := r.Exec(context.Background(), "data _null_; x = 1; run;")
	if err != nil || rep.Failed() {
		t.Fatalf("Exec: %v %v", err, rep.Err())
	}
	infos, _ := r.Store().(store.Catalog).Datasets()
	if len(infos) != 0 || rep.Steps[0].Dataset != "" {
		t.Errorf("datasets = %+v", infos)
	}
}

func TestProcedures(t *testing.T) {
	var buf bytes.Buffer
	var seen map[string]string
	capture := ProcedureFunc(func(_ context.Context, tbl *Table, options map[string]string) error {
		seen = options
		return nil
	})
	rec := &logging.Recorder{}
	r := newRuntime(t, WithProcedure("PRINT", Print(&buf)), WithProcedure("capture", capture), WithSink(rec))

	rep, err := r.Exec(context.Background(), `
data people;
  name = 'ann'; age = 31; output;
  name = 'bob'; age = 4; output;
run;
proc print data=people; run;
proc capture; var age; run;
proc means data=people; run;`)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	if rep.Steps[1].Err != nil || rep.Steps[1].RowsIn != 2 {
		t.Errorf("proc print = %+v", rep.Steps[1])
	}
	out := buf.String()
	for _, want := range []string{"Obs  name  age", "1    ann   31", "2    bob   4"} {
		if !strings.Contains(out, want) {
			t.Errorf("print output missing %q:\n%s", want, out)
		}
	}

	if seen["data"] != "people" || seen["var"] != "age" {
		t.Errorf("capture options = %v", seen)
	}
	if !errors.Is(rep.Steps[3].Err, ErrUnknownProcedure) {
		t.Errorf("proc means err = %v", rep.Steps[3].Err)
	}

	procRuns := 0
	for _, k := range rec.Kinds() {
		if k == logging.ProcRun {
			procRuns++
		}
	}
	if procRuns != 2 {
		t.Errorf("proc run events = %d, want 2", procRuns)
	}
}

func TestProcWithoutDataset(t *testing.T) {
	r := newRuntime(t, WithProcedure("print", Print(&bytes.Buffer{})))
	rep, err := r.Exec(context.Background(), "proc print; run;")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Steps[0].Err == nil {
		t.Error("expected an error without DATA= and without a published dataset")
	}
}

func TestLoopLimitOption(t *testing.T) {
	r := newRuntime(t, WithLoopLimit(5))
	rep, err := r.Exec(context.Background(), "data x; do until (0); end; run;")
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(rep.Steps[0].Err, eval.ErrLoopLimit) {
		t.Errorf("err = %v, want ErrLoopLimit", rep.Steps[0].Err)
	}
}

func TestCancelledRun(t *testing.T) {
	r := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := r.Exec(ctx, "data x; y = 1; run;")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(rep.Steps) != 0 {
		t.Errorf("steps ran after cancellation: %+v", rep.Steps)
	}
}

func TestSQLiteRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.db")
	r, err := New(WithSQLiteStore(path))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rep, err := r.Exec(context.Background(), "data t; a = 1; b = 'x'; c = .; run;")
	if err != nil || rep.Failed() {
		t.Fatalf("Exec: %v %v", err, rep.Err())
	}
	r.Close()

	var buf bytes.Buffer
	r2, err := New(WithSQLiteStore(path), WithProcedure("print", Print(&buf)))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r2.Close()
	rep, err = r2.Exec(context.Background(), "proc print data=t noobs; run;")
	if err != nil || rep.Failed() {
		t.Fatalf("Exec: %v %v", err, rep.Err())
	}
	if got := buf.String(); !strings.Contains(got, "a  b  c") || !strings.Contains(got, "1  x  .") {
		t.Errorf("print output:\n%s", got)
	}

	if _, err := New(WithSQLiteStore(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))); err == nil {
		t.Error("expected an error opening a store in a missing directory")
	}
}
