// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package dstep provides the public API for the DATA-step interpreter.
package dstep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/datastep"
	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/logging"
	"nickandperla.net/dstep/internal/parser"
	"nickandperla.net/dstep/internal/store"
	"nickandperla.net/dstep/internal/table"
)

// Table is the dataset type read and written by steps.
type Table = table.Table

// Store is the dataset collaborator.
type Store = store.Store

// Procedure is a reporting procedure invoked by "proc <name> data=<ds>;".
// Options holds the PROC statement options and body statements, keys
// lower-cased; "data" is the resolved dataset name.
type Procedure interface {
	Run(ctx context.Context, t *Table, options map[string]string) error
}

// ProcedureFunc adapts a function to Procedure.
type ProcedureFunc func(ctx context.Context, t *Table, options map[string]string) error

// Run calls f.
func (f ProcedureFunc) Run(ctx context.Context, t *Table, options map[string]string) error {
	return f(ctx, t, options)
}

// ErrUnknownProcedure is returned for a PROC step with no registered
// procedure.
var ErrUnknownProcedure = errors.New("unknown procedure")

// Runtime runs programs one step at a time against a dataset store.
type Runtime struct {
	store     store.Store
	sink      logging.Sink
	procs     map[string]Procedure
	loopLimit int
	newRunID  func() string
	last      string // most recently published dataset
	initErr   error
}

// New creates a runtime with the given options. Without a store option
// an in-memory store is used.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		sink:      logging.Discard,
		procs:     make(map[string]Procedure),
		loopLimit: eval.DefaultLoopLimit,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.initErr != nil {
		if r.store != nil {
			r.store.Close()
		}
		return nil, r.initErr
	}
	if r.store == nil {
		r.store = store.NewMemory()
	}
	return r, nil
}

// Store returns the runtime's dataset store.
func (r *Runtime) Store() Store { return r.store }

// Close releases the store.
func (r *Runtime) Close() error {
	return r.store.Close()
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int    // 1-based position in the program
	Label    string // e.g. "data out" or "proc print"
	Dataset  string // published dataset, "" when nothing was published
	RowsIn   int
	RowsOut  int
	Line     int // statement line of Err, 0 when unknown
	Col      int // statement column of Err, 0 when unknown
	Duration time.Duration
	Err      error
}

// Report is the outcome of one program run.
type Report struct {
	RunID string
	Steps []StepResult
}

// Failed reports whether any step failed.
func (rep *Report) Failed() bool {
	for _, s := range rep.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the step errors, each prefixed with its step label.
func (rep *Report) Err() error {
	var errs []error
	for _, s := range rep.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Label, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Exec parses and runs a program.
func (r *Runtime) Exec(ctx context.Context, src string) (*Report, error) {
	return r.run(ctx, parser.ParseString(src))
}

// ExecReader parses and runs a program read from rd.
func (r *Runtime) ExecReader(ctx context.Context, rd io.Reader) (*Report, error) {
	return r.run(ctx, parser.Parse(rd))
}

// ExecFile parses and runs a program file.
func (r *Runtime) ExecFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.ExecReader(ctx, f)
}

// run executes the steps in order. A failing step is recorded and the
// next step runs; only cancellation stops the program.
func (r *Runtime) run(ctx context.Context, prog *ast.Program) (*Report, error) {
	rep := &Report{RunID: r.newRunID()}
	for i, step := range prog.Steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := StepResult{Index: i + 1, Label: step.Label()}
		r.sink.Emit(logging.Event{Kind: logging.StepStart, RunID: rep.RunID, Step: res.Label, Index: res.Index})

		start := time.Now()
		switch {
		case step.Err != nil:
			res.Err = step.Err
		case step.Kind == ast.ProcStep:
			r.runProc(ctx, rep.RunID, step, &res)
		default:
			r.runData(ctx, rep.RunID, step, &res)
		}
		res.Duration = time.Since(start)

		if res.Err != nil {
			res.Line, res.Col = errorPos(res.Err)
			r.sink.Emit(logging.Event{Kind: logging.StepError, RunID: rep.RunID, Step: res.Label,
				Index: res.Index, Line: res.Line, Col: res.Col, Err: res.Err, Duration: res.Duration})
		} else {
			r.sink.Emit(logging.Event{Kind: logging.StepEnd, RunID: rep.RunID, Step: res.Label,
				Index: res.Index, RowsIn: res.RowsIn, RowsOut: res.RowsOut, Duration: res.Duration})
		}
		rep.Steps = append(rep.Steps, res)
	}
	return rep, nil
}

func (r *Runtime) runData(ctx context.Context, runID string, step *ast.Step, res *StepResult) {
	compiled, err := datastep.Compile(step)
	if err != nil {
		res.Err = err
		return
	}
	out, err := compiled.Run(ctx, r.store, datastep.WithLoopLimit(r.loopLimit))
	if err != nil {
		res.Err = err
		return
	}
	res.RowsIn = out.RowsIn
	res.RowsOut = out.Output.Len()
	if compiled.Name() == "" {
		return
	}
	if err := r.publish(runID, compiled.Name(), out.Output); err != nil {
		res.Err = fmt.Errorf("publishing %s: %w", compiled.Name(), err)
		return
	}
	res.Dataset = compiled.Name()
}

func (r *Runtime) publish(runID, name string, t *table.Table) error {
	var err error
	if rp, ok := r.store.(store.RunPublisher); ok {
		err = rp.PublishRun(runID, name, t)
	} else {
		err = r.store.Publish(name, t)
	}
	if err == nil {
		r.last = name
	}
	return err
}

func (r *Runtime) runProc(ctx context.Context, runID string, step *ast.Step, res *StepResult) {
	proc, ok := r.procs[step.Name]
	if !ok {
		res.Err = fmt.Errorf("%w %s", ErrUnknownProcedure, step.Name)
		return
	}
	options := make(map[string]string, len(step.Options)+1)
	for k, v := range step.Options {
		options[k] = v
	}
	name := options["data"]
	if name == "" || strings.EqualFold(name, "_last_") {
		name = r.last
	}
	if name == "" {
		res.Err = errors.New("no DATA= dataset and nothing published yet")
		return
	}
	options["data"] = name

	t, err := r.store.Lookup(name)
	if err != nil {
		res.Err = err
		return
	}
	res.RowsIn = t.Len()
	if err := proc.Run(ctx, t, options); err != nil {
		res.Err = err
		return
	}
	r.sink.Emit(logging.Event{Kind: logging.ProcRun, RunID: runID, Step: res.Label, Index: res.Index, RowsIn: res.RowsIn})
}

// errorPos extracts the statement line and column carried by a step error.
func errorPos(err error) (line, col int) {
	var pe *parser.Error
	if errors.As(err, &pe) {
		return pe.Line, pe.Col
	}
	var ee *eval.Error
	if errors.As(err, &ee) {
		return ee.Line, ee.Col
	}
	var ae *datastep.ArrayDeclError
	if errors.As(err, &ae) {
		return ae.Pos.Line, ae.Pos.Col
	}
	return 0, 0
}
