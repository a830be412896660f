// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package ast

// StepKind distinguishes DATA steps from procedure steps.
type StepKind uint8

const (
	DataStep StepKind = iota
	ProcStep
)

// InputMode says how a DATA step reads its sources.
type InputMode uint8

const (
	NoInput    InputMode = iota // no SET or MERGE: one iteration
	SetInput                    // SET: concatenation, optionally with BY
	MergeInput                  // MERGE: BY-group match-merge
)

func (m InputMode) String() string {
	switch m {
	case NoInput:
		return "none"
	case SetInput:
		return "set"
	case MergeInput:
		return "merge"
	}
	return "unknown"
}

// Source is one dataset named on SET or MERGE.
type Source struct {
	Name   string
	InFlag string // IN= variable, "" when absent
	Pos    Pos
}

// Step is one top-level unit of a program.
type Step struct {
	Kind StepKind
	Pos  Pos
	// Name is the output dataset of a DATA step (empty for _null_) or the
	// procedure name of a PROC step.
	Name string

	// DATA step fields.
	Input   InputMode
	Sources []Source
	By      []string
	Arena   *Arena
	Body    NodeID // a Block

	// PROC step options from the PROC statement, keys lower-cased,
	// e.g. "data". Flags without a value map to "".
	Options map[string]string

	// Err holds the parse error of this step. A step with Err set is never
	// run.
	Err error
}

// Label names the step for logs: "data out" or "proc print".
func (s *Step) Label() string {
	if s.Kind == ProcStep {
		return "proc " + s.Name
	}
	if s.Name == "" {
		return "data _null_"
	}
	return "data " + s.Name
}

// Program is an ordered list of steps.
type Program struct {
	Steps []*Step
}
