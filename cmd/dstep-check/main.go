// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// dstep-check: Syntax checker for DATA-step programs.
//
// Parses and compiles every step of each file and reports parse and ARRAY
// declaration errors without running anything. Calls to unknown functions
// are reported as warnings. Lines starting with "#" are test directives and
// are removed before parsing; a "# CHECK: error" directive marks a file
// that is expected to contain errors. With -v each DATA step is described.
//
// Usage:
//
//	dstep-check [-v] FILE [FILE...]
//	dstep-check [-v] --dir DIR
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/datastep"
	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/parser"
)

// checkResult holds the outcome of checking a single file.
type checkResult struct {
	path         string
	steps        int
	errors       []string
	warnings     []string
	summaries    []string
	expectsError bool
}

// checkFile parses a program file and returns its parse errors.
func checkFile(path string) checkResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return checkResult{
			path:   path,
			errors: []string{fmt.Sprintf("read error: %v", err)},
		}
	}

	var lines []string
	expectsError := false
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
			continue
		}
		if rest, ok := strings.CutPrefix(line, "# CHECK:"); ok && strings.TrimSpace(rest) == "error" {
			expectsError = true
		}
		// Keep line numbers stable.
		lines = append(lines, "")
	}

	prog := parser.ParseString(strings.Join(lines, "\n"))
	result := checkResult{
		path:         path,
		steps:        len(prog.Steps),
		expectsError: expectsError,
	}
	for _, err := range parser.Errors(prog) {
		result.errors = append(result.errors, err.Error())
	}
	for _, step := range prog.Steps {
		if step.Err != nil || step.Kind != ast.DataStep {
			continue
		}
		result.warnings = append(result.warnings, unknownCalls(step)...)
		compiled, err := datastep.Compile(step)
		if err != nil {
			result.errors = append(result.errors, err.Error())
			continue
		}
		result.summaries = append(result.summaries, describe(compiled))
	}
	return result
}

// unknownCalls lists the calls in a step to functions that are not
// registered.
func unknownCalls(step *ast.Step) []string {
	var out []string
	step.Arena.Walk(step.Body, func(_ ast.NodeID, n *ast.Node) bool {
		if n.Kind == ast.FunctionCall && !eval.IsBuiltin(n.Name) {
			out = append(out, fmt.Sprintf("line %d: %s: undefined function %s", n.Pos.Line, step.Label(), n.Name))
		}
		return true
	})
	return out
}

// describe summarizes a compiled DATA step on one line.
func describe(c *datastep.Step) string {
	var b strings.Builder
	b.WriteString(c.Label())
	if srcs := c.Sources(); len(srcs) > 0 {
		names := make([]string, len(srcs))
		for i, s := range srcs {
			names[i] = s.Name
		}
		fmt.Fprintf(&b, "; reads %s", strings.Join(names, " "))
	}
	if vars := c.Variables(); len(vars) > 0 {
		fmt.Fprintf(&b, "; creates %s", strings.Join(vars, " "))
	}
	for _, arr := range c.Arrays() {
		fmt.Fprintf(&b, "; array %s{%d}", arr.Name, arr.Len())
	}
	if !c.ImplicitOutput() {
		b.WriteString("; explicit output")
	}
	return b.String()
}

// findPrograms recursively finds all .sas files under dir.
func findPrograms(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".sas") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func main() {
	os.Exit(check(os.Args[1:], os.Stdout, os.Stderr))
}

// check runs the checker and returns the exit status.
func check(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: dstep-check [-v] [--dir DIR] FILE [FILE...]")
		return 1
	}

	var files []string
	verbose := false
	for i := 0; i < len(args); i++ {
		if args[i] == "-v" {
			verbose = true
			continue
		}
		if args[i] == "--dir" {
			if i+1 >= len(args) {
				fmt.Fprintln(stderr, "Error: --dir requires an argument")
				return 1
			}
			i++
			found, err := findPrograms(args[i])
			if err != nil {
				fmt.Fprintf(stderr, "Error scanning directory %s: %v\n", args[i], err)
				return 1
			}
			files = append(files, found...)
		} else {
			files = append(files, args[i])
		}
	}

	if len(files) == 0 {
		fmt.Fprintln(stderr, "No .sas files found")
		return 1
	}

	passed := 0
	failed := 0
	expectedErr := 0

	for _, f := range files {
		result := checkFile(f)
		hasErrors := len(result.errors) > 0

		switch {
		case result.expectsError && hasErrors:
			expectedErr++
			fmt.Fprintf(stdout, "OK   %s (expected error, found %d)\n", f, len(result.errors))
		case result.expectsError:
			failed++
			fmt.Fprintf(stdout, "FAIL %s (expected error, none found)\n", f)
		case hasErrors:
			failed++
			fmt.Fprintf(stdout, "FAIL %s\n", f)
			for _, e := range result.errors {
				fmt.Fprintf(stdout, "     %s\n", e)
			}
		default:
			passed++
			fmt.Fprintf(stdout, "OK   %s (%d steps)\n", f, result.steps)
		}
		for _, w := range result.warnings {
			fmt.Fprintf(stdout, "     warning: %s\n", w)
		}
		if verbose {
			for _, s := range result.summaries {
				fmt.Fprintf(stdout, "     %s\n", s)
			}
		}
	}

	fmt.Fprintf(stdout, "\n--- Summary ---\n")
	fmt.Fprintf(stdout, "Passed:          %d\n", passed)
	fmt.Fprintf(stdout, "Expected errors: %d\n", expectedErr)
	fmt.Fprintf(stdout, "Failed:          %d\n", failed)
	fmt.Fprintf(stdout, "Total:           %d\n", len(files))

	if failed > 0 {
		return 1
	}
	return 0
}
