// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/token"
)

// sexpr renders an expression tree in prefix form for comparison.
func sexpr(a *ast.Arena, id ast.NodeID) string {
	n := a.Node(id)
	switch n.Kind {
	case ast.NumberLiteral:
		return fmt.Sprint(n.Num)
	case ast.TextLiteral:
		return fmt.Sprintf("%q", n.Text)
	case ast.MissingLiteral:
		return "."
	case ast.VariableRef:
		return n.Name
	case ast.UnaryOp:
		return "(" + n.Op.String() + " " + sexpr(a, n.Left) + ")"
	case ast.BinaryOp:
		return "(" + n.Op.String() + " " + sexpr(a, n.Left) + " " + sexpr(a, n.Right) + ")"
	case ast.ArrayRef, ast.FunctionCall:
		parts := []string{n.Name}
		for _, arg := range n.Args {
			parts = append(parts, sexpr(a, arg))
		}
		if n.Kind == ast.ArrayRef {
			return "{" + strings.Join(parts, " ") + "}"
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return n.Kind.String()
}

// onlyStep parses src and returns its single step, failing on any error.
func onlyStep(t *testing.T, src string) *ast.Step {
	t.Helper()
	prog := ParseString(src)
	if errs := Errors(prog); len(errs) > 0 {
		t.Fatalf("Parse(%q) errors: %v", src, errs)
	}
	if len(prog.Steps) != 1 {
		t.Fatalf("Parse(%q) = %d steps, want 1", src, len(prog.Steps))
	}
	return prog.Steps[0]
}

func body(s *ast.Step) []ast.NodeID {
	return s.Arena.Node(s.Body).Args
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{"10 - 4 - 3", "(- (- 10 4) 3)"},
		{"2 ** 3 ** 2", "(** 2 (** 3 2))"},
		{"-2 ** 2", "(- (** 2 2))"},
		{"-a * b", "(* (- a) b)"},
		{"a < b and c or d", "(OR (AND (< a b) c) d)"},
		{"a or b and c", "(OR a (AND b c))"},
		{"not a = b", "(= (NOT a) b)"},
		{"a eq 1 | b ne 2", "(OR (= a 1) (^= b 2))"},
		{"x ge 5 & y le .", "(AND (>= x 5) (<= y .))"},
		{"sum(a, b * 2)", "[sum a (* b 2)]"},
		{"sum(of x1-x3)", "[sum x1 x2 x3]"},
		{"'it''s' = \"t\"", "(= \"it's\" \"t\")"},
		{"5. + .5", "(+ 5 0.5)"},
		{"a{i + 1}", "{a (+ i 1)}"},
	}
	for _, tt := range tests {
		s := onlyStep(t, "data _null_; y = "+tt.expr+"; run;")
		stmt := s.Arena.Node(body(s)[0])
		if got := sexpr(s.Arena, stmt.Right); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestStepHeader(t *testing.T) {
	s := onlyStep(t, `data out; merge a (in=ina) work.b (in=inb); by id; run;`)
	if s.Name != "out" || s.Input != ast.MergeInput {
		t.Fatalf("header = %q %s", s.Name, s.Input)
	}
	if len(s.Sources) != 2 || s.Sources[0].InFlag != "ina" || s.Sources[1].Name != "work.b" || s.Sources[1].InFlag != "inb" {
		t.Errorf("sources = %+v", s.Sources)
	}
	if len(s.By) != 1 || s.By[0] != "id" {
		t.Errorf("by = %v", s.By)
	}

	null := onlyStep(t, "data _null_; x = 1; run;")
	if null.Name != "" || null.Label() != "data _null_" {
		t.Errorf("_null_ step name = %q", null.Name)
	}
}

func TestStatementKinds(t *testing.T) {
	src := `data out;
		set in;
		retain total 0 label 'x' n;
		array s{3} s1-s3;
		array m{2,3};
		do i = 1 to 3 by 1; s{i} = i; end;
		do while (total < 10); total = total + 1; if total > 5 then leave; end;
		do until (n > 2); n = sum(n, 1); continue; end;
		do; y = 1; end;
		if x > 1 then output; else delete;
		if x;
		drop i;
		keep x y total;
		format x best8. y $10. total comma12.2;
	run;`
	s := onlyStep(t, src)
	want := []ast.Kind{
		ast.RetainDecl, ast.ArrayDecl, ast.ArrayDecl, ast.IndexedDo, ast.WhileDo, ast.UntilDo,
		ast.Block, ast.IfThenElse, ast.IfThenElse, ast.DropDecl, ast.KeepDecl, ast.FormatDecl,
	}
	stmts := body(s)
	if len(stmts) != len(want) {
		t.Fatalf("got %d statements, want %d", len(stmts), len(want))
	}
	for i, id := range stmts {
		if k := s.Arena.Node(id).Kind; k != want[i] {
			t.Errorf("statement %d: got %s, want %s", i, k, want[i])
		}
	}

	retain := s.Arena.Node(stmts[0])
	if strings.Join(retain.Names, " ") != "total label n" {
		t.Errorf("retain names = %v", retain.Names)
	}
	if retain.Args[0] == ast.None || retain.Args[1] == ast.None || retain.Args[2] != ast.None {
		t.Errorf("retain inits = %v", retain.Args)
	}

	arr := s.Arena.Node(stmts[1])
	if arr.Name != "s" || len(arr.Dims) != 1 || arr.Dims[0] != 3 || len(arr.Names) != 3 || arr.Names[2] != "s3" {
		t.Errorf("array = %+v", arr)
	}
	if m := s.Arena.Node(stmts[2]); len(m.Dims) != 2 || m.Dims[1] != 3 || len(m.Names) != 0 {
		t.Errorf("2-D array = %+v", m)
	}

	sub := s.Arena.Node(stmts[8])
	if sub.Then != ast.None || s.Arena.Node(sub.Else).Kind != ast.Delete {
		t.Errorf("subsetting IF = %+v", sub)
	}

	format := s.Arena.Node(stmts[11])
	if strings.Join(format.Specs, " ") != "best8. $10. comma12.2" {
		t.Errorf("format specs = %v", format.Specs)
	}
}

func TestArrayParenSubscript(t *testing.T) {
	s := onlyStep(t, "data _null_; array a(2) a1 a2; a(1) = abs(-1); run;")
	asg := s.Arena.Node(body(s)[1])
	if got := s.Arena.Node(asg.Left).Kind; got != ast.ArrayRef {
		t.Errorf("a(1) target = %s, want ArrayRef", got)
	}
	if got := s.Arena.Node(asg.Right).Kind; got != ast.FunctionCall {
		t.Errorf("abs(-1) = %s, want FunctionCall", got)
	}
}

func TestOfArrayStar(t *testing.T) {
	s := onlyStep(t, "data _null_; array a{3}; t = sum(of a{*}); run;")
	call := s.Arena.Node(s.Arena.Node(body(s)[1]).Right)
	if len(call.Args) != 1 {
		t.Fatalf("args = %v", call.Args)
	}
	ref := s.Arena.Node(call.Args[0])
	if ref.Kind != ast.ArrayRef || len(ref.Args) != 0 {
		t.Errorf("of a{*} = %+v", ref)
	}
}

func TestKeywordAsVariable(t *testing.T) {
	s := onlyStep(t, "data _null_; output = 1; do = output + 1; run;")
	if len(body(s)) != 2 || s.Arena.Node(body(s)[0]).Kind != ast.Assignment {
		t.Errorf("keyword assignments not parsed as assignments")
	}
}

func TestProcStep(t *testing.T) {
	s := onlyStep(t, "proc print data=out noobs; var x y; title 'hello'; run;")
	if s.Kind != ast.ProcStep || s.Name != "print" {
		t.Fatalf("step = %s %q", s.Label(), s.Name)
	}
	want := map[string]string{"data": "out", "noobs": "", "var": "x y", "title": "hello"}
	for k, v := range want {
		if got, ok := s.Options[k]; !ok || got != v {
			t.Errorf("option %s = %q, want %q", k, got, v)
		}
	}
}

func TestRecovery(t *testing.T) {
	src := `data a; x = ; run;
		data b; y = 2; run;
		data c; leave; run;
		data d; z = 3; run;`
	prog := ParseString(src)
	if len(prog.Steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(prog.Steps))
	}
	for i, failed := range []bool{true, false, true, false} {
		if got := prog.Steps[i].Err != nil; got != failed {
			t.Errorf("step %d failed = %v, want %v (%v)", i, got, failed, prog.Steps[i].Err)
		}
	}
	var perr *Error
	if !errors.As(prog.Steps[2].Err, &perr) || !strings.Contains(perr.Msg, "outside of a loop") {
		t.Errorf("leave error = %v", prog.Steps[2].Err)
	}
}

func TestImplicitStepEnd(t *testing.T) {
	prog := ParseString("data a; x = 1; data b; set a; run;")
	if len(prog.Steps) != 2 || Errors(prog) != nil {
		t.Fatalf("steps = %d, errors = %v", len(prog.Steps), Errors(prog))
	}
	if prog.Steps[1].Input != ast.SetInput {
		t.Errorf("second step input = %s", prog.Steps[1].Input)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unclosed paren", "data a; x = (1 + 2; run;", "expected"},
		{"missing end", "data a; do i = 1 to 2; x = i; run;", "DO without a matching END"},
		{"stray end", "data a; end; run;", "END without"},
		{"continue outside loop", "data a; continue; run;", "outside of a loop"},
		{"nested set", "data a; if 1 then set b; run;", "top level"},
		{"two inputs", "data a; set b; set c; run;", "only one"},
		{"merge without by", "data a; merge b c; run;", "requires a BY"},
		{"by without input", "data a; by id; run;", "requires SET or MERGE"},
		{"star outside of", "data a; array q{2}; x = q{*}; run;", "OF list"},
		{"bad range", "data a; drop x3-x1; run;", "backwards"},
		{"unterminated string", "data a; x = 'abc; run;", "unterminated string"},
		{"illegal character", "data a; x = 1 @ 2; run;", "unexpected character"},
		{"no step keyword", "x = 1;", "expected DATA or PROC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := ParseString(tt.src)
			errs := Errors(prog)
			if len(errs) == 0 {
				t.Fatalf("Parse(%q) succeeded, want error containing %q", tt.src, tt.want)
			}
			if !strings.Contains(errs[0].Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", errs[0], tt.want)
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	prog := ParseString("data a;\n  x = * 2;\nrun;")
	var perr *Error
	if !errors.As(prog.Steps[0].Err, &perr) {
		t.Fatalf("err = %v, want *Error", prog.Steps[0].Err)
	}
	if perr.Line != 2 || perr.Col != 7 {
		t.Errorf("position = %d:%d, want 2:7", perr.Line, perr.Col)
	}
}

func TestOperatorTokens(t *testing.T) {
	s := onlyStep(t, "data _null_; y = a ^= b; run;")
	n := s.Arena.Node(s.Arena.Node(body(s)[0]).Right)
	if n.Op != token.NE {
		t.Errorf("op = %s, want ^=", n.Op)
	}
}
