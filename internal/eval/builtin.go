// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"nickandperla.net/dstep/internal/ast"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// BuiltinFunc computes a function from its evaluated arguments.
type BuiltinFunc func(args []value.Value) (value.Value, error)

// rawFunc computes a function from its unevaluated argument nodes, for
// functions that take array or format names.
type rawFunc func(c *Context, args []ast.NodeID, row *table.Row) (value.Value, error)

type builtin struct {
	min, max int // max < 0: no upper bound
	fn       BuiltinFunc
	raw      rawFunc
}

// getBuiltin returns the builtin for a lower-cased name.
func getBuiltin(name string) (builtin, bool) {
	switch name {
	case "abs":
		return builtin{min: 1, max: 1, fn: numeric1(math.Abs)}, true
	case "sqrt":
		return builtin{min: 1, max: 1, fn: numeric1e(sqrt)}, true
	case "exp":
		return builtin{min: 1, max: 1, fn: numeric1e(exp)}, true
	case "log":
		return builtin{min: 1, max: 1, fn: numeric1e(logOf(math.Log))}, true
	case "log10":
		return builtin{min: 1, max: 1, fn: numeric1e(logOf(math.Log10))}, true
	case "int":
		return builtin{min: 1, max: 1, fn: numeric1(math.Trunc)}, true
	case "floor":
		return builtin{min: 1, max: 1, fn: numeric1(math.Floor)}, true
	case "ceil":
		return builtin{min: 1, max: 1, fn: numeric1(math.Ceil)}, true
	case "sign":
		return builtin{min: 1, max: 1, fn: numeric1(sign)}, true
	case "round":
		return builtin{min: 1, max: 2, fn: builtinRound}, true
	case "mod":
		return builtin{min: 2, max: 2, fn: builtinMod}, true
	case "sum":
		return builtin{min: 1, max: -1, fn: stat(sum)}, true
	case "mean":
		return builtin{min: 1, max: -1, fn: stat(mean)}, true
	case "min":
		return builtin{min: 1, max: -1, fn: stat(minOf)}, true
	case "max":
		return builtin{min: 1, max: -1, fn: stat(maxOf)}, true
	case "n":
		return builtin{min: 1, max: -1, fn: countWhere(false)}, true
	case "nmiss":
		return builtin{min: 1, max: -1, fn: countWhere(true)}, true
	case "missing":
		return builtin{min: 1, max: 1, fn: builtinMissing}, true
	case "coalesce":
		return builtin{min: 1, max: -1, fn: builtinCoalesce}, true
	case "upcase":
		return builtin{min: 1, max: 1, fn: text1(strings.ToUpper)}, true
	case "lowcase":
		return builtin{min: 1, max: 1, fn: text1(strings.ToLower)}, true
	case "trim":
		return builtin{min: 1, max: 1, fn: text1(trimRight)}, true
	case "strip":
		return builtin{min: 1, max: 1, fn: text1(strip)}, true
	case "left":
		return builtin{min: 1, max: 1, fn: text1(left)}, true
	case "reverse":
		return builtin{min: 1, max: 1, fn: text1(reverse)}, true
	case "length":
		return builtin{min: 1, max: 1, fn: builtinLength}, true
	case "substr":
		return builtin{min: 2, max: 3, fn: builtinSubstr}, true
	case "index":
		return builtin{min: 2, max: 2, fn: builtinIndex}, true
	case "cats":
		return builtin{min: 1, max: -1, fn: builtinCats}, true
	case "catx":
		return builtin{min: 2, max: -1, fn: builtinCatx}, true
	case "put":
		return builtin{min: 2, max: 2, raw: builtinPut}, true
	case "input":
		return builtin{min: 1, max: 2, raw: builtinInput}, true
	case "dim":
		return builtin{min: 1, max: 2, raw: builtinDim}, true
	}
	return builtin{}, false
}

// IsBuiltin reports whether name is a registered function.
func IsBuiltin(name string) bool {
	_, ok := getBuiltin(strings.ToLower(name))
	return ok
}

func (b builtin) checkArity(name string, n int) error {
	if n >= b.min && (b.max < 0 || n <= b.max) {
		return nil
	}
	var want string
	switch {
	case b.max < 0:
		want = fmt.Sprintf("at least %d", b.min)
	case b.min == b.max:
		want = strconv.Itoa(b.min)
	default:
		want = fmt.Sprintf("%d to %d", b.min, b.max)
	}
	return fmt.Errorf("%w: %s takes %s, got %d", ErrArity, strings.ToUpper(name), want, n)
}

func (c *Context) call(n *ast.Node, row *table.Row) (value.Value, error) {
	b, ok := getBuiltin(strings.ToLower(n.Name))
	if !ok {
		return value.Missing(), fmt.Errorf("%w %s", ErrUndefinedFunction, strings.ToUpper(n.Name))
	}

	var v value.Value
	var err error
	if b.raw != nil {
		if err = b.checkArity(n.Name, len(n.Args)); err != nil {
			return value.Missing(), err
		}
		v, err = b.raw(c, n.Args, row)
	} else {
		var args []value.Value
		if args, err = c.args(n.Args, row); err != nil {
			return value.Missing(), err
		}
		if err = b.checkArity(n.Name, len(args)); err != nil {
			return value.Missing(), err
		}
		v, err = b.fn(args)
	}
	if err != nil {
		return value.Missing(), fmt.Errorf("%s: %w", strings.ToUpper(n.Name), err)
	}
	return v, nil
}

// args evaluates call arguments. A whole-array reference a{*} expands to
// the values of all its elements.
func (c *Context) args(ids []ast.NodeID, row *table.Row) ([]value.Value, error) {
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		n := c.arena.Node(id)
		if n.Kind == ast.ArrayRef && len(n.Args) == 0 {
			arr, ok := c.Array(n.Name)
			if !ok {
				return nil, fmt.Errorf("%w %s", ErrUndefinedArray, n.Name)
			}
			for _, name := range arr.Vars {
				v, _ := row.Get(name)
				out = append(out, v)
			}
			continue
		}
		v, err := c.Eval(id, row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func numeric1(f func(float64) float64) BuiltinFunc {
	return numeric1e(func(x float64) (float64, error) { return f(x), nil })
}

func numeric1e(f func(float64) (float64, error)) BuiltinFunc {
	return func(args []value.Value) (value.Value, error) {
		if args[0].IsMissing() {
			return value.Missing(), nil
		}
		x, err := args[0].ToNumber()
		if err != nil {
			return value.Missing(), err
		}
		r, err := f(x)
		if err != nil {
			return value.Missing(), err
		}
		return value.Number(r), nil
	}
}

func sqrt(x float64) (float64, error) {
	if x < 0 {
		return 0, fmt.Errorf("%w: square root of %s", ErrDomain, value.FormatNumber(x))
	}
	return math.Sqrt(x), nil
}

func exp(x float64) (float64, error) {
	r := math.Exp(x)
	if math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: exp(%s) overflows", ErrDomain, value.FormatNumber(x))
	}
	return r, nil
}

func logOf(f func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if x <= 0 {
			return 0, fmt.Errorf("%w: logarithm of %s", ErrDomain, value.FormatNumber(x))
		}
		return f(x), nil
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// numbers reads every argument as a number. A Missing argument is reported
// as false in the second result.
func numbers(args []value.Value) ([]float64, []bool, error) {
	out := make([]float64, len(args))
	ok := make([]bool, len(args))
	for i, a := range args {
		if a.IsMissing() {
			continue
		}
		f, err := a.ToNumber()
		if err != nil {
			return nil, nil, err
		}
		out[i], ok[i] = f, true
	}
	return out, ok, nil
}

// builtinRound rounds to the nearest multiple of the optional unit.
func builtinRound(args []value.Value) (value.Value, error) {
	xs, ok, err := numbers(args)
	if err != nil {
		return value.Missing(), err
	}
	for _, present := range ok {
		if !present {
			return value.Missing(), nil
		}
	}
	unit := 1.0
	if len(xs) == 2 {
		unit = xs[1]
	}
	if unit <= 0 {
		return value.Missing(), fmt.Errorf("%w: rounding unit %s", ErrDomain, value.FormatNumber(unit))
	}
	r := math.Round(xs[0]/unit) * unit
	if dec := decimals(unit); dec > 0 {
		r, _ = strconv.ParseFloat(strconv.FormatFloat(r, 'f', dec, 64), 64)
	}
	return value.Number(r), nil
}

func decimals(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func builtinMod(args []value.Value) (value.Value, error) {
	xs, ok, err := numbers(args)
	if err != nil {
		return value.Missing(), err
	}
	if !ok[0] || !ok[1] {
		return value.Missing(), nil
	}
	if xs[1] == 0 {
		return value.Missing(), ErrDivisionByZero
	}
	return value.Number(math.Mod(xs[0], xs[1])), nil
}

// stat applies f to the non-missing arguments. With none, the result is
// Missing.
func stat(f func([]float64) float64) BuiltinFunc {
	return func(args []value.Value) (value.Value, error) {
		xs, ok, err := numbers(args)
		if err != nil {
			return value.Missing(), err
		}
		present := xs[:0]
		for i, x := range xs {
			if ok[i] {
				present = append(present, x)
			}
		}
		if len(present) == 0 {
			return value.Missing(), nil
		}
		return value.Number(f(present)), nil
	}
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 { return sum(xs) / float64(len(xs)) }

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

// countWhere counts the arguments that are (missing true) or are not
// (missing false) Missing.
func countWhere(missing bool) BuiltinFunc {
	return func(args []value.Value) (value.Value, error) {
		n := 0
		for _, a := range args {
			if a.IsMissing() == missing {
				n++
			}
		}
		return value.Number(float64(n)), nil
	}
}

func builtinMissing(args []value.Value) (value.Value, error) {
	v := args[0]
	if s, ok := v.Str(); ok {
		return value.Bool(strings.TrimSpace(s) == ""), nil
	}
	return value.Bool(v.IsMissing()), nil
}

func builtinCoalesce(args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !a.IsMissing() {
			return a, nil
		}
	}
	return value.Missing(), nil
}

func text1(f func(string) string) BuiltinFunc {
	return func(args []value.Value) (value.Value, error) {
		if args[0].IsMissing() {
			return value.Missing(), nil
		}
		return value.Text(f(args[0].String())), nil
	}
}

func trimRight(s string) string { return strings.TrimRight(s, " ") }

func strip(s string) string { return strings.Trim(s, " ") }

// left moves leading blanks to the end, keeping the length.
func left(s string) string {
	t := strings.TrimLeft(s, " ")
	return t + strings.Repeat(" ", len(s)-len(t))
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// builtinLength counts characters up to the last non-blank one. A blank
// string has length 1.
func builtinLength(args []value.Value) (value.Value, error) {
	if args[0].IsMissing() {
		return value.Missing(), nil
	}
	n := utf8.RuneCountInString(trimRight(args[0].String()))
	if n == 0 {
		n = 1
	}
	return value.Number(float64(n)), nil
}

func anyMissing(args []value.Value) bool {
	for _, a := range args {
		if a.IsMissing() {
			return true
		}
	}
	return false
}

// wholeNumber reads v as an integer argument.
func wholeNumber(v value.Value, what string) (int, error) {
	f, err := v.ToNumber()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s %s is not an integer", ErrDomain, what, value.FormatNumber(f))
	}
	return int(f), nil
}

// builtinSubstr extracts characters starting at a 1-based position.
func builtinSubstr(args []value.Value) (value.Value, error) {
	if anyMissing(args) {
		return value.Missing(), nil
	}
	r := []rune(args[0].String())
	pos, err := wholeNumber(args[1], "position")
	if err != nil {
		return value.Missing(), err
	}
	if pos < 1 {
		return value.Missing(), fmt.Errorf("%w: position %d", ErrDomain, pos)
	}
	if pos > len(r) {
		return value.Text(""), nil
	}
	end := len(r)
	if len(args) == 3 {
		n, err := wholeNumber(args[2], "length")
		if err != nil {
			return value.Missing(), err
		}
		if n < 0 {
			return value.Missing(), fmt.Errorf("%w: length %d", ErrDomain, n)
		}
		end = min(pos-1+n, len(r))
	}
	return value.Text(string(r[pos-1 : end])), nil
}

// builtinIndex returns the 1-based character position of the first
// occurrence of the second argument, or 0.
func builtinIndex(args []value.Value) (value.Value, error) {
	if anyMissing(args) {
		return value.Missing(), nil
	}
	s, sub := args[0].String(), args[1].String()
	if sub == "" {
		return value.Number(0), nil
	}
	i := strings.Index(s, sub)
	if i < 0 {
		return value.Number(0), nil
	}
	return value.Number(float64(utf8.RuneCountInString(s[:i]) + 1)), nil
}

func builtinCats(args []value.Value) (value.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		if !a.IsMissing() {
			sb.WriteString(strip(a.String()))
		}
	}
	return value.Text(sb.String()), nil
}

// builtinCatx joins the stripped, non-blank arguments with a separator.
func builtinCatx(args []value.Value) (value.Value, error) {
	sep := ""
	if !args[0].IsMissing() {
		sep = args[0].String()
	}
	var parts []string
	for _, a := range args[1:] {
		if a.IsMissing() {
			continue
		}
		if s := strip(a.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return value.Text(strings.Join(parts, sep)), nil
}

// formatName reads a format argument. A name with a period such as best8.
// or a quoted string is taken literally; any other expression supplies
// the format as its text.
func (c *Context) formatName(id ast.NodeID, row *table.Row) (string, error) {
	n := c.arena.Node(id)
	switch n.Kind {
	case ast.VariableRef:
		if strings.Contains(n.Name, ".") {
			return n.Name, nil
		}
	case ast.NumberLiteral:
		s := value.FormatNumber(n.Num)
		if !strings.Contains(s, ".") {
			s += "."
		}
		return s, nil
	}
	v, err := c.Eval(id, row)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// builtinPut renders a value under a format. The result is text.
func builtinPut(c *Context, args []ast.NodeID, row *table.Row) (value.Value, error) {
	v, err := c.Eval(args[0], row)
	if err != nil {
		return value.Missing(), err
	}
	spec, err := c.formatName(args[1], row)
	if err != nil {
		return value.Missing(), err
	}
	f, err := value.ParseFormat(spec)
	if err != nil {
		return value.Missing(), fmt.Errorf("%w: %v", ErrDomain, err)
	}
	return value.Text(f.Apply(v)), nil
}

// builtinInput reads text as a number. Blank text is Missing. An informat
// argument is accepted and ignored.
func builtinInput(c *Context, args []ast.NodeID, row *table.Row) (value.Value, error) {
	v, err := c.Eval(args[0], row)
	if err != nil {
		return value.Missing(), err
	}
	s, ok := v.Str()
	if !ok {
		return v, nil
	}
	if strings.TrimSpace(s) == "" {
		return value.Missing(), nil
	}
	f, err := v.ToNumber()
	if err != nil {
		return value.Missing(), err
	}
	return value.Number(f), nil
}

// builtinDim returns the size of an array's first dimension, or of the
// dimension given by the second argument.
func builtinDim(c *Context, args []ast.NodeID, row *table.Row) (value.Value, error) {
	n := c.arena.Node(args[0])
	if n.Kind != ast.VariableRef && !(n.Kind == ast.ArrayRef && len(n.Args) == 0) {
		return value.Missing(), fmt.Errorf("%w: argument must be an array name", ErrDomain)
	}
	arr, ok := c.Array(n.Name)
	if !ok {
		return value.Missing(), fmt.Errorf("%w %s", ErrUndefinedArray, n.Name)
	}
	k := 1
	if len(args) == 2 {
		v, err := c.Eval(args[1], row)
		if err != nil {
			return value.Missing(), err
		}
		if k, err = wholeNumber(v, "dimension"); err != nil {
			return value.Missing(), err
		}
	}
	if k < 1 || k > len(arr.Dims) {
		return value.Missing(), fmt.Errorf("%w: %s has %d dimensions", ErrDomain, arr.Name, len(arr.Dims))
	}
	return value.Number(float64(arr.Dims[k-1])), nil
}
