// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package value defines the scalar values a DATA step computes with.
//
// A Value is exactly one of Missing, Numeric or Text. Missing is a state of
// its own: it is neither zero nor the empty string, and most operators
// propagate it instead of failing.
package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumeric
	KindText
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNumeric:
		return "numeric"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Value is a tagged scalar. The zero Value is Missing.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// ErrNotNumeric is returned when text cannot be read as a number.
var ErrNotNumeric = errors.New("text is not a valid number")

// Missing returns the missing value.
func Missing() Value { return Value{} }

// Number returns a numeric value. NaN is stored as Missing.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindNumeric, num: f}
}

// Bool returns 1 for true and 0 for false.
func Bool(b bool) Value {
	if b {
		return Number(1)
	}
	return Number(0)
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is Missing.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsNumeric reports whether v is Numeric.
func (v Value) IsNumeric() bool { return v.kind == KindNumeric }

// IsText reports whether v is Text.
func (v Value) IsText() bool { return v.kind == KindText }

// Float returns the number held by v and whether v is Numeric.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumeric
}

// Str returns the text held by v and whether v is Text.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindText
}

// Truthy reports whether v counts as true in a condition: Numeric and
// non-zero. Missing and zero are both false. Text holding a numeral is
// read as that number; any other text is false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindMissing:
		return false
	case KindNumeric:
		return v.num != 0
	}
	f, err := v.ToNumber()
	return err == nil && f != 0
}

// ToNumber coerces v to a float. Missing yields NaN, so callers test
// IsMissing first. Text must be a valid numeral once surrounding blanks
// are removed.
func (v Value) ToNumber() (float64, error) {
	switch v.kind {
	case KindNumeric:
		return v.num, nil
	case KindText:
		f, ok := ParseNumber(v.str)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v.str)
		}
		return f, nil
	}
	return math.NaN(), nil
}

// ParseNumber reads s as a finite decimal numeral.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String renders v the way it is shown in listings: Missing is ".",
// integers carry no decimal point.
func (v Value) String() string {
	switch v.kind {
	case KindNumeric:
		return FormatNumber(v.num)
	case KindText:
		return v.str
	}
	return "."
}

// GoString renders v with its kind, for test failure messages.
func (v Value) GoString() string {
	switch v.kind {
	case KindNumeric:
		return "Number(" + FormatNumber(v.num) + ")"
	case KindText:
		return "Text(" + strconv.Quote(v.str) + ")"
	}
	return "Missing()"
}

// FormatNumber renders f in its shortest round-trip form.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal reports whether a and b hold the same variant and payload.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumeric:
		return a.num == b.num
	case KindText:
		return a.str == b.str
	}
	return true
}

// Order is a total order used for BY keys: Missing sorts before every
// number, and numbers sort before text.
func Order(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumeric:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
	case KindText:
		return strings.Compare(a.str, b.str)
	}
	return 0
}
