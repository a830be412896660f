// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package value

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Format is a parsed display format such as "8.2", "$10.", "best12." or
// "comma10.2".
type Format struct {
	Name     string // "", "$", "BEST", "COMMA" or "Z"
	Width    int    // 0 means natural width
	Decimals int
	spec     string
}

// String returns the format as it was written.
func (f Format) String() string { return f.spec }

// ParseFormat parses a format specification. The trailing period is
// required, as in "5." or "$8.".
func ParseFormat(spec string) (Format, error) {
	s := strings.ToUpper(strings.TrimSpace(spec))
	f := Format{spec: spec}
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return f, fmt.Errorf("invalid format %q: missing period", spec)
	}
	head, tail := s[:dot], s[dot+1:]

	i := 0
	if strings.HasPrefix(head, "$") {
		i = 1
	}
	for i < len(head) && unicode.IsLetter(rune(head[i])) {
		i++
	}
	f.Name = head[:i]
	switch f.Name {
	case "", "$", "BEST", "COMMA", "Z":
	default:
		return f, fmt.Errorf("unknown format %q", spec)
	}
	if w := head[i:]; w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid width in format %q", spec)
		}
		f.Width = n
	}
	if tail != "" {
		if f.Name == "$" {
			return f, fmt.Errorf("text format %q takes no decimals", spec)
		}
		n, err := strconv.Atoi(tail)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid decimals in format %q", spec)
		}
		f.Decimals = n
	}
	if f.Name == "" && f.Width == 0 {
		return f, fmt.Errorf("invalid format %q: width required", spec)
	}
	return f, nil
}

// Apply renders v under the format. Numbers are right-aligned and text is
// left-aligned and truncated to the width.
func (f Format) Apply(v Value) string {
	if f.Name == "$" {
		s := v.String()
		if v.IsMissing() {
			s = ""
		}
		if f.Width > 0 {
			if len(s) > f.Width {
				return s[:f.Width]
			}
			return s + strings.Repeat(" ", f.Width-len(s))
		}
		return s
	}

	var s string
	switch {
	case v.IsMissing():
		s = "."
	case v.IsText():
		s = v.str
	default:
		s = f.number(v.num)
	}
	if f.Width > 0 {
		if len(s) > f.Width {
			return strings.Repeat("*", f.Width)
		}
		return strings.Repeat(" ", f.Width-len(s)) + s
	}
	return s
}

func (f Format) number(n float64) string {
	switch f.Name {
	case "BEST":
		return FormatNumber(n)
	case "COMMA":
		p := message.NewPrinter(language.English)
		return p.Sprintf("%v", number.Decimal(n, number.Scale(f.Decimals)))
	case "Z":
		s := strconv.FormatFloat(n, 'f', f.Decimals, 64)
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		width := f.Width
		if neg {
			width--
		}
		if len(s) < width {
			s = strings.Repeat("0", width-len(s)) + s
		}
		if neg {
			s = "-" + s
		}
		return s
	}
	return strconv.FormatFloat(n, 'f', f.Decimals, 64)
}
