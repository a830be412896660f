// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"nickandperla.net/dstep/internal/scanner"
	"nickandperla.net/dstep/internal/store"
	"nickandperla.net/dstep/internal/token"
	"nickandperla.net/dstep/pkg/dstep"
)

func printBanner(w io.Writer) {
	fmt.Fprintln(w, "dstep REPL (Ctrl+D to exit)")
	fmt.Fprintln(w, "Statements are buffered until RUN; or QUIT;")
	fmt.Fprintln(w, "Commands: .datasets  .print <name>  .clear  .quit")
	fmt.Fprintln(w)
}

// session buffers program text until a step is complete and runs it.
type session struct {
	ctx     context.Context
	runtime *dstep.Runtime
	out     io.Writer
	eol     string // "\r\n" in raw mode
	buf     strings.Builder
}

func (s *session) printf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if s.eol != "\n" {
		text = strings.ReplaceAll(text, "\n", s.eol)
	}
	io.WriteString(s.out, text)
}

func (s *session) prompt() string {
	if s.buf.Len() > 0 {
		return "... "
	}
	return ">>> "
}

// feed handles one input line. It returns false when the session ends.
func (s *session) feed(line string) bool {
	if s.buf.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ".") {
		return s.command(strings.Fields(strings.TrimSpace(line)))
	}
	if strings.TrimSpace(line) == "" && s.buf.Len() == 0 {
		return true
	}
	s.buf.WriteString(line)
	s.buf.WriteString("\n")
	if !stepComplete(s.buf.String()) {
		return true
	}
	src := s.buf.String()
	s.buf.Reset()

	rep, err := s.runtime.Exec(s.ctx, src)
	if err != nil {
		s.printf("Error: %v\n", err)
		return s.ctx.Err() == nil
	}
	for _, step := range rep.Steps {
		switch {
		case step.Err != nil:
			s.printf("ERROR: %s: %v\n", step.Label, step.Err)
		case step.Dataset != "":
			s.printf("NOTE: %s: %s has %d rows\n", step.Label, step.Dataset, step.RowsOut)
		}
	}
	return true
}

func (s *session) command(fields []string) bool {
	switch fields[0] {
	case ".quit", ".exit":
		return false
	case ".clear":
		s.buf.Reset()
	case ".datasets":
		cat, ok := s.runtime.Store().(store.Catalog)
		if !ok {
			s.printf("Error: store does not list datasets\n")
			return true
		}
		infos, err := cat.Datasets()
		if err != nil {
			s.printf("Error: %v\n", err)
			return true
		}
		for _, info := range infos {
			s.printf("%s  %d rows  %s\n", info.Name, info.Rows, strings.Join(info.Columns, " "))
		}
	case ".print":
		if len(fields) != 2 {
			s.printf("usage: .print <name>\n")
			return true
		}
		var sb strings.Builder
		if err := printDataset(s.ctx, s.runtime, &sb, fields[1]); err != nil {
			s.printf("Error: %v\n", err)
			return true
		}
		s.printf("%s", sb.String())
	default:
		s.printf("unknown command %s\n", fields[0])
	}
	return true
}

// stepComplete reports whether src ends with a RUN or QUIT statement.
// Text that does not scan yet, such as an open string, is incomplete.
func stepComplete(src string) bool {
	items, err := scanner.NewFromString(src).All()
	if err != nil {
		return false
	}
	n := len(items) - 1 // drop EOF
	if n < 2 || items[n-1].Token != token.SEMI {
		return false
	}
	last := items[n-2]
	if last.Token != token.IDENT {
		return false
	}
	kw := strings.ToLower(last.Value)
	return kw == "run" || kw == "quit"
}

func runREPL(ctx context.Context, runtime *dstep.Runtime, stdin io.Reader, stdout io.Writer) {
	printBanner(stdout)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		runRawREPL(ctx, runtime, f, stdout)
		return
	}
	runBasicREPL(ctx, runtime, stdin, stdout)
}

// runBasicREPL handles non-TTY input.
func runBasicREPL(ctx context.Context, runtime *dstep.Runtime, stdin io.Reader, stdout io.Writer) {
	s := &session{ctx: ctx, runtime: runtime, out: stdout, eol: "\n"}
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprint(stdout, s.prompt())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(stdout)
			return
		}
		if !s.feed(strings.TrimRight(line, "\r\n")) {
			return
		}
	}
}

// runRawREPL handles TTY input with line editing and history.
func runRawREPL(ctx context.Context, runtime *dstep.Runtime, f *os.File, stdout io.Writer) {
	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set raw mode: %v\n", err)
		runBasicREPL(ctx, runtime, f, stdout)
		return
	}
	defer term.Restore(fd, oldState)

	s := &session{ctx: ctx, runtime: runtime, out: stdout, eol: "\r\n"}
	ed := &lineEditor{in: f, out: stdout}
	for {
		fmt.Fprint(stdout, s.prompt())
		line, eof := ed.readLine()
		if eof {
			fmt.Fprint(stdout, "\r\n")
			return
		}
		if !s.feed(line) {
			return
		}
	}
}

// lineEditor reads lines from a terminal in raw mode.
type lineEditor struct {
	in      io.Reader
	out     io.Writer
	history []string
}

func (e *lineEditor) readByte() (byte, bool) {
	buf := make([]byte, 1)
	n, err := e.in.Read(buf)
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// readLine returns the line and whether EOF was encountered.
func (e *lineEditor) readLine() (string, bool) {
	var line []rune
	cursor := 0
	hist := len(e.history)

	// Redraw from the cursor to the end of the line.
	redrawFromCursor := func() {
		fmt.Fprint(e.out, "\x1b[K")
		fmt.Fprint(e.out, string(line[cursor:]))
		if cursor < len(line) {
			fmt.Fprintf(e.out, "\x1b[%dD", len(line)-cursor)
		}
	}
	replace := func(text string) {
		if cursor > 0 {
			fmt.Fprintf(e.out, "\x1b[%dD", cursor)
		}
		line = []rune(text)
		cursor = 0
		redrawFromCursor()
		if len(line) > 0 {
			fmt.Fprintf(e.out, "\x1b[%dC", len(line))
		}
		cursor = len(line)
	}
	insert := func(r rune) {
		line = append(line[:cursor], append([]rune{r}, line[cursor:]...)...)
		cursor++
		fmt.Fprint(e.out, string(r))
		if cursor < len(line) {
			redrawFromCursor()
		}
	}

	for {
		b, ok := e.readByte()
		if !ok {
			return string(line), true
		}

		switch b {
		case 0x04: // Ctrl+D
			if len(line) == 0 {
				return "", true
			}
			if cursor < len(line) {
				line = append(line[:cursor], line[cursor+1:]...)
				redrawFromCursor()
			}

		case 0x03: // Ctrl+C
			fmt.Fprint(e.out, "^C\r\n")
			return "", false

		case 0x0d, 0x0a: // Enter
			fmt.Fprint(e.out, "\r\n")
			if text := string(line); strings.TrimSpace(text) != "" {
				e.history = append(e.history, text)
			}
			return string(line), false

		case 0x7f, 0x08: // Backspace
			if cursor > 0 {
				cursor--
				line = append(line[:cursor], line[cursor+1:]...)
				fmt.Fprint(e.out, "\b")
				redrawFromCursor()
			}

		case 0x1b: // ESC [ sequences
			next, ok := e.readByte()
			if !ok || next != '[' {
				continue
			}
			code, ok := e.readByte()
			if !ok {
				continue
			}
			switch code {
			case 'A': // Up
				if hist > 0 {
					hist--
					replace(e.history[hist])
				}
			case 'B': // Down
				if hist < len(e.history) {
					hist++
					if hist == len(e.history) {
						replace("")
					} else {
						replace(e.history[hist])
					}
				}
			case 'C': // Right
				if cursor < len(line) {
					cursor++
					fmt.Fprint(e.out, "\x1b[C")
				}
			case 'D': // Left
				if cursor > 0 {
					cursor--
					fmt.Fprint(e.out, "\x1b[D")
				}
			case '3': // Delete: ESC [ 3 ~
				if t, ok := e.readByte(); ok && t == '~' && cursor < len(line) {
					line = append(line[:cursor], line[cursor+1:]...)
					redrawFromCursor()
				}
			}

		case 0x01: // Ctrl+A
			if cursor > 0 {
				fmt.Fprintf(e.out, "\x1b[%dD", cursor)
				cursor = 0
			}

		case 0x05: // Ctrl+E
			if cursor < len(line) {
				fmt.Fprintf(e.out, "\x1b[%dC", len(line)-cursor)
				cursor = len(line)
			}

		case 0x0b: // Ctrl+K
			if cursor < len(line) {
				line = line[:cursor]
				fmt.Fprint(e.out, "\x1b[K")
			}

		case 0x15: // Ctrl+U
			if cursor > 0 {
				fmt.Fprintf(e.out, "\x1b[%dD", cursor)
				line = line[cursor:]
				cursor = 0
				redrawFromCursor()
			}

		case '\t':
			insert(' ')

		default:
			switch {
			case b >= 0x20 && b < 0x7f:
				insert(rune(b))
			case b >= 0x80:
				utf := []byte{b}
				extra := 0
				switch {
				case b&0xE0 == 0xC0:
					extra = 1
				case b&0xF0 == 0xE0:
					extra = 2
				case b&0xF8 == 0xF0:
					extra = 3
				}
				for i := 0; i < extra; i++ {
					c, ok := e.readByte()
					if !ok {
						break
					}
					utf = append(utf, c)
				}
				insert([]rune(string(utf))[0])
			}
		}
	}
}
