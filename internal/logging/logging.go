// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package logging carries runtime events from the interpreter to a sink.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fortio.org/log"
)

// Kind identifies an event.
type Kind uint8

const (
	StepStart Kind = iota
	StepEnd
	StepError
	ProcRun
)

func (k Kind) String() string {
	switch k {
	case StepStart:
		return "step start"
	case StepEnd:
		return "step end"
	case StepError:
		return "step error"
	case ProcRun:
		return "proc run"
	}
	return "unknown"
}

// Event is one runtime event. Fields not relevant to Kind are zero.
type Event struct {
	Kind     Kind
	RunID    string
	Step     string // step label, e.g. "data out"
	Index    int    // 1-based position of the step in the program
	Line     int    // statement line of an error, 0 when unknown
	Col      int    // statement column of an error, 0 when unknown
	RowsIn   int
	RowsOut  int
	Duration time.Duration
	Err      error
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// Level is a fortio.org/log level.
type Level = log.Level

// LogSink writes events through the process-wide fortio.org/log logger.
type LogSink struct{}

// NewLogSink points the process logger at w, sets its level and returns a
// sink over it. The logger is shared, so the most recent call wins.
func NewLogSink(w io.Writer, level Level) *LogSink {
	log.SetLogLevel(level)
	log.SetOutput(w)
	log.Config.LogFileAndLine = false
	return &LogSink{}
}

// Emit logs the event. Errors are logged at error level, step starts at
// debug level and everything else at info level.
func (LogSink) Emit(e Event) {
	attrs := []log.KeyVal{log.Str("run", e.RunID), log.Str("step", e.Step), log.Attr("index", e.Index)}
	switch e.Kind {
	case StepStart:
		log.S(log.Debug, e.Kind.String(), attrs...)
	case StepEnd:
		attrs = append(attrs, log.Attr("rows_in", e.RowsIn), log.Attr("rows_out", e.RowsOut),
			log.Str("duration", e.Duration.String()))
		log.S(log.Info, e.Kind.String(), attrs...)
	case StepError:
		if e.Line > 0 {
			attrs = append(attrs, log.Attr("line", e.Line))
		}
		if e.Col > 0 {
			attrs = append(attrs, log.Attr("col", e.Col))
		}
		if e.Err != nil {
			attrs = append(attrs, log.Str("error", e.Err.Error()))
		}
		log.S(log.Error, e.Kind.String(), attrs...)
	case ProcRun:
		attrs = append(attrs, log.Attr("rows_in", e.RowsIn))
		log.S(log.Info, e.Kind.String(), attrs...)
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// ParseLevel parses "debug", "verbose", "info", "warn" or "error". The
// empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.Debug, nil
	case "verbose":
		return log.Verbose, nil
	case "", "info":
		return log.Info, nil
	case "warn", "warning":
		return log.Warning, nil
	case "error":
		return log.Error, nil
	}
	return log.Info, fmt.Errorf("unknown log level %q", s)
}
