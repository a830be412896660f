// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package dstep

import (
	"io"
	"strings"

	"nickandperla.net/dstep/internal/logging"
	"nickandperla.net/dstep/internal/store"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithStore uses s as the dataset store. The runtime closes it.
func WithStore(s Store) Option {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithSQLiteStore configures SQLite persistence at the given path.
func WithSQLiteStore(path string) Option {
	return func(r *Runtime) {
		s, err := store.NewSQLite(path)
		if err != nil {
			r.initErr = err
			return
		}
		r.store = s
	}
}

// WithMemoryStore configures an in-memory store (for testing).
func WithMemoryStore() Option {
	return func(r *Runtime) {
		r.store = store.NewMemory()
	}
}

// WithSink sends runtime events to sink.
func WithSink(sink logging.Sink) Option {
	return func(r *Runtime) {
		r.sink = sink
	}
}

// WithLogger logs runtime events to w at level through the process
// logger.
func WithLogger(w io.Writer, level logging.Level) Option {
	return func(r *Runtime) {
		r.sink = logging.NewLogSink(w, level)
	}
}

// WithProcedure registers a procedure under name.
func WithProcedure(name string, p Procedure) Option {
	return func(r *Runtime) {
		r.procs[strings.ToLower(name)] = p
	}
}

// WithLoopLimit bounds the iterations of any single loop. Zero disables
// the limit.
func WithLoopLimit(n int) Option {
	return func(r *Runtime) {
		r.loopLimit = n
	}
}

// WithRunIDs sets the generator of run ids (for testing).
func WithRunIDs(next func() string) Option {
	return func(r *Runtime) {
		r.newRunID = next
	}
}
