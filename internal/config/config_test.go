// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/store"
	"nickandperla.net/dstep/internal/value"
)

const sample = `
store:
  kind: SQLite
  path: /tmp/work.db
log:
  level: debug
max_loop_iterations: 0
datasets:
  - name: work.scores
    columns: [id, name, score]
    rows:
      - [1, ann, 9.5]
      - [2, null, ~]
      - [3, "", true]
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sample), "dstep.yaml")
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Store.Kind != StoreSQLite || cfg.Store.Path != "/tmp/work.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.LoopLimit() != 0 {
		t.Errorf("LoopLimit = %d, want 0", cfg.LoopLimit())
	}

	tbl, err := cfg.Datasets[0].Table()
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	want := [][]value.Value{
		{value.Number(1), value.Text("ann"), value.Number(9.5)},
		{value.Number(2), value.Missing(), value.Missing()},
		{value.Number(3), value.Text(""), value.Number(1)},
	}
	for i, row := range want {
		got := tbl.Values(i)
		for j := range row {
			if !value.Equal(got[j], row[j]) {
				t.Errorf("row %d col %d = %#v, want %#v", i, j, got[j], row[j])
			}
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"), "dstep.yaml")
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Store.Kind != StoreMemory {
		t.Errorf("Store.Kind = %q, want memory", cfg.Store.Kind)
	}
	if cfg.LoopLimit() != eval.DefaultLoopLimit {
		t.Errorf("LoopLimit = %d", cfg.LoopLimit())
	}
	if Default().LoopLimit() != eval.DefaultLoopLimit {
		t.Errorf("Default().LoopLimit = %d", Default().LoopLimit())
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"bad yaml", "store: [", "parsing"},
		{"unknown store", "store: {kind: redis}", "unknown kind"},
		{"sqlite without path", "store: {kind: sqlite}", "path is required"},
		{"bad level", "log: {level: loud}", "unknown log level"},
		{"negative limit", "max_loop_iterations: -1", "negative"},
		{"bad library", "datasets: [{name: lib.x, columns: [a], rows: []}]", "library"},
		{"duplicate dataset", "datasets: [{name: x, columns: [a]}, {name: X, columns: [a]}]", "duplicate"},
		{"short row", "datasets: [{name: x, columns: [a, b], rows: [[1]]}]", "expected 2 values"},
		{"nested value", "datasets: [{name: x, columns: [a], rows: [[[1]]]}]", "unsupported value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc), "dstep.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadAndSeed(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := "datasets:\n  - name: nums\n    columns: [n]\n    rows: [[1], [2]]\n"
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(sub)
	if err != nil {
		t.Fatalf("FindConfig failed: %v", err)
	}
	if found != path {
		t.Errorf("FindConfig = %q, want %q", found, path)
	}

	cfg, err := LoadConfig(found)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	s, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()
	if err := cfg.Seed(s); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	tbl, err := s.Lookup("nums")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if tbl.Len() != 2 {
		t.Errorf("rows = %d, want 2", tbl.Len())
	}
	if _, ok := s.(*store.Memory); !ok {
		t.Errorf("OpenStore returned %T, want memory store", s)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
