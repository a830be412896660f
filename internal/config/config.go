// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package config loads dstep.yaml: the dataset store, the log level, the
// loop iteration limit and inline seed datasets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"nickandperla.net/dstep/internal/eval"
	"nickandperla.net/dstep/internal/logging"
	"nickandperla.net/dstep/internal/store"
	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// FileName is the configuration file looked up by FindConfig.
const FileName = "dstep.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the top-level dstep.yaml document.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`

	// MaxLoopIterations bounds a single loop execution. Zero disables the
	// limit; absent means eval.DefaultLoopLimit.
	MaxLoopIterations *int `yaml:"max_loop_iterations,omitempty"`

	// Datasets are published to the store before the program runs.
	Datasets []Dataset `yaml:"datasets,omitempty"`
}

// StoreConfig selects the dataset store.
type StoreConfig struct {
	Kind string `yaml:"kind"` // "memory" (default) or "sqlite"
	Path string `yaml:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Dataset is an inline table. A null cell is Missing.
type Dataset struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a dstep.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses dstep.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig searches for dstep.yaml starting from dir and walking up to
// parent directories. It returns "" and no error when there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) setDefaults() {
	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	if c.Store.Kind == "" {
		c.Store.Kind = StoreMemory
	}
	if c.MaxLoopIterations == nil {
		n := eval.DefaultLoopLimit
		c.MaxLoopIterations = &n
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%s: store: path is required for the sqlite store", path)
		}
	default:
		return fmt.Errorf("%s: store: unknown kind %q", path, c.Store.Kind)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%s: log: %w", path, err)
	}
	if *c.MaxLoopIterations < 0 {
		return fmt.Errorf("%s: max_loop_iterations must not be negative", path)
	}
	seen := make(map[string]bool)
	for i, ds := range c.Datasets {
		key, err := store.Normalize(ds.Name)
		if err != nil {
			return fmt.Errorf("%s: datasets[%d]: %w", path, i, err)
		}
		if seen[key] {
			return fmt.Errorf("%s: datasets[%d]: duplicate dataset %s", path, i, ds.Name)
		}
		seen[key] = true
		if _, err := ds.Table(); err != nil {
			return fmt.Errorf("%s: datasets[%d] (%s): %w", path, i, ds.Name, err)
		}
	}
	return nil
}

// LoopLimit returns the configured loop iteration limit.
func (c *Config) LoopLimit() int {
	if c.MaxLoopIterations == nil {
		return eval.DefaultLoopLimit
	}
	return *c.MaxLoopIterations
}

// OpenStore opens the configured store.
func (c *Config) OpenStore() (store.Store, error) {
	if c.Store.Kind == StoreSQLite {
		return store.NewSQLite(c.Store.Path)
	}
	return store.NewMemory(), nil
}

// Seed publishes the inline datasets to s.
func (c *Config) Seed(s store.Store) error {
	for _, ds := range c.Datasets {
		t, err := ds.Table()
		if err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		if err := s.Publish(ds.Name, t); err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
	}
	return nil
}

// Table converts the inline rows. Numbers become Numeric, strings Text,
// booleans 1 or 0 and null Missing.
func (d Dataset) Table() (*table.Table, error) {
	rows := make([][]value.Value, len(d.Rows))
	for i, raw := range d.Rows {
		if len(raw) != len(d.Columns) {
			return nil, fmt.Errorf("row %d: expected %d values, got %d", i+1, len(d.Columns), len(raw))
		}
		vals := make([]value.Value, len(raw))
		for j, cell := range raw {
			v, err := cellValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", i+1, d.Columns[j], err)
			}
			vals[j] = v
		}
		rows[i] = vals
	}
	return table.FromRows(d.Columns, rows)
}

func cellValue(cell any) (value.Value, error) {
	switch x := cell.(type) {
	case nil:
		return value.Missing(), nil
	case int:
		return value.Number(float64(x)), nil
	case int64:
		return value.Number(float64(x)), nil
	case uint64:
		return value.Number(float64(x)), nil
	case float64:
		return value.Number(x), nil
	case string:
		return value.Text(x), nil
	case bool:
		return value.Bool(x), nil
	}
	return value.Missing(), fmt.Errorf("unsupported value %v (%T)", cell, cell)
}
