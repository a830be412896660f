// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Command dstep is the DATA-step interpreter CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"

	"nickandperla.net/dstep/internal/config"
	"nickandperla.net/dstep/internal/logging"
	"nickandperla.net/dstep/pkg/dstep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, interactive))
}

// run is the whole CLI; it returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, interactive bool) int {
	fs := flag.NewFlagSet("dstep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		evalStr    = fs.String("e", "", "Run program string")
		file       = fs.String("f", "", "Run program file")
		configPath = fs.String("config", "", "Configuration file (default: "+config.FileName+" in the current or a parent directory)")
		dbPath     = fs.String("db", "", "SQLite database path (overrides the configuration)")
		memory     = fs.Bool("memory", false, "Use an in-memory store (overrides the configuration)")
		printList  = fs.String("print", "", "Comma-separated datasets to print after the run")
		logLevel   = fs.String("log-level", "", "Log level: debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	switch {
	case *memory:
		cfg.Store = config.StoreConfig{Kind: config.StoreMemory}
	case *dbPath != "":
		cfg.Store = config.StoreConfig{Kind: config.StoreSQLite, Path: *dbPath}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	s, err := cfg.OpenStore()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return 1
	}
	if err := cfg.Seed(s); err != nil {
		s.Close()
		fmt.Fprintf(stderr, "Error seeding datasets: %v\n", err)
		return 1
	}

	runtime, err := dstep.New(
		dstep.WithStore(s),
		dstep.WithLogger(stderr, level),
		dstep.WithProcedure("print", dstep.Print(stdout)),
		dstep.WithLoopLimit(cfg.LoopLimit()),
	)
	if err != nil {
		s.Close()
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer runtime.Close()

	var rep *dstep.Report
	switch {
	case *file != "":
		rep, err = runtime.ExecFile(ctx, *file)
	case *evalStr != "":
		rep, err = runtime.Exec(ctx, *evalStr)
	case !interactive:
		rep, err = runtime.ExecReader(ctx, stdin)
	default:
		runREPL(ctx, runtime, stdin, stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	status := 0
	if rep.Failed() {
		status = 1
	}
	for _, name := range splitList(*printList) {
		if err := printDataset(ctx, runtime, stdout, name); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			status = 1
		}
	}
	return status
}

// loadConfig reads the named file, or dstep.yaml found from the working
// directory, or falls back to the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		found, err := config.FindConfig(".")
		if err != nil {
			return nil, err
		}
		if found == "" {
			return config.Default(), nil
		}
		path = found
	}
	return config.LoadConfig(path)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printDataset(ctx context.Context, runtime *dstep.Runtime, w io.Writer, name string) error {
	t, err := runtime.Store().Lookup(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%d rows)\n", name, t.Len())
	return dstep.WriteTable(ctx, w, t, t.Columns(), t.Len(), true)
}
