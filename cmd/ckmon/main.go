// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ckmon reads, validates and merges structured log files, and relays
// the structured logs of child processes.
//
// Run "ckmon --help" for the command list. Set CKMON_LOG_LEVEL (debug,
// info, warn, error) to change the verbosity of ckmon's own
// diagnostics on stderr.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/cmd/ckmon/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like validate) return
		// an ExitError with the desired exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := logLevel(os.Getenv("CKMON_LOG_LEVEL"))
	if err != nil {
		return err
	}
	return commands.Root(cli.NewCommandLogger(level)).Execute(os.Args[1:])
}

// logLevel parses a slog level name; empty means info.
func logLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("CKMON_LOG_LEVEL: %w", err)
	}
	return level, nil
}
