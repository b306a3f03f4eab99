// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete ckmon command tree.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/cmd/ckmon/logs"
	"github.com/bureau-foundation/ckmon/cmd/ckmon/relay"
	"github.com/bureau-foundation/ckmon/lib/version"
)

// Root builds and returns the ckmon command tree. Diagnostics of every
// command go to logger.
func Root(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name: "ckmon",
		Description: `ckmon: structured log files and log relays.

Read, validate and merge binary log files written by one or many
processes, and relay the structured logs of child processes through
a pipe.`,
		Subcommands: []*cli.Command{
			logs.DumpCommand(logger.With("command", "dump")),
			logs.ValidateCommand(logger.With("command", "validate")),
			logs.ActivityCommand(logger.With("command", "activity")),
			logs.IndexCommand(logger.With("command", "index")),
			relay.Command(logger.With("command", "relay")),
			relay.EmitCommand(logger.With("command", "emit")),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("ckmon %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
