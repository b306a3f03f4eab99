// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/pipelog"
)

type emitParams struct {
	Level   string   `flag:"level,l" desc:"severity of the emitted lines" default:"info"`
	Tags    []string `flag:"tag,t" desc:"tags of the emitted lines (repeatable)"`
	Group   string   `flag:"group,g" desc:"open a group with this text around the lines"`
	Monitor string   `flag:"monitor" desc:"monitor id (default: a random UUID)"`
}

// EmitCommand returns the "emit" command.
func EmitCommand(logger *slog.Logger) *cli.Command {
	var params emitParams
	return &cli.Command{
		Name:    "emit",
		Summary: "Log into the pipe of an enclosing relay",
		Description: `Send log lines to the relay that started this process (through the
pipe named by CKMON_PIPE). The arguments form one line; without
arguments every line of stdin is sent.

With --group the lines are nested in a group that is closed before
the command exits.`,
		Usage: "ckmon emit [flags] [message...]",
		Examples: []cli.Example{
			{
				Description: "Log one warning from a script running under ckmon relay",
				Command:     "ckmon emit --level warn --tag disk 'cache almost full'",
			},
			{
				Description: "Relay the output of a tool as a group",
				Command:     "make 2>&1 | ckmon emit --group 'make'",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			level, err := logentry.ParseLevel(params.Level)
			if err != nil {
				return err
			}
			if !level.Valid() {
				return fmt.Errorf("--level must name a severity, got %q", params.Level)
			}
			name := os.Getenv(pipelog.EnvironmentVariable)
			if name == "" {
				return fmt.Errorf("%w: run this command under \"ckmon relay\"", pipelog.ErrNoPipe)
			}
			return emit(name, args, os.Stdin, emitOptions{
				level:   level,
				tags:    params.Tags,
				group:   params.Group,
				monitor: params.Monitor,
				logger:  logger,
			})
		},
	}
}

type emitOptions struct {
	level   logentry.Level
	tags    []string
	group   string
	monitor string
	logger  *slog.Logger
}

// emit connects to the pipe named name and sends args as one line, or
// every line of input when args is empty.
func emit(name string, args []string, input io.Reader, options emitOptions) (err error) {
	sender, err := pipelog.NewSender(name, pipelog.SenderOptions{Logger: options.logger})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sender.Close())
	}()

	m := monitor.New(monitor.Options{ID: options.monitor, Logger: options.logger})
	m.AddClient(sender)
	defer m.Close()

	if options.group != "" {
		m.OpenGroup(options.level, options.group, options.tags...)
	}
	if len(args) > 0 {
		m.Log(options.level, strings.Join(args, " "), options.tags...)
		return nil
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m.Log(options.level, scanner.Text(), options.tags...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}
