// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/config"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logfile"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/pipe"
	"github.com/bureau-foundation/ckmon/lib/pipelog"
)

// startFailureCode is the exit code when the command cannot be
// started, as in shells.
const startFailureCode = 126

type relayParams struct {
	Config  string `flag:"config" desc:"configuration file (default: $CKMON_CONFIG)"`
	Level   string `flag:"level" desc:"lowest severity relayed (default: relay.minimal_level from config)"`
	Output  string `flag:"output" desc:"also write relayed entries to rolling files in this directory (default: output.directory from config)"`
	Monitor string `flag:"monitor" desc:"monitor id recorded for the relayed entries" default:"relay"`
}

// Command returns the "relay" command.
func Command(logger *slog.Logger) *cli.Command {
	var params relayParams
	return &cli.Command{
		Name:    "relay",
		Summary: "Run a command and relay its structured logs",
		Description: `Run a command with a log pipe attached. Entries the command writes
to the pipe (see "ckmon emit", or any program using the pipelog
sender with CKMON_PIPE) are filtered and logged to stderr, and
written to rolling log files when an output directory is configured.

Flags must come before the command; everything after the first
positional argument (or after "--") belongs to the command. The relay
exits with the command's exit code.`,
		Usage: "ckmon relay [flags] [--] <command> [args...]",
		Examples: []cli.Example{
			{
				Description: "Relay a build script, keeping its logs on disk",
				Command:     "ckmon relay --output logs -- ./build.sh --release",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := cli.FlagsFromParams("relay", &params)
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			command, err := parseArgs(args)
			if err != nil {
				return err
			}
			options, cleanup, err := params.options(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			exitCode, status, err := runRelay(command, options)
			if err != nil {
				if exitCode == 0 {
					exitCode = 1
				}
				logger.Error("relay failed", "error", err)
				return &cli.ExitError{Code: exitCode}
			}
			logger.Info("relay finished", "status", status, "exit_code", exitCode)
			if exitCode != 0 {
				return &cli.ExitError{Code: exitCode}
			}
			if status == pipelog.StatusError {
				return fmt.Errorf("log relay failed")
			}
			return nil
		},
	}
}

// relayOptions is everything runRelay needs besides the command.
type relayOptions struct {
	destination monitor.Destination
	failureWait time.Duration
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	logger      *slog.Logger
}

// options resolves the configuration into relay options. The returned
// cleanup flushes the output files.
func (params *relayParams) options(logger *slog.Logger) (relayOptions, func(), error) {
	cfg, err := config.LoadOptional(params.Config)
	if err != nil {
		return relayOptions{}, nil, err
	}
	if params.Level != "" {
		cfg.Relay.MinimalLevel = params.Level
	}
	if params.Output != "" {
		cfg.Output.Directory = params.Output
	}
	if err := cfg.Validate(); err != nil {
		return relayOptions{}, nil, err
	}
	minimal, err := logentry.ParseLevel(cfg.Relay.MinimalLevel)
	if err != nil {
		return relayOptions{}, nil, err
	}
	failureWait, err := cfg.FailureWaitDuration()
	if err != nil {
		return relayOptions{}, nil, err
	}

	destination := monitor.New(monitor.Options{
		ID:           params.Monitor,
		MinimalLevel: minimal,
		Logger:       logger,
	})
	destination.AddClient(monitor.NewSlogClient(logger.With("monitor", params.Monitor)))

	cleanup := func() {}
	if cfg.Output.Directory != "" {
		if err := cfg.EnsurePaths(); err != nil {
			return relayOptions{}, nil, err
		}
		compression, err := logstream.ParseCompression(cfg.Output.Compression)
		if err != nil {
			return relayOptions{}, nil, err
		}
		handler, err := logfile.NewHandler(logfile.HandlerOptions{
			Directory:         cfg.Output.Directory,
			Prefix:            cfg.Output.Prefix,
			MaxEntriesPerFile: cfg.Output.MaxEntriesPerFile,
			Compression:       compression,
			Version:           cfg.Output.Version,
			Logger:            logger,
		})
		if err != nil {
			return relayOptions{}, nil, err
		}
		destination.AddClient(handler.NewClient())
		cleanup = func() {
			destination.Close()
			if err := handler.Close(); err != nil {
				logger.Error("closing log files", "error", err)
			}
		}
	}

	return relayOptions{
		destination: destination,
		failureWait: failureWait,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		logger:      logger,
	}, cleanup, nil
}

// runRelay runs command with a log pipe and returns its exit code and
// the relay status. The error is set only when the command could not
// be run at all.
func runRelay(command []string, options relayOptions) (int, pipelog.Status, error) {
	receiver, err := pipelog.NewReceiver(options.destination, pipelog.ReceiverOptions{
		FailureWait: options.failureWait,
		Logger:      options.logger,
	})
	if err != nil {
		return 1, pipelog.StatusError, fmt.Errorf("creating log pipe: %w", err)
	}
	defer receiver.Close()

	child := exec.Command(command[0], command[1:]...)
	child.Stdin = options.stdin
	child.Stdout = options.stdout
	child.Stderr = options.stderr
	child.ExtraFiles = []*os.File{receiver.ClientFile()}
	child.Env = append(os.Environ(), pipelog.EnvironmentVariable+"="+pipe.ChildName(0))

	if err := child.Start(); err != nil {
		return startFailureCode, pipelog.StatusError, fmt.Errorf("starting %s: %w", command[0], err)
	}
	// The child holds its own copy now; ours would keep the relay
	// open after the child exits.
	if err := receiver.ReleaseClientHandle(); err != nil {
		options.logger.Warn("releasing pipe client handle", "error", err)
	}

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go forwardSignals(signals, child.Process)
	defer func() {
		signal.Stop(signals)
		close(signals)
	}()

	exitCode := 0
	if err := child.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return 1, pipelog.StatusError, fmt.Errorf("waiting for %s: %w", command[0], err)
		}
		exitCode = exitStatus(exitErr)
	}

	status := receiver.WaitEnd(exitCode != 0)
	if status == pipelog.StatusMissingEndMarker {
		options.logger.Warn("command exited without closing its log pipe", "exit_code", exitCode)
	}
	return exitCode, status, nil
}

// exitStatus maps a child killed by a signal to 128+signal, as in
// shells.
func exitStatus(exitErr *exec.ExitError) int {
	if waitStatus, ok := exitErr.Sys().(syscall.WaitStatus); ok && waitStatus.Signaled() {
		return 128 + int(waitStatus.Signal())
	}
	return exitErr.ExitCode()
}

// forwardSignals relays received signals to the child until signals is
// closed. Errors are ignored: the child may already have exited.
func forwardSignals(signals <-chan os.Signal, process *os.Process) {
	for sig := range signals {
		if sysSig, ok := sig.(syscall.Signal); ok {
			_ = process.Signal(sysSig)
		}
	}
}

// parseArgs extracts the command from the positional arguments, with
// an optional leading "--".
func parseArgs(args []string) ([]string, error) {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified\n\nUsage: ckmon relay [flags] [--] <command> [args...]")
	}
	return args, nil
}
