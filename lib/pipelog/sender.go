// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/pipe"
)

// EnvironmentVariable carries the connection name to a child process.
const EnvironmentVariable = "CKMON_PIPE"

// ErrNoPipe is returned by DialFromEnvironment when no pipe was handed
// down.
var ErrNoPipe = errors.New(EnvironmentVariable + " is not set")

// SenderOptions configures a Sender.
type SenderOptions struct {
	// Version is the format version written. Zero means current.
	Version int

	Logger *slog.Logger
}

// Sender is the client end of a relay and a monitor.Client. Every
// event is written to the pipe as it happens. It is safe for
// concurrent use.
type Sender struct {
	mu          sync.Mutex
	destination io.WriteCloser
	writer      *logstream.Writer
	logger      *slog.Logger
	closed      bool
}

// NewSender connects to the pipe named name.
func NewSender(name string, options SenderOptions) (*Sender, error) {
	file, err := pipe.Dial(name)
	if err != nil {
		return nil, err
	}
	sender, err := NewStreamSender(file, options)
	if err != nil {
		file.Close()
		return nil, err
	}
	return sender, nil
}

// DialFromEnvironment connects to the pipe named by CKMON_PIPE.
func DialFromEnvironment(options SenderOptions) (*Sender, error) {
	name := os.Getenv(EnvironmentVariable)
	if name == "" {
		return nil, ErrNoPipe
	}
	return NewSender(name, options)
}

// NewStreamSender relays into w, which the Sender owns from now on.
// The header is written immediately.
func NewStreamSender(w io.WriteCloser, options SenderOptions) (*Sender, error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	writer, err := logstream.NewWriter(w, logstream.WriterOptions{Version: options.Version})
	if err != nil {
		return nil, fmt.Errorf("writing relay header: %w", err)
	}
	return &Sender{
		destination: w,
		writer:      writer,
		logger:      options.Logger,
	}, nil
}

// Write sends one entry. Transport errors are returned as is.
func (sender *Sender) Write(entry *logentry.Entry) error {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.closed {
		return fmt.Errorf("relay sender is closed")
	}
	return sender.writer.Write(entry)
}

// OnAutoTagsChanged is a no-op: every entry carries its full tag set.
func (sender *Sender) OnAutoTagsChanged(logentry.Tags) error { return nil }

func (sender *Sender) OnOpenGroup(group monitor.Group) error {
	return sender.Write(group.Data.Entry(logentry.KindOpenGroup))
}

func (sender *Sender) OnGroupClosed(group monitor.Group, conclusions []string, stamp logentry.Timestamp) error {
	return sender.Write(&logentry.Entry{
		Kind:        logentry.KindCloseGroup,
		Time:        stamp,
		Conclusions: conclusions,
	})
}

func (sender *Sender) OnUnfilteredLog(group monitor.Group, data monitor.Data) error {
	return sender.Write(data.Entry(logentry.KindLine))
}

// Close writes the goodbye byte and closes the pipe.
func (sender *Sender) Close() error {
	return sender.finish(true)
}

// Abandon closes the pipe without goodbye, as a crashing process
// would.
func (sender *Sender) Abandon() error {
	return sender.finish(false)
}

func (sender *Sender) finish(goodbye bool) error {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.closed {
		return nil
	}
	sender.closed = true
	var finishErr error
	if goodbye {
		finishErr = sender.writer.Close()
	} else {
		finishErr = sender.writer.Abandon()
	}
	closeErr := sender.destination.Close()
	if err := errors.Join(finishErr, closeErr); err != nil {
		sender.logger.Warn("closing relay sender", "goodbye", goodbye, "error", err)
		return err
	}
	return nil
}
