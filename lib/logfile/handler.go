// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Directory receives the files. It is created if missing.
	Directory string

	// Prefix starts every file name. Default: ckmon
	Prefix string

	// MaxEntriesPerFile closes the current file once it holds this
	// many entries. Zero never rolls.
	MaxEntriesPerFile int

	Compression logstream.Compression

	// Version is the format version written. Zero means current.
	Version int

	// ProcessID is recorded in every envelope. Zero uses os.Getpid().
	ProcessID int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handler writes the entries of any number of monitors into rolling
// multicast files. It is safe for concurrent use.
type Handler struct {
	mu      sync.Mutex
	options HandlerOptions

	file     *os.File
	writer   *logstream.Writer
	count    int
	sequence int
	files    []string
	closed   bool

	// previous is the back-link of the next entry of each monitor.
	previous map[string]backLink
}

type backLink struct {
	kind logentry.Kind
	time logentry.Timestamp
}

// NewHandler creates the output directory and returns a Handler. The
// first file is created with the first entry.
func NewHandler(options HandlerOptions) (*Handler, error) {
	if options.Directory == "" {
		return nil, fmt.Errorf("log file handler requires a directory")
	}
	if options.Prefix == "" {
		options.Prefix = "ckmon"
	}
	if options.MaxEntriesPerFile < 0 {
		return nil, fmt.Errorf("max entries per file must not be negative, got %d", options.MaxEntriesPerFile)
	}
	if options.Version == 0 {
		options.Version = logentry.CurrentVersion
	}
	if _, err := logentry.Policy(options.Version); err != nil {
		return nil, err
	}
	if options.ProcessID == 0 {
		options.ProcessID = os.Getpid()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(options.Directory, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Handler{
		options:  options,
		previous: make(map[string]backLink),
	}, nil
}

// Write appends entry on behalf of monitorID, wrapping it in a
// multicast envelope that links back to the monitor's previous entry.
func (handler *Handler) Write(monitorID string, depth int, entry *logentry.Entry) error {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.closed {
		return fmt.Errorf("log file handler is closed")
	}
	if handler.writer == nil {
		if err := handler.openLocked(); err != nil {
			return err
		}
	}

	link := handler.previous[monitorID]
	wrapped := entry.WithMulticast(logentry.Multicast{
		ProcessID:    handler.options.ProcessID,
		MonitorID:    monitorID,
		Depth:        depth,
		PreviousKind: link.kind,
		PreviousTime: link.time,
	})
	if err := handler.writer.Write(wrapped); err != nil {
		return fmt.Errorf("writing %s: %w", handler.file.Name(), err)
	}
	handler.previous[monitorID] = backLink{kind: entry.Kind, time: entry.Time}
	handler.count++

	if handler.options.MaxEntriesPerFile > 0 && handler.count >= handler.options.MaxEntriesPerFile {
		return handler.closeFileLocked()
	}
	return nil
}

func (handler *Handler) openLocked() error {
	handler.sequence++
	name := fmt.Sprintf("%s-%s-%04d%s",
		handler.options.Prefix,
		handler.options.Clock.Now().UTC().Format("20060102T150405.000000000Z"),
		handler.sequence,
		Extension)
	path := filepath.Join(handler.options.Directory, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	writer, err := logstream.NewWriter(file, logstream.WriterOptions{
		Version:     handler.options.Version,
		Compression: handler.options.Compression,
	})
	if err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	handler.file = file
	handler.writer = writer
	handler.count = 0
	handler.files = append(handler.files, path)
	handler.options.Logger.Debug("log file opened", "path", path)
	return nil
}

// closeFileLocked terminates and closes the current file.
func (handler *Handler) closeFileLocked() error {
	if handler.writer == nil {
		return nil
	}
	path := handler.file.Name()
	writeErr := handler.writer.Close()
	closeErr := handler.file.Close()
	handler.writer = nil
	handler.file = nil
	if writeErr != nil {
		return fmt.Errorf("closing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", path, closeErr)
	}
	handler.options.Logger.Debug("log file closed", "path", path, "entries", handler.count)
	return nil
}

// Files returns the paths of every file created so far, oldest first.
func (handler *Handler) Files() []string {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	return slices.Clone(handler.files)
}

// Close terminates the current file. Later writes fail.
func (handler *Handler) Close() error {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.closed {
		return nil
	}
	handler.closed = true
	return handler.closeFileLocked()
}

// NewClient returns a monitor client writing into the handler. Any
// number of monitors may share one handler.
func (handler *Handler) NewClient() monitor.Client {
	return &handlerClient{handler: handler}
}

type handlerClient struct {
	handler *Handler
}

func (client *handlerClient) OnAutoTagsChanged(logentry.Tags) error { return nil }

func (client *handlerClient) OnOpenGroup(group monitor.Group) error {
	return client.handler.Write(group.MonitorID, group.Depth-1, group.Data.Entry(logentry.KindOpenGroup))
}

func (client *handlerClient) OnGroupClosed(group monitor.Group, conclusions []string, stamp logentry.Timestamp) error {
	return client.handler.Write(group.MonitorID, group.Depth-1, &logentry.Entry{
		Kind:        logentry.KindCloseGroup,
		Time:        stamp,
		Conclusions: conclusions,
	})
}

func (client *handlerClient) OnUnfilteredLog(group monitor.Group, data monitor.Data) error {
	return client.handler.Write(group.MonitorID, group.Depth, data.Entry(logentry.KindLine))
}
