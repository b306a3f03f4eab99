// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logstream

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/ckmon/lib/logentry"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Version is the format version to encode. Zero selects
	// logentry.CurrentVersion.
	Version int

	// Compression wraps the whole stream, header included.
	Compression Compression
}

// Writer encodes entries to a stream. The header is written by
// NewWriter and the terminator by Close. Not safe for concurrent use.
type Writer struct {
	compressor io.WriteCloser
	version    int
	count      int64
	closed     bool
}

// NewWriter writes the stream header to w and returns a Writer for the
// entries that follow.
func NewWriter(w io.Writer, options WriterOptions) (*Writer, error) {
	version := options.Version
	if version == 0 {
		version = logentry.CurrentVersion
	}
	if _, err := logentry.Policy(version); err != nil {
		return nil, err
	}
	compressor, err := newCompressor(options.Compression, w)
	if err != nil {
		return nil, err
	}
	if err := WriteHeader(compressor, version); err != nil {
		compressor.Close()
		return nil, err
	}
	return &Writer{
		compressor: compressor,
		version:    version,
	}, nil
}

// Write encodes one entry. Without compression the entry reaches the
// underlying writer in a single Write call, so a reader on the other
// end of a pipe never observes a partial entry from a healthy writer.
func (writer *Writer) Write(entry *logentry.Entry) error {
	if writer.closed {
		return fmt.Errorf("writing to a closed log stream")
	}
	if err := logentry.Write(writer.compressor, entry, writer.version); err != nil {
		return err
	}
	writer.count++
	return nil
}

// Flush pushes buffered compressed data to the underlying writer. It
// is a no-op for uncompressed streams.
func (writer *Writer) Flush() error {
	if flushable, ok := writer.compressor.(flusher); ok {
		if err := flushable.Flush(); err != nil {
			return fmt.Errorf("flushing compressed log stream: %w", err)
		}
	}
	return nil
}

// Close writes the terminator and finishes the compressed frame. The
// underlying writer is left open. Closing twice is a no-op.
func (writer *Writer) Close() error {
	if writer.closed {
		return nil
	}
	writer.closed = true
	if _, err := writer.compressor.Write([]byte{logentry.Terminator}); err != nil {
		writer.compressor.Close()
		return fmt.Errorf("writing log stream terminator: %w", err)
	}
	if err := writer.compressor.Close(); err != nil {
		return fmt.Errorf("finishing log stream: %w", err)
	}
	return nil
}

// Abandon finishes the compressed frame without writing the
// terminator, leaving a stream that readers report as ending early.
func (writer *Writer) Abandon() error {
	if writer.closed {
		return nil
	}
	writer.closed = true
	return writer.compressor.Close()
}

// Version returns the format version being written.
func (writer *Writer) Version() int { return writer.version }

// Count returns the number of entries written.
func (writer *Writer) Count() int64 { return writer.count }
