// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
)

// EntryReader re-reads single entries of one file by offset. Reading
// at increasing offsets streams through the file once; reading
// backwards seeks on raw files and restarts decompression on
// compressed ones. Not safe for concurrent use.
type EntryReader struct {
	file   *RawLogFile
	handle *os.File
	reader *logstream.Reader
}

// ReadAt decodes the entry starting at offset.
func (entryReader *EntryReader) ReadAt(offset int64) (*logentry.Entry, error) {
	if !entryReader.file.Readable() {
		return nil, fmt.Errorf("%s is not readable: %w", entryReader.file.Path, entryReader.file.Err)
	}
	if offset < logstream.HeaderLength {
		return nil, fmt.Errorf("offset %d is inside the header of %s", offset, entryReader.file.Path)
	}
	if err := entryReader.position(offset); err != nil {
		entryReader.reset()
		return nil, err
	}
	if !entryReader.reader.Next() {
		err := entryReader.reader.Err()
		entryReader.reset()
		if err == nil {
			return nil, fmt.Errorf("%s: no entry at offset %d", entryReader.file.Path, offset)
		}
		return nil, fmt.Errorf("%s: reading entry at offset %d: %w", entryReader.file.Path, offset, err)
	}
	return entryReader.reader.Entry(), nil
}

func (entryReader *EntryReader) position(offset int64) error {
	if entryReader.reader != nil && entryReader.reader.Position() <= offset {
		return entryReader.reader.SkipTo(offset)
	}
	if entryReader.handle == nil {
		handle, err := os.Open(entryReader.file.Path)
		if err != nil {
			return err
		}
		entryReader.handle = handle
	}
	if entryReader.reader != nil {
		entryReader.reader.Close()
		entryReader.reader = nil
	}

	if entryReader.file.Compression == logstream.CompressionNone {
		if _, err := entryReader.handle.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seeking %s to %d: %w", entryReader.file.Path, offset, err)
		}
		reader, err := logstream.NewReader(bufio.NewReader(entryReader.handle), entryReader.file.Version, offset)
		if err != nil {
			return err
		}
		entryReader.reader = reader
		return nil
	}

	if _, err := entryReader.handle.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", entryReader.file.Path, err)
	}
	reader, err := logstream.Open(entryReader.handle)
	if err != nil {
		return fmt.Errorf("reopening %s: %w", entryReader.file.Path, err)
	}
	entryReader.reader = reader
	return reader.SkipTo(offset)
}

// reset drops the decoder so that the next read repositions.
func (entryReader *EntryReader) reset() {
	if entryReader.reader != nil {
		entryReader.reader.Close()
		entryReader.reader = nil
	}
}

// Close releases the file handle.
func (entryReader *EntryReader) Close() error {
	entryReader.reset()
	if entryReader.handle == nil {
		return nil
	}
	err := entryReader.handle.Close()
	entryReader.handle = nil
	return err
}
