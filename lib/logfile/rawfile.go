// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"fmt"
	"os"
	"time"

	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
)

// Extension is the file name extension of log files.
const Extension = ".ckmon"

// RawLogFile is the validation summary of one log file.
type RawLogFile struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Version     int
	Compression logstream.Compression

	// Offsets holds the stream offset of every entry decoded, in file
	// order. For an invalid file these are the entries decoded before
	// the failure.
	Offsets []int64

	LineCount       int
	OpenGroupCount  int
	CloseGroupCount int

	// FirstTime and LastTime bound the entry timestamps.
	FirstTime logentry.Timestamp
	LastTime  logentry.Timestamp

	// Multicast reports whether any entry carried a multicast
	// envelope. MonitorIDs lists the distinct monitor ids in order of
	// first appearance.
	Multicast  bool
	MonitorIDs []string

	// Err is nil iff the file was decoded up to its terminator.
	Err error
}

// IsValid reports whether the file was decoded up to its terminator.
func (file *RawLogFile) IsValid() bool { return file.Err == nil }

// Readable reports whether the header was decoded, so that the
// recorded offsets can be re-read.
func (file *RawLogFile) Readable() bool { return file.Version != 0 }

// EntryCount returns the number of entries decoded.
func (file *RawLogFile) EntryCount() int { return len(file.Offsets) }

// Open validates the file at path. It never fails: open, header and
// decoding errors land in the returned file's Err.
func Open(path string) *RawLogFile {
	file := &RawLogFile{Path: path}
	handle, err := os.Open(path)
	if err != nil {
		file.Err = err
		return file
	}
	defer handle.Close()

	info, err := handle.Stat()
	if err != nil {
		file.Err = err
		return file
	}
	file.Size = info.Size()
	file.ModTime = info.ModTime()

	reader, err := logstream.Open(handle)
	if err != nil {
		file.Err = fmt.Errorf("%s: %w", path, err)
		return file
	}
	defer reader.Close()
	file.Version = reader.Version()
	file.Compression = reader.Compression()

	seen := make(map[string]bool)
	for reader.Next() {
		file.record(reader.Offset(), reader.Entry(), seen)
	}
	if reader.BadEndOfStream() {
		file.Err = fmt.Errorf("%s: %w", path, reader.Err())
	}
	return file
}

func (file *RawLogFile) record(offset int64, entry *logentry.Entry, seen map[string]bool) {
	file.Offsets = append(file.Offsets, offset)
	switch entry.Kind {
	case logentry.KindLine:
		file.LineCount++
	case logentry.KindOpenGroup:
		file.OpenGroupCount++
	case logentry.KindCloseGroup:
		file.CloseGroupCount++
	}
	if !entry.Time.IsZero() {
		if file.FirstTime.IsZero() || entry.Time.Compare(file.FirstTime) < 0 {
			file.FirstTime = entry.Time
		}
		if entry.Time.Compare(file.LastTime) > 0 {
			file.LastTime = entry.Time
		}
	}
	if entry.Multicast != nil {
		file.Multicast = true
		if id := entry.Multicast.MonitorID; !seen[id] {
			seen[id] = true
			file.MonitorIDs = append(file.MonitorIDs, id)
		}
	}
}

// ReadEntryAt re-reads the entry starting at offset.
func (file *RawLogFile) ReadEntryAt(offset int64) (*logentry.Entry, error) {
	reader := file.NewEntryReader()
	defer reader.Close()
	return reader.ReadAt(offset)
}

// NewEntryReader returns a reader for repeated offset reads. Close it
// when done.
func (file *RawLogFile) NewEntryReader() *EntryReader {
	return &EntryReader{file: file}
}
