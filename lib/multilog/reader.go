// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package multilog

import (
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bureau-foundation/ckmon/lib/logfile"
)

// Options configures a Reader.
type Options struct {
	// IndexDirectory caches file validation results. Empty disables
	// the cache.
	IndexDirectory string

	// IncludeTruncated lets files that lost their end (a crashed
	// writer) contribute the entries decoded before the damage. By
	// default only valid files contribute.
	IncludeTruncated bool

	Logger *slog.Logger
}

// Reader tracks a set of log files. It is safe for concurrent use.
type Reader struct {
	mu      sync.Mutex
	options Options
	files   []*logfile.RawLogFile
	byPath  map[string]*logfile.RawLogFile
}

// AddResult reports the file tracked for one added path.
type AddResult struct {
	File *logfile.RawLogFile

	// New is false when the path was already tracked.
	New bool
}

// NewReader returns an empty Reader.
func NewReader(options Options) *Reader {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		options: options,
		byPath:  make(map[string]*logfile.RawLogFile),
	}
}

// Add validates and tracks paths. Paths are made absolute; adding a
// tracked path again returns the tracked file with New false.
func (reader *Reader) Add(paths ...string) []AddResult {
	reader.mu.Lock()
	defer reader.mu.Unlock()

	results := make([]AddResult, 0, len(paths))
	for _, path := range paths {
		if absolute, err := filepath.Abs(path); err == nil {
			path = absolute
		}
		if file, ok := reader.byPath[path]; ok {
			results = append(results, AddResult{File: file})
			continue
		}
		file, hit, err := logfile.OpenCached(path, reader.options.IndexDirectory)
		if err != nil {
			reader.options.Logger.Warn("log index not cached", "path", path, "error", err)
		}
		if !file.IsValid() {
			reader.options.Logger.Debug("log file invalid", "path", path, "error", file.Err)
		}
		reader.options.Logger.Debug("log file tracked",
			"path", path,
			"entries", file.EntryCount(),
			"cached", hit,
		)
		reader.files = append(reader.files, file)
		reader.byPath[path] = file
		results = append(results, AddResult{File: file, New: true})
	}
	return results
}

// Files returns the tracked files in the order they were added.
func (reader *Reader) Files() []*logfile.RawLogFile {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	return slices.Clone(reader.files)
}

// ActivityMap builds the reconciled view of the tracked files. Each
// call scans the files again; the result does not change when files
// are added later.
func (reader *Reader) ActivityMap() *ActivityMap {
	files := reader.Files()
	return buildActivityMap(files, reader.options)
}
