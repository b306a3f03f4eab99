// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package multilog

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logfile"
	"github.com/bureau-foundation/ckmon/lib/logstream"
)

// FileMonitorPrefix starts the monitor id of entries from plain
// (non-multicast) files.
const FileMonitorPrefix = "file:"

// ActivityMap is an immutable reconciled view of a set of files.
type ActivityMap struct {
	monitors     map[string]*MonitorActivity
	ordered      []*MonitorActivity
	validFiles   []*logfile.RawLogFile
	invalidFiles []*logfile.RawLogFile
	readErrors   []FileError
}

// FileError pairs a file with the error that interrupted its scan.
type FileError struct {
	File *logfile.RawLogFile
	Err  error
}

// Monitors returns every monitor, ordered by first entry then id.
func (activityMap *ActivityMap) Monitors() []*MonitorActivity {
	return slices.Clone(activityMap.ordered)
}

// Monitor returns the activity of one monitor.
func (activityMap *ActivityMap) Monitor(id string) (*MonitorActivity, bool) {
	activity, ok := activityMap.monitors[id]
	return activity, ok
}

// ValidFiles returns the files that were decoded up to their
// terminator.
func (activityMap *ActivityMap) ValidFiles() []*logfile.RawLogFile {
	return slices.Clone(activityMap.validFiles)
}

// InvalidFiles returns the other files.
func (activityMap *ActivityMap) InvalidFiles() []*logfile.RawLogFile {
	return slices.Clone(activityMap.invalidFiles)
}

// ReadErrors returns the contributing files whose scan failed, which
// happens when a file changed after it was validated. Entries read
// before the failure are kept.
func (activityMap *ActivityMap) ReadErrors() []FileError {
	return slices.Clone(activityMap.readErrors)
}

// entryRef locates one entry and holds what merging needs.
type entryRef struct {
	file   int
	offset int64
	time   logentry.Timestamp
	kind   logentry.Kind
	digest [32]byte

	hasLink  bool
	linkKind logentry.Kind
	linkTime logentry.Timestamp

	// missing marks a gap placeholder; only kind and time are set.
	missing bool
}

func buildActivityMap(files []*logfile.RawLogFile, options Options) *ActivityMap {
	activityMap := &ActivityMap{monitors: make(map[string]*MonitorActivity)}
	refs := make(map[string][]entryRef)
	contributors := make(map[string][]int)

	for index, file := range files {
		if file.IsValid() {
			activityMap.validFiles = append(activityMap.validFiles, file)
		} else {
			activityMap.invalidFiles = append(activityMap.invalidFiles, file)
			if !options.IncludeTruncated || !file.Readable() {
				continue
			}
		}
		err := scanFile(file, func(monitorID string, ref entryRef) {
			ref.file = index
			refs[monitorID] = append(refs[monitorID], ref)
			if ids := contributors[monitorID]; len(ids) == 0 || ids[len(ids)-1] != index {
				contributors[monitorID] = append(ids, index)
			}
		})
		if err != nil {
			options.Logger.Warn("log file scan failed", "path", file.Path, "error", err)
			activityMap.readErrors = append(activityMap.readErrors, FileError{File: file, Err: err})
		}
	}

	for monitorID, monitorRefs := range refs {
		activity := &MonitorActivity{
			MonitorID: monitorID,
			files:     files,
		}
		for _, index := range contributors[monitorID] {
			activity.Files = append(activity.Files, files[index])
		}
		activity.merge(monitorRefs)
		activityMap.monitors[monitorID] = activity
		activityMap.ordered = append(activityMap.ordered, activity)
	}
	slices.SortFunc(activityMap.ordered, func(a, b *MonitorActivity) int {
		if order := a.FirstTime.Compare(b.FirstTime); order != 0 {
			return order
		}
		return cmp.Compare(a.MonitorID, b.MonitorID)
	})
	return activityMap
}

// scanFile streams file and reports every entry with its monitor id.
// Files that validated without error are expected to scan to their
// terminator; truncated files are read as far as they go.
func scanFile(file *logfile.RawLogFile, visit func(monitorID string, ref entryRef)) error {
	handle, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer handle.Close()
	reader, err := logstream.Open(handle)
	if err != nil {
		return err
	}
	defer reader.Close()

	fileMonitor := FileMonitorPrefix + file.Path
	for reader.Next() {
		entry := reader.Entry()
		ref := entryRef{
			offset: reader.Offset(),
			time:   entry.Time,
			kind:   entry.Kind,
			digest: blake3.Sum256([]byte(entry.Text)),
		}
		monitorID := fileMonitor
		if envelope := entry.Multicast; envelope != nil {
			monitorID = envelope.MonitorID
			ref.hasLink = true
			ref.linkKind = envelope.PreviousKind
			ref.linkTime = envelope.PreviousTime
		}
		visit(monitorID, ref)
	}
	if reader.BadEndOfStream() && file.IsValid() {
		return fmt.Errorf("%s changed since validation: %w", file.Path, reader.Err())
	}
	return nil
}
