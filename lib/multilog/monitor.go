// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package multilog

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logfile"
)

// MonitorActivity is the reconciled timeline of one monitor.
type MonitorActivity struct {
	MonitorID string

	// FirstTime and LastTime bound the timeline, placeholders
	// included.
	FirstTime logentry.Timestamp
	LastTime  logentry.Timestamp

	// EntryCount counts distinct entries, MissingCount placeholders.
	EntryCount   int
	MissingCount int

	// DuplicateCount counts entries collapsed into an identical one
	// from another file.
	DuplicateCount int

	// InconsistentLinks counts back-links that neither name the
	// previous entry nor leave room for a gap.
	InconsistentLinks int

	// Files are the files that contributed, in the order they were
	// added to the reader.
	Files []*logfile.RawLogFile

	files []*logfile.RawLogFile
	refs  []entryRef
}

// merge orders, deduplicates and links refs.
func (activity *MonitorActivity) merge(refs []entryRef) {
	slices.SortStableFunc(refs, func(a, b entryRef) int {
		if order := a.time.Compare(b.time); order != 0 {
			return order
		}
		if order := cmp.Compare(a.file, b.file); order != 0 {
			return order
		}
		return cmp.Compare(a.offset, b.offset)
	})

	merged := make([]entryRef, 0, len(refs))
	// seen holds the (kind, digest) pairs of the run of entries
	// sharing the current timestamp.
	type identity struct {
		kind   logentry.Kind
		digest [32]byte
	}
	seen := make(map[identity]bool)
	var runTime logentry.Timestamp
	var previous entryRef
	hasPrevious := false

	for i := range refs {
		ref := refs[i]
		if i == 0 || !ref.time.Equal(runTime) {
			runTime = ref.time
			clear(seen)
		}
		key := identity{kind: ref.kind, digest: ref.digest}
		if seen[key] {
			activity.DuplicateCount++
			continue
		}
		seen[key] = true

		if ref.hasLink {
			if placeholder, ok := activity.gap(previous, hasPrevious, ref); ok {
				merged = append(merged, placeholder)
				activity.MissingCount++
			}
		}
		merged = append(merged, ref)
		previous, hasPrevious = ref, true
		activity.EntryCount++
	}

	activity.refs = merged
	if len(merged) > 0 {
		activity.FirstTime = merged[0].time
		activity.LastTime = merged[len(merged)-1].time
	}
}

// gap checks the back-link of ref against the entry merged before it
// and returns the placeholder to insert, if any.
func (activity *MonitorActivity) gap(previous entryRef, hasPrevious bool, ref entryRef) (entryRef, bool) {
	linked := ref.linkKind != logentry.KindNone || !ref.linkTime.IsZero()
	if !hasPrevious {
		if !linked {
			return entryRef{}, false
		}
		return entryRef{missing: true, kind: ref.linkKind, time: ref.linkTime}, true
	}
	if ref.linkKind == previous.kind && ref.linkTime.Equal(previous.time) {
		return entryRef{}, false
	}
	if linked && ref.linkTime.Compare(previous.time) > 0 && ref.linkTime.Compare(ref.time) < 0 {
		return entryRef{missing: true, kind: ref.linkKind, time: ref.linkTime}, true
	}
	activity.InconsistentLinks++
	return entryRef{}, false
}

// ReadAllEntries returns a new cursor over the timeline. Every call
// starts over and re-reads the entries from their files.
func (activity *MonitorActivity) ReadAllEntries() *EntryCursor {
	return &EntryCursor{
		activity: activity,
		readers:  make(map[int]*logfile.EntryReader),
		index:    -1,
	}
}

// Entry is one element of a timeline.
type Entry struct {
	*logentry.Entry

	// File and Offset locate the entry; nil and zero for placeholders.
	File   *logfile.RawLogFile
	Offset int64

	// Missing marks a placeholder for lost data. Its Kind and Time are
	// those the next entry's back-link named.
	Missing bool
}

// EntryCursor iterates a timeline. Not safe for concurrent use.
type EntryCursor struct {
	activity *MonitorActivity
	readers  map[int]*logfile.EntryReader
	index    int
	current  Entry
	err      error
}

// Next advances to the next entry. It returns false at the end and
// on the first read error.
func (cursor *EntryCursor) Next() bool {
	if cursor.err != nil {
		return false
	}
	cursor.index++
	if cursor.index >= len(cursor.activity.refs) {
		cursor.current = Entry{}
		return false
	}
	ref := cursor.activity.refs[cursor.index]
	if ref.missing {
		cursor.current = Entry{
			Entry:   &logentry.Entry{Kind: ref.kind, Time: ref.time},
			Missing: true,
		}
		return true
	}

	reader, ok := cursor.readers[ref.file]
	file := cursor.activity.files[ref.file]
	if !ok {
		reader = file.NewEntryReader()
		cursor.readers[ref.file] = reader
	}
	entry, err := reader.ReadAt(ref.offset)
	if err != nil {
		cursor.err = err
		cursor.current = Entry{}
		return false
	}
	cursor.current = Entry{Entry: entry, File: file, Offset: ref.offset}
	return true
}

// Entry returns the current entry.
func (cursor *EntryCursor) Entry() Entry { return cursor.current }

// Err returns the read error that stopped the cursor.
func (cursor *EntryCursor) Err() error { return cursor.err }

// Close releases the file handles.
func (cursor *EntryCursor) Close() error {
	var first error
	for index, reader := range cursor.readers {
		if err := reader.Close(); err != nil && first == nil {
			first = err
		}
		delete(cursor.readers, index)
	}
	return first
}
