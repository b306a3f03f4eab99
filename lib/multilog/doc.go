// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package multilog reconstructs per-monitor timelines from many log
// files.
//
// Several output handlers usually observe the same live monitor, and
// each rolls its own files, so one event ends up in several files and
// no single file holds a whole timeline. A [Reader] tracks a set of
// files; [Reader.ActivityMap] merges them into one ordered,
// deduplicated sequence per monitor:
//
//   - Entries carrying a multicast envelope belong to the envelope's
//     monitor id; entries of a plain file belong to the monitor
//     "file:<absolute path>".
//   - Entries are ordered by timestamp (instant, then uniquifier), then
//     by the order in which files were added, then by offset.
//   - Two entries are the same event iff timestamp, kind and text are
//     identical. Texts are compared through their BLAKE3 digest so the
//     map holds offsets, never texts.
//   - When an entry's back-link does not name the entry merged before
//     it, and the linked instant falls between the two, the data in
//     between was lost: a Missing placeholder carrying the linked kind
//     and time is inserted. Links that contradict the ordering are only
//     counted.
//
// Entries are re-read from disk by offset each time
// [MonitorActivity.ReadAllEntries] is called.
package multilog
