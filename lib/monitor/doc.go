// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor defines the logger the persistence layer talks to.
//
// A [Destination] accepts entries that were already filtered somewhere
// else, typically in another process: it answers [Destination.ShouldLog]
// with the tags it would actually record, and then takes the entry
// unconditionally. The pipe receiver forwards relayed entries into a
// Destination.
//
// A [Client] observes everything a [Monitor] emits, in order: the
// rolling file handler and the pipe sender are clients. A client that
// returns an error is detached and the failure is logged.
//
// [Monitor] is the concrete implementation: it owns a monitor id
// (a UUID unless given), a minimal level with per-tag overrides,
// automatic tags merged into every entry, the stack of open groups and
// the strictly increasing timestamps that make (time, kind, text) a
// usable identity across files.
//
//	m := monitor.New(monitor.Options{Logger: logger})
//	m.AddClient(handler.NewClient())
//	m.OpenGroup(logentry.LevelInfo, "building", "Build")
//	m.Log(logentry.LevelWarn, "disk almost full")
//	m.EndGroup("1 warning")
package monitor
