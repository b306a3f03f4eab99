// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logfile manages persisted log streams.
//
// [Open] validates one file end to end and records, without keeping
// any entry in memory, where each entry starts. A file is valid only
// when decoding reached the explicit terminator; every other outcome
// is recorded in [RawLogFile].Err and never returned as an error, so
// that tools can report unreadable files and carry on with the rest.
//
// Entries are re-read on demand through [EntryReader], which seeks on
// raw files and reads forward through compressed ones.
//
// Validating a large compressed file is expensive, so [OpenCached]
// keeps the result of [Open] as a CBOR index in a cache directory,
// keyed by path and invalidated by a BLAKE3 fingerprint of the file's
// size, modification time, head and tail.
//
// [Handler] is the producing side: a monitor client factory that
// writes multicast entries into rolling files and closes each file
// with the terminator.
package logfile
